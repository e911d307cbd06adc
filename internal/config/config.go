package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Dispatcher
	TickSpec      string        // cron spec, e.g. "@every 1m"
	TickLimit     int           // max items claimed per tick
	MaxRetries    int
	BackoffBase   time.Duration // retry n is rescheduled now + n*BackoffBase
	SendingGrace  time.Duration // sending items older than this are swept back to pending
	RatePerMinute int           // provider send ceiling

	// Admission
	DailyLimit int // emails admitted per calendar day; 0 disables the cap

	// Fan-out planning
	FanoutBatchSize    int
	FanoutBatchDelay   time.Duration
	FanoutSafetyFactor float64

	// Monitor
	RetentionDays   int
	FailedWarning   int
	FailedCritical  int
	BacklogWarning  int
	BacklogCritical int

	// Providers
	ProviderTimeout time.Duration
	ResendAPIKey    string
	ResendFrom      string
	ResendFromName  string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present (ignored in container deployments
// where the environment is injected directly).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		TickSpec:      getEnv("TICK_SPEC", "@every 1m"),
		TickLimit:     getInt("TICK_LIMIT", 100),
		MaxRetries:    getInt("MAX_RETRIES", 3),
		BackoffBase:   getDuration("RETRY_BACKOFF_BASE", 2*time.Minute),
		SendingGrace:  getDuration("SENDING_GRACE", 10*time.Minute),
		RatePerMinute: getInt("SEND_RATE_PER_MINUTE", 120),

		DailyLimit: getInt("DAILY_SEND_LIMIT", 5000),

		FanoutBatchSize:    getInt("FANOUT_BATCH_SIZE", 50),
		FanoutBatchDelay:   getDuration("FANOUT_BATCH_DELAY", 30*time.Second),
		FanoutSafetyFactor: getFloat("FANOUT_SAFETY_FACTOR", 1.2),

		RetentionDays:   getInt("RETENTION_DAYS", 30),
		FailedWarning:   getInt("HEALTH_FAILED_WARNING", 10),
		FailedCritical:  getInt("HEALTH_FAILED_CRITICAL", 50),
		BacklogWarning:  getInt("HEALTH_BACKLOG_WARNING", 500),
		BacklogCritical: getInt("HEALTH_BACKLOG_CRITICAL", 2000),

		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 15*time.Second),
		ResendAPIKey:    getEnv("RESEND_API_KEY", ""),
		ResendFrom:      getEnv("RESEND_FROM_EMAIL", ""),
		ResendFromName:  getEnv("RESEND_FROM_NAME", ""),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getInt("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
	}

	// A zero or negative backoff base would schedule every retry at "now",
	// so a retry's scheduled_at would no longer be strictly later than the
	// attempt it follows.
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Minute
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
