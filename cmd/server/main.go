package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/api"
	"github.com/memberhub/mailengine/internal/config"
	"github.com/memberhub/mailengine/internal/db"
	"github.com/memberhub/mailengine/internal/directory"
	"github.com/memberhub/mailengine/internal/dispatch"
	"github.com/memberhub/mailengine/internal/metrics"
	"github.com/memberhub/mailengine/internal/monitor"
	"github.com/memberhub/mailengine/internal/provider"
	"github.com/memberhub/mailengine/internal/repository"
	"github.com/memberhub/mailengine/internal/scheduler"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewPgQueueRepository(pool)
	dir := directory.NewPgDirectory(pool)

	// Primary API provider first, SMTP relay as fallback.
	chain := provider.NewChain(cfg.ProviderTimeout, logger,
		provider.NewResendProvider(provider.ResendConfig{
			APIKey:    cfg.ResendAPIKey,
			FromEmail: cfg.ResendFrom,
			FromName:  cfg.ResendFromName,
		}),
		provider.NewSMTPProvider(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
	)
	logger.Info("provider chain configured", zap.Strings("providers", chain.Names()))

	admission := scheduler.NewAdmission(repo, dir, dir.Templates(), dir,
		scheduler.AdmissionConfig{
			DailyLimit: cfg.DailyLimit,
			MaxRetries: cfg.MaxRetries,
			Fanout: scheduler.FanoutParams{
				BatchSize: cfg.FanoutBatchSize,
				Delay:     cfg.FanoutBatchDelay,
				Safety:    cfg.FanoutSafetyFactor,
			},
		}, m.AdmissionHooks(), logger)

	dispatcher := dispatch.NewDispatcher(repo, chain,
		dispatch.NewPacer(cfg.RatePerMinute),
		dispatch.DispatcherConfig{
			BackoffBase:  cfg.BackoffBase,
			SendingGrace: cfg.SendingGrace,
		}, m.DispatchHooks(), logger)

	mon := monitor.NewMonitor(repo, monitor.Thresholds{
		FailedWarning:   cfg.FailedWarning,
		FailedCritical:  cfg.FailedCritical,
		BacklogWarning:  cfg.BacklogWarning,
		BacklogCritical: cfg.BacklogCritical,
	}, logger)

	// ---- background ticks ----
	// Context for all background work; cancelled on shutdown signal.
	tickCtx, cancelTicks := context.WithCancel(ctx)
	defer cancelTicks()

	c := cron.New()
	if _, err := c.AddFunc(cfg.TickSpec, func() {
		if _, err := dispatcher.RunTick(tickCtx, cfg.TickLimit); err != nil {
			logger.Error("scheduled tick failed", zap.Error(err))
		}
		if stats, err := mon.Stats(tickCtx); err == nil {
			m.ObserveQueueDepth(stats)
		}
	}); err != nil {
		logger.Fatal("invalid tick spec", zap.String("spec", cfg.TickSpec), zap.Error(err))
	}
	c.Start()
	logger.Info("dispatch ticks scheduled", zap.String("spec", cfg.TickSpec))

	// ---- HTTP server ----
	router := api.NewRouter(admission, dispatcher, mon, cfg.TickLimit, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop scheduling new ticks and wait for a running tick to finish.
	// An interrupted tick leaves its claimed items in sending; the sweep on
	// the next startup requeues them.
	cancelTicks()
	<-c.Stop().Done()

	logger.Info("server stopped cleanly")
}
