package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/memberhub/mailengine/internal/dispatch"
	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/scheduler"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EmailsAdmitted  *prometheus.CounterVec
	EmailsDuplicate prometheus.Counter
	EmailsSent      *prometheus.CounterVec
	EmailsDeferred  prometheus.Counter
	EmailsFailed    prometheus.Counter
	SendLatency     prometheus.Histogram
	TickDuration    prometheus.Histogram
	QueueDepth      *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmailsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_admitted_total",
			Help: "Total number of emails accepted into the queue.",
		}, []string{"priority"}),

		EmailsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emails_duplicate_total",
			Help: "Total number of submissions absorbed as duplicates of a pending item.",
		}),

		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of successfully delivered emails.",
		}, []string{"provider"}),

		EmailsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emails_deferred_total",
			Help: "Total number of transient delivery failures rescheduled for retry.",
		}),

		EmailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Total number of permanently failed emails (retries exhausted).",
		}),

		SendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "email_send_seconds",
			Help:    "Provider round-trip latency for successful sends.",
			Buckets: prometheus.DefBuckets,
		}),

		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_tick_seconds",
			Help:    "Wall-clock duration of one dispatcher tick.",
			Buckets: prometheus.DefBuckets,
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of queue items by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.EmailsAdmitted,
		m.EmailsDuplicate,
		m.EmailsSent,
		m.EmailsDeferred,
		m.EmailsFailed,
		m.SendLatency,
		m.TickDuration,
		m.QueueDepth,
	)

	return m
}

// AdmissionHooks returns the metric callbacks expected by scheduler.Hooks.
// Centralises the prometheus observation calls so the scheduler stays
// import-free.
func (m *Metrics) AdmissionHooks() scheduler.Hooks {
	return scheduler.Hooks{
		OnAdmitted: func(p domain.Priority) {
			m.EmailsAdmitted.WithLabelValues(p.String()).Inc()
		},
		OnDuplicate: func() {
			m.EmailsDuplicate.Inc()
		},
	}
}

// DispatchHooks returns the metric callbacks expected by dispatch.Hooks.
func (m *Metrics) DispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnSent: func(provider string, latency time.Duration) {
			m.EmailsSent.WithLabelValues(provider).Inc()
			m.SendLatency.Observe(latency.Seconds())
		},
		OnDeferred: func() {
			m.EmailsDeferred.Inc()
		},
		OnFailed: func() {
			m.EmailsFailed.Inc()
		},
		OnTick: func(elapsed time.Duration) {
			m.TickDuration.Observe(elapsed.Seconds())
		},
	}
}

// ObserveQueueDepth refreshes the per-status depth gauges from a stats
// snapshot. Called after each tick and on stats reads.
func (m *Metrics) ObserveQueueDepth(stats *domain.QueueStats) {
	m.QueueDepth.WithLabelValues(string(domain.StatusPending)).Set(float64(stats.Pending))
	m.QueueDepth.WithLabelValues(string(domain.StatusSending)).Set(float64(stats.Sending))
	m.QueueDepth.WithLabelValues(string(domain.StatusSent)).Set(float64(stats.Sent))
	m.QueueDepth.WithLabelValues(string(domain.StatusFailed)).Set(float64(stats.Failed))
}
