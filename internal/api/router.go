package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/api/handler"
	apimw "github.com/memberhub/mailengine/internal/api/middleware"
	"github.com/memberhub/mailengine/internal/dispatch"
	"github.com/memberhub/mailengine/internal/monitor"
	"github.com/memberhub/mailengine/internal/scheduler"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	admission *scheduler.Admission,
	dispatcher *dispatch.Dispatcher,
	mon *monitor.Monitor,
	tickLimit int,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	eh := handler.NewEmailHandler(admission, logger)
	rh := handler.NewReminderHandler(admission, logger)
	qh := handler.NewQueueHandler(dispatcher, mon, tickLimit, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Emails — note: /batch must be registered before /{id}
		// so chi does not treat the literal string "batch" as an ID.
		r.Post("/emails/batch", eh.SubmitBatch)
		r.Post("/emails", eh.Submit)
		r.Get("/emails/{id}", eh.GetByID)
		r.Delete("/emails/{id}", eh.Cancel)

		// Event reminder fan-outs
		r.Post("/events/{id}/reminders", rh.Schedule)

		// Queue operations
		r.Post("/queue/tick", qh.Tick)
		r.Get("/queue/stats", qh.Stats)
		r.Get("/queue/failed", qh.Failed)
		r.Post("/queue/failed/retry", qh.RetryFailed)
		r.Delete("/queue/cleanup", qh.Cleanup)
		r.Delete("/queue/non-terminal", qh.ClearNonTerminal)
	})

	return r
}
