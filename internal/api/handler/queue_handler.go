package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/dispatch"
	"github.com/memberhub/mailengine/internal/monitor"
)

// QueueHandler exposes queue operations: manual ticks, stats, failed-item
// inspection and repair, retention cleanup.
type QueueHandler struct {
	dispatcher *dispatch.Dispatcher
	monitor    *monitor.Monitor
	tickLimit  int
	logger     *zap.Logger
}

func NewQueueHandler(dispatcher *dispatch.Dispatcher, mon *monitor.Monitor, tickLimit int, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{dispatcher: dispatcher, monitor: mon, tickLimit: tickLimit, logger: logger}
}

// Tick handles POST /api/v1/queue/tick
//
// @Summary     Run one dispatch tick immediately
// @Tags        queue
// @Accept      json
// @Produce     json
// @Param       body  body      object  false  "Optional {\"limit\": n}, default from config"
// @Success     200   {object}  domain.TickResult
// @Router      /api/v1/queue/tick [post]
func (h *QueueHandler) Tick(w http.ResponseWriter, r *http.Request) {
	limit := h.tickLimit
	var body struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Limit > 0 {
		limit = body.Limit
	}

	res, err := h.dispatcher.RunTick(r.Context(), limit)
	if err != nil {
		h.logger.Error("manual tick failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Stats handles GET /api/v1/queue/stats
//
// @Summary  Queue statistics and health classification
// @Tags     queue
// @Produce  json
// @Success  200  {object}  domain.QueueStats
// @Router   /api/v1/queue/stats [get]
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.monitor.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Failed handles GET /api/v1/queue/failed
//
// @Summary  List terminally failed items
// @Tags     queue
// @Produce  json
// @Param    limit  query     int  false  "Max items to return (default 50)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/queue/failed [get]
func (h *QueueHandler) Failed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	items, err := h.monitor.FailedItems(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"count": len(items),
	})
}

// RetryFailed handles POST /api/v1/queue/failed/retry
//
// @Summary  Requeue failed items with a fresh retry budget
// @Tags     queue
// @Produce  json
// @Param    limit  query     int  false  "Max items to requeue (default 50)"
// @Success  200    {object}  map[string]int
// @Router   /api/v1/queue/failed/retry [post]
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	n, err := h.monitor.RetryFailed(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

// Cleanup handles DELETE /api/v1/queue/cleanup
//
// @Summary  Remove old terminal items past the retention window
// @Tags     queue
// @Produce  json
// @Param    older_than_days  query     int   false  "Retention window in days (default 30)"
// @Param    include_sent     query     bool  false  "Also remove sent items (default false)"
// @Success  200              {object}  map[string]int
// @Router   /api/v1/queue/cleanup [delete]
func (h *QueueHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := 30
	if d, err := strconv.Atoi(q.Get("older_than_days")); err == nil && d > 0 {
		days = d
	}
	includeSent := q.Get("include_sent") == "true"

	n, err := h.monitor.Cleanup(r.Context(), days, includeSent)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ClearNonTerminal handles DELETE /api/v1/queue/non-terminal
//
// @Summary  Drop all pending and sending items
// @Tags     queue
// @Produce  json
// @Success  200  {object}  map[string]int
// @Router   /api/v1/queue/non-terminal [delete]
func (h *QueueHandler) ClearNonTerminal(w http.ResponseWriter, r *http.Request) {
	n, err := h.monitor.ClearNonTerminal(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
