package handler

import "net/http"

// HealthHandler serves the liveness probe endpoint. Queue health (backlog
// and failure thresholds) is a separate concern served by /queue/stats;
// this endpoint only answers "is the process up".
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "mailengine",
	})
}
