package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/memberhub/mailengine/internal/api/middleware"
	"github.com/memberhub/mailengine/internal/scheduler"
)

// ReminderHandler schedules tiered event reminder fan-outs.
type ReminderHandler struct {
	admission *scheduler.Admission
	logger    *zap.Logger
}

func NewReminderHandler(admission *scheduler.Admission, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{admission: admission, logger: logger}
}

type reminderRequest struct {
	EventTime    time.Time         `json:"event_time"`
	Offsets      []string          `json:"offsets,omitempty"`       // Go durations, e.g. "24h", "1h", "5m"
	TemplateBase string            `json:"template_base,omitempty"` // defaults to "event_reminder"
	Context      map[string]string `json:"context,omitempty"`
}

var defaultOffsets = []time.Duration{24 * time.Hour, time.Hour, 5 * time.Minute}

// Schedule handles POST /api/v1/events/{id}/reminders
//
// @Summary     Schedule tiered reminders for an event
// @Tags        reminders
// @Accept      json
// @Produce     json
// @Param       id    path      string           true  "Event ID"
// @Param       body  body      reminderRequest  true  "Reminder parameters"
// @Success     200   {array}   domain.TierReport
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/events/{id}/reminders [post]
func (h *ReminderHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EventTime.IsZero() {
		respondError(w, http.StatusBadRequest, "event_time is required")
		return
	}

	offsets := defaultOffsets
	if len(req.Offsets) > 0 {
		offsets = offsets[:0:0]
		for _, s := range req.Offsets {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				respondError(w, http.StatusBadRequest, "invalid offset: "+s)
				return
			}
			offsets = append(offsets, d)
		}
	}

	templateBase := req.TemplateBase
	if templateBase == "" {
		templateBase = "event_reminder"
	}

	reports, err := h.admission.ScheduleEventReminders(
		r.Context(), eventID, req.EventTime, offsets, templateBase, req.Context)
	if err != nil {
		h.logger.Warn("reminder scheduling failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}
