package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/memberhub/mailengine/internal/api/middleware"
	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/scheduler"
)

// EmailHandler handles single-email submission and lifecycle endpoints.
type EmailHandler struct {
	admission *scheduler.Admission
	logger    *zap.Logger
}

func NewEmailHandler(admission *scheduler.Admission, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{admission: admission, logger: logger}
}

// Submit handles POST /api/v1/emails
//
// @Summary     Queue an email for delivery
// @Tags        emails
// @Accept      json
// @Produce     json
// @Param       body  body      domain.SubmitRequest  true  "Submission payload"
// @Success     201   {object}  domain.SubmitResult
// @Success     200   {object}  domain.SubmitResult   "Duplicate: returned already-queued item"
// @Failure     422   {object}  map[string]string
// @Failure     429   {object}  map[string]string
// @Router      /api/v1/emails [post]
func (h *EmailHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.admission.Submit(r.Context(), req)
	if err != nil {
		h.logger.Warn("email submission rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("recipient", req.Recipient),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

// SubmitBatch handles POST /api/v1/emails/batch
//
// @Summary     Queue a batch of emails atomically
// @Tags        emails
// @Accept      json
// @Produce     json
// @Param       body  body      []domain.SubmitRequest  true  "Batch payload (1-1000 items)"
// @Success     201   {array}   domain.SubmitResult
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/emails/batch [post]
func (h *EmailHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	results, err := h.admission.SubmitBatch(r.Context(), reqs)
	if err != nil {
		h.logger.Warn("batch submission rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Int("size", len(reqs)),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, results)
}

// GetByID handles GET /api/v1/emails/{id}
//
// @Summary  Get a queued email by ID
// @Tags     emails
// @Produce  json
// @Param    id   path      string  true  "Queue item UUID"
// @Success  200  {object}  domain.QueueItem
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/emails/{id} [get]
func (h *EmailHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.admission.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Cancel handles DELETE /api/v1/emails/{id}
//
// @Summary  Cancel a pending email
// @Tags     emails
// @Param    id   path      string  true  "Queue item UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/emails/{id} [delete]
func (h *EmailHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.admission.Cancel(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
