package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/directory"
	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/repository"
	"github.com/memberhub/mailengine/internal/template"
)

// Hooks carries the metric callback functions injected by main.
// Nil hooks are replaced with no-ops so tests can ignore them.
type Hooks struct {
	OnAdmitted  func(priority domain.Priority)
	OnDuplicate func()
}

// Admission validates send requests, renders their content immediately, and
// persists them as queue items. Rendering happens here, not at send time, so
// later provider failures retry with frozen content.
type Admission struct {
	repo         repository.QueueRepository
	members      directory.RecipientDirectory
	templates    directory.TemplateStore
	participants directory.ParticipantSource
	logger       *zap.Logger

	dailyLimit int
	maxRetries int
	fanout     FanoutParams
	hooks      Hooks
	now        func() time.Time
}

// AdmissionConfig groups the knobs Admission needs from config.
type AdmissionConfig struct {
	DailyLimit int
	MaxRetries int
	Fanout     FanoutParams
}

func NewAdmission(
	repo repository.QueueRepository,
	members directory.RecipientDirectory,
	templates directory.TemplateStore,
	participants directory.ParticipantSource,
	cfg AdmissionConfig,
	hooks Hooks,
	logger *zap.Logger,
) *Admission {
	if hooks.OnAdmitted == nil {
		hooks.OnAdmitted = func(domain.Priority) {}
	}
	if hooks.OnDuplicate == nil {
		hooks.OnDuplicate = func() {}
	}
	return &Admission{
		repo:         repo,
		members:      members,
		templates:    templates,
		participants: participants,
		logger:       logger,
		dailyLimit:   cfg.DailyLimit,
		maxRetries:   cfg.MaxRetries,
		fanout:       cfg.Fanout,
		hooks:        hooks,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the admission clock; tests use it to pin "now".
func (a *Admission) SetClock(now func() time.Time) { a.now = now }

// Submit admits one email request.
//
// A dedup hit is not an error: the existing pending item is returned with
// Duplicate=true and the caller proceeds as if the submission succeeded.
// Admission-rejected requests (unknown recipient, unknown or inactive
// template, daily cap) fail fast and persist nothing.
func (a *Admission) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	res, err := a.stage(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		return res, nil
	}

	if err := a.checkDailyLimit(ctx, 1); err != nil {
		return nil, err
	}

	if err := a.repo.Insert(ctx, res.Item); err != nil {
		return nil, fmt.Errorf("persist queue item: %w", err)
	}

	a.hooks.OnAdmitted(res.Item.Priority)
	return res, nil
}

// SubmitBatch admits up to 1000 requests as a unit: every request passes
// every admission check before anything is persisted, then all staged items
// go into the store in one InsertBatch. Any rejection fails the whole batch
// with nothing queued. A dedup hit, whether against the store or against an
// earlier item in the same batch, is a benign per-item outcome, not a
// rejection.
func (a *Admission) SubmitBatch(ctx context.Context, reqs []domain.SubmitRequest) ([]*domain.SubmitResult, error) {
	if len(reqs) == 0 {
		return nil, domain.ErrBatchEmpty
	}
	if len(reqs) > 1000 {
		return nil, domain.ErrBatchTooLarge
	}

	results := make([]*domain.SubmitResult, 0, len(reqs))
	staged := make([]*domain.QueueItem, 0, len(reqs))
	seen := make(map[string]*domain.QueueItem, len(reqs))

	for i, req := range reqs {
		res, err := a.stage(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if !res.Duplicate {
			key := res.Item.DuplicateKey + "\x00" + res.Item.ContentHash
			if prior, ok := seen[key]; ok {
				a.hooks.OnDuplicate()
				res = &domain.SubmitResult{Item: prior, Duplicate: true}
			} else {
				seen[key] = res.Item
				staged = append(staged, res.Item)
			}
		}
		results = append(results, res)
	}

	if len(staged) > 0 {
		if err := a.checkDailyLimit(ctx, len(staged)); err != nil {
			return nil, err
		}
		if err := a.repo.InsertBatch(ctx, staged); err != nil {
			return nil, fmt.Errorf("persist batch: %w", err)
		}
		for _, item := range staged {
			a.hooks.OnAdmitted(item.Priority)
		}
	}
	return results, nil
}

// stage runs every admission check for one request and builds the queue
// item without persisting it. A dedup hit against the store short-circuits
// with the existing pending item and Duplicate=true.
func (a *Admission) stage(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	recipient, err := a.members.Resolve(ctx, req.Recipient)
	if err != nil {
		return nil, err
	}

	tpl, err := a.templates.Resolve(ctx, req.TemplateName)
	if err != nil {
		return nil, err
	}
	if !tpl.Active {
		return nil, domain.ErrTemplateInactive
	}

	item := a.buildItem(*recipient, tpl, req)

	existing, err := a.repo.FindPendingDuplicate(ctx, item.DuplicateKey, item.ContentHash)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		a.hooks.OnDuplicate()
		a.logger.Debug("duplicate submission, already queued",
			zap.String("existing_id", existing.ID),
			zap.String("recipient", req.Recipient))
		return &domain.SubmitResult{Item: existing, Duplicate: true}, nil
	}

	return &domain.SubmitResult{Item: item}, nil
}

// Cancel removes a pending or failed item from the queue.
func (a *Admission) Cancel(ctx context.Context, id string) error {
	return a.repo.DeletePending(ctx, id)
}

func (a *Admission) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	return a.repo.GetByID(ctx, id)
}

// ---- private helpers ----

// checkDailyLimit re-queries the admitted-since-midnight count on every call
// instead of keeping a locked counter. Concurrent admissions can overshoot
// the cap by a few items; the cap is a volume guard, not a hard quota.
// adding is the number of items about to be inserted, so a whole batch is
// accepted or rejected as one unit. Dedup hits consume no quota.
func (a *Admission) checkDailyLimit(ctx context.Context, adding int) error {
	if a.dailyLimit <= 0 {
		return nil
	}
	midnight := startOfDay(a.now())
	count, err := a.repo.CountAdmittedSince(ctx, midnight)
	if err != nil {
		return fmt.Errorf("daily limit check: %w", err)
	}
	if count+adding > a.dailyLimit {
		return domain.ErrDailyLimitExceeded
	}
	return nil
}

func (a *Admission) buildItem(
	recipient directory.Recipient,
	tpl *directory.Template,
	req domain.SubmitRequest,
) *domain.QueueItem {
	now := a.now()

	renderCtx := make(map[string]string, len(req.Context)+1)
	for k, v := range req.Context {
		renderCtx[k] = v
	}
	if _, ok := renderCtx["Name"]; !ok {
		renderCtx["Name"] = recipient.DisplayName
	}

	subject := template.Render(tpl.Subject, renderCtx)
	html := template.RenderHTML(tpl.HTML, renderCtx)
	text := template.Render(tpl.Text, renderCtx)

	// A past scheduled_at is accepted and simply eligible on the next tick.
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	return &domain.QueueItem{
		ID:            uuid.New().String(),
		Recipient:     recipient.Email,
		RecipientName: recipient.DisplayName,
		EventID:       req.EventID,
		CampaignID:    req.CampaignID,
		TemplateName:  tpl.Name,
		TemplateID:    tpl.ID,
		Subject:       subject,
		HTMLBody:      html,
		TextBody:      text,
		Context:       renderCtx,
		Priority:      req.Priority,
		Status:        domain.StatusPending,
		ScheduledAt:   scheduledAt,
		MaxRetries:    a.maxRetries,
		ContentHash:   domain.ContentHash(tpl.ID, subject, html, text),
		DuplicateKey:  domain.DuplicateKey(recipient.Email, tpl.Name, req.EventID, req.CampaignID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
