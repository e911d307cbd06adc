package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/provider"
	"github.com/memberhub/mailengine/internal/repository"
)

// Sender is the delivery capability the dispatcher needs. provider.Chain
// implements it; tests swap in a scripted fake.
type Sender interface {
	Send(ctx context.Context, msg *provider.Message) (string, error)
}

// Hooks carries the metric callback functions injected by main.
// Nil hooks are replaced with no-ops so tests can ignore them.
type Hooks struct {
	OnSent     func(providerName string, latency time.Duration)
	OnDeferred func()
	OnFailed   func()
	OnTick     func(elapsed time.Duration)
}

// Dispatcher drains the queue one tick at a time. It holds no state between
// ticks: every tick claims a bounded batch of due items, attempts each
// through the provider chain, and writes the outcome back. Overlapping ticks
// are safe because the claim is compare-and-set — a row flips to sending
// only if it was still pending.
type Dispatcher struct {
	repo        repository.QueueRepository
	sender      Sender
	pacer       *Pacer
	backoffBase time.Duration
	grace       time.Duration
	hooks       Hooks
	logger      *zap.Logger
	now         func() time.Time
}

// DispatcherConfig groups the knobs the dispatcher needs from config.
type DispatcherConfig struct {
	BackoffBase  time.Duration
	SendingGrace time.Duration
}

func NewDispatcher(
	repo repository.QueueRepository,
	sender Sender,
	pacer *Pacer,
	cfg DispatcherConfig,
	hooks Hooks,
	logger *zap.Logger,
) *Dispatcher {
	if hooks.OnSent == nil {
		hooks.OnSent = func(string, time.Duration) {}
	}
	if hooks.OnDeferred == nil {
		hooks.OnDeferred = func() {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func() {}
	}
	if hooks.OnTick == nil {
		hooks.OnTick = func(time.Duration) {}
	}
	return &Dispatcher{
		repo:        repo,
		sender:      sender,
		pacer:       pacer,
		backoffBase: cfg.BackoffBase,
		grace:       cfg.SendingGrace,
		hooks:       hooks,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the dispatcher clock; tests use it to step time.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// RunTick processes up to limit due items and returns what happened to them.
// A single item's failure never aborts the tick: delivery errors are absorbed
// into queue state and the loop moves on to the next claimed item.
func (d *Dispatcher) RunTick(ctx context.Context, limit int) (domain.TickResult, error) {
	start := d.now()
	var res domain.TickResult

	// Crash recovery first: items claimed by a tick that never resolved them
	// (process killed mid-send) go back to pending after the grace period.
	released, err := d.repo.ReleaseStuck(ctx, start.Add(-d.grace))
	if err != nil {
		d.logger.Error("stuck-item sweep failed", zap.Error(err))
	} else if released > 0 {
		d.logger.Warn("requeued stuck sending items", zap.Int("count", released))
		res.Released = released
	}

	items, err := d.repo.ClaimDue(ctx, limit, start)
	if err != nil {
		return res, fmt.Errorf("claim due items: %w", err)
	}

	for _, item := range items {
		if err := d.pacer.Wait(ctx); err != nil {
			// Shutting down mid-tick: the remaining claimed items stay in
			// sending and the next tick's sweep requeues them.
			d.logger.Info("tick interrupted, remaining items left for sweep",
				zap.Int("remaining", len(items)-res.Processed))
			break
		}
		d.process(ctx, item, &res)
	}

	elapsed := time.Since(start)
	d.hooks.OnTick(elapsed)
	d.logger.Info("tick complete",
		zap.Int("processed", res.Processed),
		zap.Int("sent", res.Sent),
		zap.Int("deferred", res.Deferred),
		zap.Int("failed", res.Failed),
		zap.Int("released", res.Released),
		zap.Duration("elapsed", elapsed))

	return res, nil
}

func (d *Dispatcher) process(ctx context.Context, item *domain.QueueItem, res *domain.TickResult) {
	res.Processed++
	log := d.logger.With(
		zap.String("item_id", item.ID),
		zap.String("recipient", item.Recipient),
		zap.Stringer("priority", item.Priority))

	attemptStart := d.now()
	providerName, sendErr := d.sender.Send(ctx, &provider.Message{
		To:      item.Recipient,
		ToName:  item.RecipientName,
		Subject: item.Subject,
		HTML:    item.HTMLBody,
		Text:    item.TextBody,
	})

	if sendErr == nil {
		sentAt := d.now()
		if err := d.repo.MarkSent(ctx, item.ID, providerName, sentAt); err != nil {
			log.Error("failed to mark item sent", zap.Error(err))
			return
		}
		res.Sent++
		d.hooks.OnSent(providerName, sentAt.Sub(attemptStart))
		log.Info("email sent",
			zap.String("provider", providerName),
			zap.Int("retry_count", item.RetryCount))
		return
	}

	// (current state, outcome) → next state: a transient failure with budget
	// left goes back to pending at a strictly later time; an exhausted one
	// becomes terminal.
	if item.RetryCount < item.MaxRetries {
		attempt := item.RetryCount + 1
		nextAt := d.now().Add(d.backoff(attempt))
		if err := d.repo.RescheduleRetry(ctx, item.ID, attempt, nextAt, sendErr.Error()); err != nil {
			log.Error("failed to reschedule retry", zap.Error(err))
			return
		}
		res.Deferred++
		d.hooks.OnDeferred()
		log.Warn("delivery failed, retry scheduled",
			zap.Int("attempt", attempt),
			zap.Time("next_attempt", nextAt),
			zap.Error(sendErr))
		return
	}

	if err := d.repo.MarkFailed(ctx, item.ID, sendErr.Error()); err != nil {
		log.Error("failed to mark item failed", zap.Error(err))
		return
	}
	res.Failed++
	d.hooks.OnFailed()
	log.Error("delivery failed permanently, retries exhausted",
		zap.Int("retry_count", item.RetryCount),
		zap.Error(sendErr))
}

// backoff grows linearly with the attempt number, so each retry lands
// strictly later than the previous one with no clamp plateau.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * d.backoffBase
}
