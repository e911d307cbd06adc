package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/repository"
)

// Thresholds classify queue health. The failed count and the pending
// backlog are graded separately and the worse grade wins.
type Thresholds struct {
	FailedWarning   int
	FailedCritical  int
	BacklogWarning  int
	BacklogCritical int
}

// Monitor is the read-and-repair side of the queue: aggregate stats,
// failed-item inspection, manual retry, and retention cleanup.
type Monitor struct {
	repo       repository.QueueRepository
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

func NewMonitor(repo repository.QueueRepository, thresholds Thresholds, logger *zap.Logger) *Monitor {
	return &Monitor{
		repo:       repo,
		thresholds: thresholds,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the monitor clock; tests use it to pin time.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Stats aggregates queue counters and grades overall health.
func (m *Monitor) Stats(ctx context.Context) (*domain.QueueStats, error) {
	byStatus, err := m.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sentToday, err := m.repo.CountStatusSince(ctx, domain.StatusSent, midnight)
	if err != nil {
		return nil, err
	}
	failedToday, err := m.repo.CountStatusSince(ctx, domain.StatusFailed, midnight)
	if err != nil {
		return nil, err
	}
	sentLastHour, err := m.repo.CountStatusSince(ctx, domain.StatusSent, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}

	stats := &domain.QueueStats{
		Pending:      byStatus[domain.StatusPending],
		Sending:      byStatus[domain.StatusSending],
		Sent:         byStatus[domain.StatusSent],
		Failed:       byStatus[domain.StatusFailed],
		SentToday:    sentToday,
		FailedToday:  failedToday,
		SentLastHour: sentLastHour,
	}

	if total := stats.Sent + stats.Failed; total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(total) * 100
	}
	stats.Health = m.grade(stats.Failed, stats.Pending)

	return stats, nil
}

func (m *Monitor) grade(failed, backlog int) domain.Health {
	switch {
	case failed >= m.thresholds.FailedCritical || backlog >= m.thresholds.BacklogCritical:
		return domain.HealthCritical
	case failed >= m.thresholds.FailedWarning || backlog >= m.thresholds.BacklogWarning:
		return domain.HealthWarning
	default:
		return domain.HealthHealthy
	}
}

// FailedItems lists terminally failed items, most recent first.
func (m *Monitor) FailedItems(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.repo.ListFailed(ctx, limit)
}

// RetryFailed puts up to limit failed items back in the queue with a fresh
// retry budget, due immediately. Returns how many were requeued.
func (m *Monitor) RetryFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	n, err := m.repo.ResetFailed(ctx, limit, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("requeued failed items for retry", zap.Int("count", n))
	}
	return n, nil
}

// Cleanup removes failed items older than the retention window. Sent items
// are kept as the delivery audit trail unless includeSent is set.
func (m *Monitor) Cleanup(ctx context.Context, olderThanDays int, includeSent bool) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = 30
	}
	cutoff := m.now().AddDate(0, 0, -olderThanDays)
	n, err := m.repo.DeleteTerminalBefore(ctx, cutoff, includeSent)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("cleaned up terminal items",
			zap.Int("count", n),
			zap.Time("cutoff", cutoff),
			zap.Bool("include_sent", includeSent))
	}
	return n, nil
}

// ClearNonTerminal drops every pending and sending item. Destructive;
// intended for test environments and operator resets.
func (m *Monitor) ClearNonTerminal(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteNonTerminal(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Warn("cleared non-terminal queue items", zap.Int("count", n))
	return n, nil
}
