package monitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/monitor"
	"github.com/memberhub/mailengine/internal/repository"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newMonitor(repo *repository.MockQueueRepository) *monitor.Monitor {
	m := monitor.NewMonitor(repo, monitor.Thresholds{
		FailedWarning:   5,
		FailedCritical:  20,
		BacklogWarning:  100,
		BacklogCritical: 1000,
	}, zap.NewNop())
	m.SetClock(func() time.Time { return testNow })
	return m
}

func seedItem(t *testing.T, repo *repository.MockQueueRepository, status domain.Status, createdAt time.Time) *domain.QueueItem {
	t.Helper()
	item := &domain.QueueItem{
		ID:           uuid.New().String(),
		Recipient:    "member@example.org",
		TemplateName: "welcome",
		Subject:      "Hi",
		HTMLBody:     "<p>Hi</p>",
		Priority:     domain.PriorityEvent,
		Status:       status,
		ScheduledAt:  createdAt,
		MaxRetries:   3,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	switch status {
	case domain.StatusSent:
		at := createdAt
		via := "resend"
		item.SentAt = &at
		item.SentVia = &via
	case domain.StatusFailed:
		msg := "mailbox unavailable"
		item.ErrorMessage = &msg
		item.RetryCount = item.MaxRetries
	}
	if err := repo.Insert(context.Background(), item); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return item
}

func TestStats_CountsAndSuccessRate(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	m := newMonitor(repo)

	recent := testNow.Add(-10 * time.Minute)
	seedItem(t, repo, domain.StatusPending, recent)
	seedItem(t, repo, domain.StatusSending, recent)
	seedItem(t, repo, domain.StatusSent, recent)
	seedItem(t, repo, domain.StatusSent, recent)
	seedItem(t, repo, domain.StatusSent, testNow.Add(-48*time.Hour))
	seedItem(t, repo, domain.StatusFailed, recent)

	stats, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Pending != 1 || stats.Sending != 1 || stats.Sent != 3 || stats.Failed != 1 {
		t.Fatalf("wrong status counts: %+v", stats)
	}
	if stats.SentToday != 2 {
		t.Fatalf("expected sent_today=2, got %d", stats.SentToday)
	}
	if stats.SentLastHour != 2 {
		t.Fatalf("expected sent_last_hour=2, got %d", stats.SentLastHour)
	}
	if stats.FailedToday != 1 {
		t.Fatalf("expected failed_today=1, got %d", stats.FailedToday)
	}
	if want := 75.0; stats.SuccessRate != want {
		t.Fatalf("expected success_rate=%.1f, got %.1f", want, stats.SuccessRate)
	}
}

func TestStats_EmptyQueueHasZeroSuccessRate(t *testing.T) {
	m := newMonitor(repository.NewMockQueueRepository())

	stats, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SuccessRate != 0 {
		t.Fatalf("empty queue success_rate must be 0, got %.1f", stats.SuccessRate)
	}
	if stats.Health != domain.HealthHealthy {
		t.Fatalf("empty queue must be healthy, got %s", stats.Health)
	}
}

func TestStats_HealthGrading(t *testing.T) {
	tests := []struct {
		name    string
		failed  int
		pending int
		want    domain.Health
	}{
		{"all quiet", 0, 10, domain.HealthHealthy},
		{"just under warning", 4, 99, domain.HealthHealthy},
		{"failed at warning", 5, 0, domain.HealthWarning},
		{"backlog at warning", 0, 100, domain.HealthWarning},
		{"failed at critical", 20, 0, domain.HealthCritical},
		{"backlog at critical", 0, 1000, domain.HealthCritical},
		{"worse grade wins", 5, 1000, domain.HealthCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMockQueueRepository()
			m := newMonitor(repo)
			for i := 0; i < tt.failed; i++ {
				seedItem(t, repo, domain.StatusFailed, testNow.Add(-time.Hour))
			}
			for i := 0; i < tt.pending; i++ {
				seedItem(t, repo, domain.StatusPending, testNow.Add(-time.Hour))
			}
			stats, err := m.Stats(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stats.Health != tt.want {
				t.Fatalf("expected health=%s, got %s", tt.want, stats.Health)
			}
		})
	}
}

func TestRetryFailed_ResetsBudgetAndDueTime(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	m := newMonitor(repo)
	item := seedItem(t, repo, domain.StatusFailed, testNow.Add(-time.Hour))
	ctx := context.Background()

	n, err := m.RetryFailed(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued, got %d", n)
	}

	got, _ := repo.GetByID(ctx, item.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.RetryCount != 0 {
		t.Fatalf("retry budget must be reset, got retry_count=%d", got.RetryCount)
	}
	if !got.ScheduledAt.Equal(testNow) {
		t.Fatal("requeued item must be due immediately")
	}
	if got.ErrorMessage != nil {
		t.Fatal("stale error message must be cleared")
	}

	// A fresh budget means the item can exhaust retries all over again.
	claimed, _ := repo.ClaimDue(ctx, 10, testNow)
	if len(claimed) != 1 {
		t.Fatalf("requeued item must be claimable, got %d", len(claimed))
	}
}

func TestRetryFailed_HonoursLimit(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	m := newMonitor(repo)
	for i := 0; i < 5; i++ {
		seedItem(t, repo, domain.StatusFailed, testNow.Add(-time.Hour))
	}

	n, err := m.RetryFailed(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 requeued under limit, got %d", n)
	}
}

func TestCleanup_RetainsSentByDefault(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	m := newMonitor(repo)
	ctx := context.Background()

	old := testNow.AddDate(0, 0, -60)
	oldSent := seedItem(t, repo, domain.StatusSent, old)
	oldFailed := seedItem(t, repo, domain.StatusFailed, old)
	recentFailed := seedItem(t, repo, domain.StatusFailed, testNow.Add(-time.Hour))

	n, err := m.Cleanup(ctx, 30, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the old failed item removed, got %d", n)
	}
	if _, err := repo.GetByID(ctx, oldFailed.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("old failed item must be gone")
	}
	if _, err := repo.GetByID(ctx, oldSent.ID); err != nil {
		t.Fatal("sent items are the audit trail and must survive default cleanup")
	}
	if _, err := repo.GetByID(ctx, recentFailed.ID); err != nil {
		t.Fatal("failed item inside the retention window must survive")
	}
}

func TestCleanup_IncludeSentRemovesOldSent(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	m := newMonitor(repo)
	ctx := context.Background()

	oldSent := seedItem(t, repo, domain.StatusSent, testNow.AddDate(0, 0, -60))
	recentSent := seedItem(t, repo, domain.StatusSent, testNow.Add(-time.Hour))

	n, err := m.Cleanup(ctx, 30, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if _, err := repo.GetByID(ctx, oldSent.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("old sent item must be gone when include_sent is set")
	}
	if _, err := repo.GetByID(ctx, recentSent.ID); err != nil {
		t.Fatal("recent sent item must survive")
	}
}

func TestClearNonTerminal(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	m := newMonitor(repo)
	ctx := context.Background()

	pending := seedItem(t, repo, domain.StatusPending, testNow)
	sending := seedItem(t, repo, domain.StatusSending, testNow)
	sent := seedItem(t, repo, domain.StatusSent, testNow)
	failed := seedItem(t, repo, domain.StatusFailed, testNow)

	n, err := m.ClearNonTerminal(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	for _, id := range []string{pending.ID, sending.ID} {
		if _, err := repo.GetByID(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatal("non-terminal item must be gone")
		}
	}
	for _, id := range []string{sent.ID, failed.ID} {
		if _, err := repo.GetByID(ctx, id); err != nil {
			t.Fatal("terminal items must survive a non-terminal clear")
		}
	}
}
