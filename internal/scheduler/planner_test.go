package scheduler_test

import (
	"testing"
	"time"

	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/scheduler"
)

func TestPlanFanout_StartTimeSatisfiesSafetyMargin(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	target := now.Add(2 * time.Hour)

	plan, err := scheduler.PlanFanout(target, 1000, scheduler.FanoutParams{
		BatchSize: 50,
		Delay:     time.Second,
		Safety:    1.2,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// ceil(1000/50) = 20 sub-batches, 1s apart, 1.2 safety: the plan must
	// start at least 24s before the target.
	latest := target.Add(-time.Duration(20 * float64(time.Second) * 1.2))
	if plan.Start.After(latest) {
		t.Fatalf("start %v is later than the safety bound %v", plan.Start, latest)
	}
	if plan.Batches != 20 {
		t.Fatalf("expected 20 sub-batches, got %d", plan.Batches)
	}
}

func TestPlanFanout_SubBatchesGetDistinctTimes(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	target := now.Add(time.Hour)

	plan, err := scheduler.PlanFanout(target, 1000, scheduler.FanoutParams{
		BatchSize: 50,
		Delay:     time.Second,
		Safety:    1.2,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[time.Time]int)
	for i := 0; i < 1000; i++ {
		seen[plan.ScheduledAt(i)]++
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 distinct scheduled times, got %d", len(seen))
	}
	for at, count := range seen {
		if count != 50 {
			t.Fatalf("sub-batch at %v has %d items, want 50", at, count)
		}
		if at.Before(plan.Start) || !at.Before(target) {
			t.Fatalf("sub-batch time %v outside [start, target)", at)
		}
	}
}

func TestPlanFanout_SingleBatchWhenSmall(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	plan, err := scheduler.PlanFanout(now.Add(time.Hour), 30, scheduler.FanoutParams{
		BatchSize: 50,
		Delay:     time.Second,
		Safety:    1.2,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Batches != 1 {
		t.Fatalf("expected one sub-batch, got %d", plan.Batches)
	}
	first := plan.ScheduledAt(0)
	for i := 1; i < 30; i++ {
		if !plan.ScheduledAt(i).Equal(first) {
			t.Fatal("all items of a single sub-batch must share one scheduled time")
		}
	}
}

func TestPlanFanout_WindowAlreadyPassed(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	// Target only 10s away but the plan needs 24s of lead time.
	_, err := scheduler.PlanFanout(now.Add(10*time.Second), 1000, scheduler.FanoutParams{
		BatchSize: 50,
		Delay:     time.Second,
		Safety:    1.2,
	}, now)
	if err != domain.ErrWindowPassed {
		t.Fatalf("expected ErrWindowPassed, got %v", err)
	}
}

func TestPlanFanout_NoRecipients(t *testing.T) {
	now := time.Now()
	_, err := scheduler.PlanFanout(now.Add(time.Hour), 0, scheduler.FanoutParams{
		BatchSize: 50, Delay: time.Second, Safety: 1.2,
	}, now)
	if err != domain.ErrNoParticipants {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
}
