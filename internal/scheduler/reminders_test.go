package scheduler_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/memberhub/mailengine/internal/directory"
	"github.com/memberhub/mailengine/internal/domain"
	"github.com/memberhub/mailengine/internal/scheduler"
)

func addReminderTemplates(dir *directory.StaticDirectory, base string, tiers ...string) {
	for _, tier := range tiers {
		name := base + "_" + tier
		dir.AddTemplate(directory.Template{
			ID:      "tpl-" + name,
			Name:    name,
			Subject: "Reminder: {{.Event}} in {{.Tier}}",
			HTML:    "<p>See you soon, {{.Name}}</p>",
			Text:    "See you soon",
			Active:  true,
		})
	}
}

var reminderOffsets = []time.Duration{24 * time.Hour, time.Hour, 5 * time.Minute}

func TestScheduleEventReminders_OnlyFutureTiers(t *testing.T) {
	adm, repo, dir := newAdmission(t, scheduler.AdmissionConfig{})
	addReminderTemplates(dir, "event_reminder", "24h", "1h", "5m")
	dir.AddParticipant("ev-7", "alice@example.org", "Alice")
	dir.AddParticipant("ev-7", "bob@example.org", "Bob")

	// Event 10 minutes away: only the 5-minute tier is still schedulable.
	eventTime := testNow.Add(10 * time.Minute)
	reports, err := adm.ScheduleEventReminders(context.Background(),
		"ev-7", eventTime, reminderOffsets, "event_reminder",
		map[string]string{"Event": "Summer Meetup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 tier reports, got %d", len(reports))
	}

	byTier := make(map[string]domain.TierReport)
	for _, r := range reports {
		byTier[r.Tier] = r
	}

	for _, tier := range []string{"24h", "1h"} {
		r := byTier[tier]
		if !r.Skipped || r.SkipReason == "" {
			t.Fatalf("tier %s must be skipped with a recorded reason, got %+v", tier, r)
		}
		if r.Scheduled != 0 {
			t.Fatalf("skipped tier %s must schedule nothing", tier)
		}
	}

	five := byTier["5m"]
	if five.Skipped {
		t.Fatalf("5m tier must be scheduled, skipped with %q", five.SkipReason)
	}
	if five.Scheduled != 2 {
		t.Fatalf("expected 2 items for the 5m tier, got %d", five.Scheduled)
	}

	items := repo.All()
	if len(items) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(items))
	}
	for _, item := range items {
		if item.Priority != domain.PriorityEvent {
			t.Fatalf("reminder items carry the event priority, got %v", item.Priority)
		}
		if item.EventID == nil || *item.EventID != "ev-7" {
			t.Fatal("reminder items must carry the event correlation id")
		}
		if item.ScheduledAt.After(five.TargetTime) {
			t.Fatalf("item scheduled at %v after tier target %v", item.ScheduledAt, five.TargetTime)
		}
	}
}

func TestScheduleEventReminders_Idempotent(t *testing.T) {
	adm, repo, dir := newAdmission(t, scheduler.AdmissionConfig{})
	addReminderTemplates(dir, "event_reminder", "1h")
	dir.AddParticipant("ev-8", "alice@example.org", "Alice")

	eventTime := testNow.Add(3 * time.Hour)
	offsets := []time.Duration{time.Hour}

	first, err := adm.ScheduleEventReminders(context.Background(),
		"ev-8", eventTime, offsets, "event_reminder", nil)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first[0].Scheduled != 1 {
		t.Fatalf("first call must schedule, got %+v", first[0])
	}

	second, err := adm.ScheduleEventReminders(context.Background(),
		"ev-8", eventTime, offsets, "event_reminder", nil)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second[0].Skipped {
		t.Fatal("second call must skip the already-scheduled tier")
	}
	if len(repo.All()) != 1 {
		t.Fatalf("rescheduling must not duplicate items, have %d", len(repo.All()))
	}
}

func TestScheduleEventReminders_FanoutSpreadsLoad(t *testing.T) {
	adm, repo, dir := newAdmission(t, scheduler.AdmissionConfig{
		Fanout: scheduler.FanoutParams{BatchSize: 10, Delay: time.Minute, Safety: 1.2},
	})
	addReminderTemplates(dir, "event_reminder", "24h")
	for i := 0; i < 100; i++ {
		email := fmt.Sprintf("m%03d@example.org", i)
		dir.AddMember(email, fmt.Sprintf("Member %d", i))
		dir.AddParticipant("ev-big", email, "")
	}

	eventTime := testNow.Add(48 * time.Hour)
	reports, err := adm.ScheduleEventReminders(context.Background(),
		"ev-big", eventTime, []time.Duration{24 * time.Hour}, "event_reminder", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reports[0].Scheduled != 100 {
		t.Fatalf("expected 100 scheduled, got %d", reports[0].Scheduled)
	}

	// 100 participants in sub-batches of 10 → 10 distinct scheduled times,
	// one minute apart, none later than the tier target.
	times := make(map[time.Time]int)
	for _, item := range repo.All() {
		times[item.ScheduledAt]++
	}
	if len(times) != 10 {
		t.Fatalf("expected 10 distinct scheduled times, got %d", len(times))
	}
	target := eventTime.Add(-24 * time.Hour)
	for at, n := range times {
		if n != 10 {
			t.Fatalf("sub-batch at %v holds %d items, want 10", at, n)
		}
		if at.After(target) {
			t.Fatalf("sub-batch at %v is after the tier target %v", at, target)
		}
	}
}

func TestScheduleEventReminders_MissingTierTemplate(t *testing.T) {
	adm, repo, dir := newAdmission(t, scheduler.AdmissionConfig{})
	dir.AddParticipant("ev-9", "alice@example.org", "Alice")
	// No event_reminder_1h template registered.

	reports, err := adm.ScheduleEventReminders(context.Background(),
		"ev-9", testNow.Add(3*time.Hour), []time.Duration{time.Hour}, "event_reminder", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reports[0].Skipped {
		t.Fatal("tier without a template must be skipped")
	}
	if len(repo.All()) != 0 {
		t.Fatal("skipped tier must persist nothing")
	}
}

func TestScheduleEventReminders_NoParticipants(t *testing.T) {
	adm, _, dir := newAdmission(t, scheduler.AdmissionConfig{})
	addReminderTemplates(dir, "event_reminder", "1h")

	reports, err := adm.ScheduleEventReminders(context.Background(),
		"ev-empty", testNow.Add(3*time.Hour), []time.Duration{time.Hour}, "event_reminder", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reports[0].Skipped || reports[0].SkipReason == "" {
		t.Fatalf("empty event must skip with a reason, got %+v", reports[0])
	}
}
