package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/mailengine/internal/directory"
	"github.com/memberhub/mailengine/internal/domain"
)

// ScheduleEventReminders plans one reminder tier per offset for an event
// starting at eventTime. Each tier fans out one queue item per participant,
// spread over time by the batch planner so the send rate stays under the
// provider ceiling while the whole tier completes before its target time.
//
// Tiers whose target time or fan-out window has already passed are skipped
// with a recorded reason, never burst-sent. A per-(event, tier) mark makes
// the call idempotent: re-running it schedules nothing twice.
//
// The tier template is resolved as "<templateBase>_<tier>", e.g.
// "event_reminder_24h" for a 24-hour offset.
func (a *Admission) ScheduleEventReminders(
	ctx context.Context,
	eventID string,
	eventTime time.Time,
	offsets []time.Duration,
	templateBase string,
	extraContext map[string]string,
) ([]domain.TierReport, error) {
	if eventID == "" {
		return nil, domain.ErrNotFound
	}

	participants, err := a.participants.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	now := a.now()
	reports := make([]domain.TierReport, 0, len(offsets))

	for _, offset := range offsets {
		tier := tierLabel(offset)
		target := eventTime.Add(-offset)
		report := domain.TierReport{Tier: tier, TargetTime: target}

		if !target.After(now) {
			skip(&report, "target time already passed")
		} else if len(participants) == 0 {
			skip(&report, "event has no participants")
		} else {
			a.scheduleTier(ctx, eventID, tier, target, templateBase, extraContext, participants, &report)
		}

		if report.Skipped {
			a.logger.Info("reminder tier skipped",
				zap.String("event_id", eventID),
				zap.String("tier", tier),
				zap.String("reason", report.SkipReason))
		} else {
			a.logger.Info("reminder tier scheduled",
				zap.String("event_id", eventID),
				zap.String("tier", tier),
				zap.Int("items", report.Scheduled),
				zap.Time("target", target))
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func (a *Admission) scheduleTier(
	ctx context.Context,
	eventID, tier string,
	target time.Time,
	templateBase string,
	extraContext map[string]string,
	participants []directory.Recipient,
	report *domain.TierReport,
) {
	templateName := templateBase + "_" + tier
	tpl, err := a.templates.Resolve(ctx, templateName)
	if err != nil {
		skip(report, fmt.Sprintf("template %q unavailable", templateName))
		return
	}
	if !tpl.Active {
		skip(report, fmt.Sprintf("template %q is inactive", templateName))
		return
	}

	plan, err := PlanFanout(target, len(participants), a.fanout, a.now())
	if errors.Is(err, domain.ErrWindowPassed) {
		skip(report, "fan-out window already passed")
		return
	}
	if err != nil {
		skip(report, err.Error())
		return
	}

	// The idempotency mark goes in before the items so a concurrent call for
	// the same event sees the tier as taken even if our inserts are mid-flight.
	fresh, err := a.repo.MarkReminderScheduled(ctx, eventID, tier)
	if err != nil {
		skip(report, fmt.Sprintf("idempotency mark failed: %v", err))
		return
	}
	if !fresh {
		skip(report, "tier already scheduled for this event")
		return
	}

	items := make([]*domain.QueueItem, 0, len(participants))
	for i, p := range participants {
		renderCtx := make(map[string]string, len(extraContext)+2)
		for k, v := range extraContext {
			renderCtx[k] = v
		}
		renderCtx["Tier"] = tier

		scheduledAt := plan.ScheduledAt(i)
		item := a.buildItem(p, tpl, domain.SubmitRequest{
			Recipient:    p.Email,
			TemplateName: templateName,
			Context:      renderCtx,
			Priority:     domain.PriorityEvent,
			ScheduledAt:  &scheduledAt,
			EventID:      &eventID,
		})
		items = append(items, item)
	}

	if err := a.repo.InsertBatch(ctx, items); err != nil {
		a.logger.Error("failed to persist reminder tier",
			zap.String("event_id", eventID),
			zap.String("tier", tier),
			zap.Error(err))
		skip(report, fmt.Sprintf("persist failed: %v", err))
		return
	}

	report.Scheduled = len(items)
}

func skip(report *domain.TierReport, reason string) {
	report.Skipped = true
	report.SkipReason = reason
}

func tierLabel(offset time.Duration) string {
	offset = offset.Round(time.Minute)
	if offset >= time.Hour && offset%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(offset/time.Hour))
	}
	return fmt.Sprintf("%dm", int(offset/time.Minute))
}
