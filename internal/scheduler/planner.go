package scheduler

import (
	"time"

	"github.com/memberhub/mailengine/internal/domain"
)

// FanoutParams configures how a large fan-out is spread over time.
type FanoutParams struct {
	BatchSize int           // recipients per sub-batch
	Delay     time.Duration // spacing between sub-batches
	Safety    float64       // start-time margin multiplier, > 1
}

// Plan assigns every recipient of a fan-out to a sub-batch and gives each
// sub-batch its own scheduled_at, so the effective send rate never exceeds
// one sub-batch per Delay. The plan works backward from the target delivery
// time to a start time with a safety margin.
type Plan struct {
	Start     time.Time
	Batches   int
	BatchSize int
	Delay     time.Duration
}

// PlanFanout computes the sub-batch layout for n recipients that should all
// receive mail by target. Returns domain.ErrWindowPassed when the computed
// start time is already behind now: a tier that would have to burst-send to
// catch up is skipped instead, to avoid provider throttling from a spike.
func PlanFanout(target time.Time, n int, p FanoutParams, now time.Time) (*Plan, error) {
	if n <= 0 {
		return nil, domain.ErrNoParticipants
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	safety := p.Safety
	if safety < 1 {
		safety = 1
	}

	batches := (n + batchSize - 1) / batchSize
	lead := time.Duration(float64(batches) * float64(p.Delay) * safety)
	start := target.Add(-lead)

	if start.Before(now) {
		return nil, domain.ErrWindowPassed
	}

	return &Plan{
		Start:     start,
		Batches:   batches,
		BatchSize: batchSize,
		Delay:     p.Delay,
	}, nil
}

// ScheduledAt returns the send time for the i-th recipient: all members of a
// sub-batch share one scheduled_at, offset from the start by the sub-batch
// index times the delay.
func (p *Plan) ScheduledAt(i int) time.Time {
	batch := i / p.BatchSize
	return p.Start.Add(time.Duration(batch) * p.Delay)
}
