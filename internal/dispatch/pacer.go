package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces provider sends so the effective rate stays under the
// configured per-minute ceiling. Burst is 1: tokens cannot be saved up into
// a spike, sends are spread evenly across the minute.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer creates a pacer allowing perMinute sends per rolling minute.
// perMinute <= 0 disables pacing.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)}
}

// Wait blocks until the next send is allowed. Called by the dispatcher
// immediately before each provider attempt. Returns a non-nil error only if
// ctx is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}

// AllowAt reports whether a send would be granted at time t, consuming the
// token if so. Used by simulations that drive a synthetic clock.
func (p *Pacer) AllowAt(t time.Time) bool {
	return p.lim.AllowN(t, 1)
}
