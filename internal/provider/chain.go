package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Chain tries providers in a fixed priority order and falls through to the
// next on unavailability or a send failure. The whole send fails only if
// every provider in the chain fails.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

// NewChain builds a chain. Order is significant: providers[0] is tried first.
func NewChain(timeout time.Duration, logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, timeout: timeout, logger: logger}
}

// Send attempts delivery through the chain and returns the name of the
// provider that accepted the message. Each attempt runs under its own
// timeout so one slow provider cannot stall an entire dispatch tick.
func (c *Chain) Send(ctx context.Context, msg *Message) (string, error) {
	if len(c.providers) == 0 {
		return "", errors.New("no providers configured")
	}

	var errs []error
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			c.logger.Debug("provider unavailable, falling through",
				zap.String("provider", p.Name()))
			errs = append(errs, fmt.Errorf("%s: unavailable", p.Name()))
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := p.Send(sendCtx, msg)
		cancel()

		if err == nil {
			return p.Name(), nil
		}

		c.logger.Warn("provider send failed, falling through",
			zap.String("provider", p.Name()),
			zap.String("to", msg.To),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	return "", errors.Join(errs...)
}

// Names lists the chain's providers in attempt order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}
