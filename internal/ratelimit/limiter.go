// Package ratelimit paces requests to the statistics API.
package ratelimit

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter paces callers; Wait blocks until the next request may go out.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Strategy defines the rate limiting strategy.
type Strategy string

const (
	StrategyTokenBucket Strategy = "token_bucket"
	StrategyFixedDelay  Strategy = "fixed_delay"
	StrategyNone        Strategy = "none"
)

// NewLimiter creates a rate limiter based on config.
func NewLimiter(cfg Config, clock clockwork.Clock) Limiter {
	cfg = applyDefaults(cfg)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	switch cfg.Strategy {
	case StrategyNone:
		return Nop{}
	case StrategyFixedDelay:
		return NewFixedDelayLimiter(cfg, clock)
	default:
		return NewTokenBucket(cfg, clock)
	}
}

// Nop never blocks.
type Nop struct{}

func (Nop) Wait(context.Context) error { return nil }

func sleep(ctx context.Context, clock clockwork.Clock, wait time.Duration) error {
	timer := clock.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
