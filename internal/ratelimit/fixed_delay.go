package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FixedDelayLimiter spaces requests at least delay apart.
type FixedDelayLimiter struct {
	delay       time.Duration
	lastRequest time.Time
	clock       clockwork.Clock
	mu          sync.Mutex
}

// NewFixedDelayLimiter creates a new fixed delay limiter.
func NewFixedDelayLimiter(cfg Config, clock clockwork.Clock) *FixedDelayLimiter {
	cfg = applyDefaults(cfg)
	return &FixedDelayLimiter{delay: cfg.FixedDelay, clock: clock}
}

// Wait claims the next slot and sleeps until it opens.
func (fdl *FixedDelayLimiter) Wait(ctx context.Context) error {
	fdl.mu.Lock()
	now := fdl.clock.Now()
	wait := fdl.reserve(now)
	fdl.lastRequest = now.Add(wait)
	fdl.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return sleep(ctx, fdl.clock, wait)
}

func (fdl *FixedDelayLimiter) reserve(now time.Time) time.Duration {
	if fdl.lastRequest.IsZero() {
		return 0
	}
	elapsed := now.Sub(fdl.lastRequest)
	if elapsed >= fdl.delay {
		return 0
	}
	return fdl.delay - elapsed
}
