package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TokenBucket implements token bucket rate limiting.
type TokenBucket struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      clockwork.Clock
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket limiter.
func NewTokenBucket(cfg Config, clock clockwork.Clock) *TokenBucket {
	cfg = applyDefaults(cfg)

	return &TokenBucket{
		rate:       cfg.RequestsPerSec,
		burst:      cfg.Burst,
		tokens:     float64(cfg.Burst),
		lastUpdate: clock.Now(),
		clock:      clock,
	}
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		wait := tb.deficit()
		tb.mu.Unlock()

		if err := sleep(ctx, tb.clock, wait); err != nil {
			return err
		}
	}
}

// deficit is the time until one token accrues (call with lock held).
func (tb *TokenBucket) deficit() time.Duration {
	return time.Duration((1.0-tb.tokens)/tb.rate*float64(time.Second)) + time.Nanosecond
}

// refill adds tokens based on elapsed time (call with lock held).
func (tb *TokenBucket) refill() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
	tb.lastUpdate = now
}
