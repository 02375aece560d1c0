package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces outbound requests. Scrape traffic and media downloads
// each get their own limiter so a burst of downloads cannot starve the
// catalog fetch.
type Limiter interface {
	// Allow reports whether a request may proceed right now.
	Allow() bool
	// Wait blocks until a request is allowed or ctx is cancelled.
	Wait(ctx context.Context) error
	// Reset restores the limiter to its initial state.
	Reset()
}

// TokenBucket implements a token bucket rate limiter. The bucket is
// refilled to capacity once per refill period rather than continuously,
// which keeps request bursts aligned with the platform's per-minute
// accounting.
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a token bucket holding capacity tokens per
// refill period.
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if untilRefill <= 0 {
			untilRefill = 100 * time.Millisecond
		}

		timer := time.NewTimer(untilRefill)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Reset restores the bucket to full capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// Nop is a limiter that always allows. Used when pacing is disabled in
// configuration or in tests.
type Nop struct{}

func (Nop) Allow() bool                    { return true }
func (Nop) Wait(ctx context.Context) error { return ctx.Err() }
func (Nop) Reset()                         {}
