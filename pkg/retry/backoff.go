package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy yields the delay before a given retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the delay after the attempt-th failure (1-based).
	NextDelay(attempt int) time.Duration
}

// Schedule is a fixed list of delays. Attempts beyond the schedule reuse
// the last entry.
type Schedule []time.Duration

func (s Schedule) NextDelay(attempt int) time.Duration {
	if attempt <= 0 || len(s) == 0 {
		return 0
	}
	if attempt > len(s) {
		return s[len(s)-1]
	}
	return s[attempt-1]
}

// DetectionBackoff is the wait schedule applied when the platform looks
// like it is throttling or probing us: 5s after the first failure, 10s
// after the second.
func DetectionBackoff() Schedule {
	return Schedule{5 * time.Second, 10 * time.Second}
}

// ExponentialBackoff implements exponential backoff with optional jitter.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultExponentialBackoff returns a backoff with sensible defaults.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ConstantBackoff waits the same duration between every attempt.
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait sleeps for delay or until ctx is cancelled.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
