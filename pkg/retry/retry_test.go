package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
)

func TestScheduleNextDelay(t *testing.T) {
	s := Schedule{5 * time.Second, 10 * time.Second}

	assert.Equal(t, 5*time.Second, s.NextDelay(1))
	assert.Equal(t, 10*time.Second, s.NextDelay(2))
	// attempts past the schedule reuse the last delay
	assert.Equal(t, 10*time.Second, s.NextDelay(3))
	assert.Equal(t, time.Duration(0), s.NextDelay(0))
	assert.Equal(t, time.Duration(0), Schedule{}.NextDelay(1))
}

func TestDetectionBackoffSchedule(t *testing.T) {
	s := DetectionBackoff()
	require.Len(t, s, 2)
	assert.Equal(t, 5*time.Second, s[0])
	assert.Equal(t, 10*time.Second, s[1])
}

func TestPolicyDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	p := &Policy{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     errs.IsRetryable,
	}

	err := p.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errs.Newf(errs.KindTransient, "fetch", "connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPolicyDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	cause := errs.Newf(errs.KindBlocking, "scrape", "empty response")
	p := &Policy{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     errs.IsRetryable,
	}

	err := p.Do(context.Background(), func() error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	// the wrapped error keeps its classification so callers can still
	// decide on a strategy switchover
	assert.True(t, errs.IsBlocking(err))
	assert.True(t, errors.Is(err, cause))
}

func TestPolicyDoStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	p := &Policy{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     errs.IsRetryable,
	}

	err := p.Do(context.Background(), func() error {
		attempts++
		return errs.Newf(errs.KindTerminal, "profile", "user does not exist")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "terminal errors must not be retried")
	assert.True(t, errs.IsTerminal(err))
}

func TestPolicyDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Policy{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
		RetryIf:     func(error) bool { return true },
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func() error { return errors.New("keep going") })
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestPolicyDoCallsOnRetry(t *testing.T) {
	var delays []time.Duration
	p := &Policy{
		MaxAttempts: 3,
		Backoff:     Schedule{time.Millisecond, 2 * time.Millisecond},
		RetryIf:     func(error) bool { return true },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	_ = p.Do(context.Background(), func() error { return errors.New("nope") })

	require.Len(t, delays, 2)
	assert.Equal(t, time.Millisecond, delays[0])
	assert.Equal(t, 2*time.Millisecond, delays[1])
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	p := &Policy{
		MaxAttempts: 2,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     func(error) bool { return true },
	}

	got, err := DoWithResult(context.Background(), p, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestExponentialBackoffGrowth(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}

	assert.Equal(t, time.Second, eb.NextDelay(1))
	assert.Equal(t, 2*time.Second, eb.NextDelay(2))
	assert.Equal(t, 4*time.Second, eb.NextDelay(3))
	// capped
	assert.Equal(t, 10*time.Second, eb.NextDelay(10))
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, Wait(context.Background(), 0))
}
