// Package external provides the outbound transport layer shared by all
// notification channels: a reusable bounded-retry helper and an HTTP client
// that enforces circuit breaking and consistent error mapping on every call
// to a provider API or webhook endpoint.
package external

import (
	"context"
	"time"
)

// RetryPolicy defines the exponential backoff parameters for outbound calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the standard channel-dispatch policy: up to
// three attempts, 200ms initial delay, doubling each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// delay returns the wait duration before retrying after the given attempt
// (0-based). delay(0) == BaseDelay, delay(1) == BaseDelay*Multiplier, etc.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Retry runs op up to policy.MaxAttempts times, sleeping with exponential
// backoff between attempts. It returns op's first success, or the final
// error once attempts are exhausted. The sleep is context-aware: a canceled
// context aborts the wait and returns the context error.
//
// Retry is the single retry loop shared by all channel dispatchers; the
// per-channel protocol code never duplicates it.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// A dead context will not get better on the next attempt.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
