// internal/utils/retry.go
package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// RetryPolicy is a bounded retry policy. Backoff receives the 1-based attempt
// that just failed and its error, so call sites can back off longer on
// rate-limit failures.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int, err error) time.Duration
	Retryable   func(err error) bool
	Name        string
}

// ExponentialBackoff doubles from initial up to max. Errors matched by slow
// start from slowInitial instead.
func ExponentialBackoff(initial, max, slowInitial time.Duration, slow func(error) bool) func(int, error) time.Duration {
	return func(attempt int, err error) time.Duration {
		base := initial
		if slow != nil && slow(err) {
			base = slowInitial
		}
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				return max
			}
		}
		if delay > max {
			return max
		}
		return delay
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is wrapped with ErrMaxRetries so
// callers can still errors.Is the underlying cause.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(attempt, err)
		}

		logrus.WithFields(logrus.Fields{
			"operation":    policy.Name,
			"attempt":      attempt,
			"max_attempts": attempts,
			"delay":        delay.String(),
		}).WithError(err).Warn("Operation failed, retrying")

		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempts, lastErr)
}
