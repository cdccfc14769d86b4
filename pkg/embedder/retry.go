package embedder

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy defines exponential backoff for provider calls.
type RetryPolicy struct {
	MaxRetries   int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay cap
	Multiplier   float64       // Exponential backoff multiplier (e.g., 2.0)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// withRetry runs fn until it succeeds, returns a non-retryable error or the
// policy is exhausted.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error, retryable func(error) bool) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= policy.MaxRetries {
			if attempt > 0 {
				return fmt.Errorf("after %d retries: %w", attempt, err)
			}
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(policy.delay(attempt)):
		}
	}
}
