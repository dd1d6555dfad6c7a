package retry

import (
	"context"
	"fmt"
	"time"
)

// Do runs op under the policy, retrying transient failures with exponential
// backoff. It returns nil on the first success, the last error once
// MaxAttempts is exhausted, and short-circuits immediately on errors the
// classifier marks non-retryable. OnRetry, when set, is invoked before each
// backoff wait.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is the generic form of Do for operations returning a value.
func DoValue[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.Config.MaxAttempts; attempt++ {
		// Wait for backoff delay (except on first attempt)
		if attempt > 1 {
			delay := p.CalculateDelay(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-time.After(delay):
					// Continue with retry
				}
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Check if we should retry this error
		if !p.ShouldRetry(err) {
			break
		}

		// If this is the last attempt, don't sleep
		if attempt >= p.Config.MaxAttempts {
			break
		}
	}

	return zero, lastErr
}

// DoTagged is a convenience wrapper fixing MaxAttempts at 3 and tagging the
// terminal error with the calling agent/operation name for diagnostics. It
// performs no logic beyond delegating to the base policy.
func DoTagged(ctx context.Context, name string, op func(ctx context.Context) error) error {
	cfg := DefaultConfig
	cfg.MaxAttempts = 3
	if err := NewPolicy(cfg, nil).Do(ctx, op); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
