package oracle

import (
	"context"
	"math/rand"
	"time"

	"lowvibe/internal/logging"
)

// RetryConfig bounds transport retries.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the transport retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// CalculateBackoff returns baseDelay * 2^attempt capped at maxDelay, plus up to 25% jitter.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	if q := int64(delay / 4); q > 0 {
		delay += time.Duration(rand.Int63n(q))
	}
	return delay
}

// withRetry runs fn until it succeeds, fails permanently or the budget is spent.
// Transport failures that outlive the budget come back as *NetworkError.
func withRetry[T any](ctx context.Context, backend string, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(cfg.RetryDelay, attempt-1, cfg.MaxDelay)
			logging.Info("retrying oracle request", "backend", backend, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if looksLikeOverflow(err) {
			return zero, &OverflowError{Err: err}
		}
		if !isRetryable(err) {
			return zero, &NetworkError{Backend: backend, Err: err}
		}
		logging.Warn("oracle request failed, will retry", "backend", backend, "attempt", attempt, "error", err)
	}
	return zero, &NetworkError{Backend: backend, Err: lastErr}
}
