package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Do retries fn according to the RetryConfig of the *Error it returns,
// mirroring pkg/agent/retry.go's RetryableClient.Complete. Non-*Error
// failures are retried once under ErrorTypeUnknown's schedule.
func Do[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0
	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		classified, ok := err.(*Error)
		if !ok {
			classified = NewErrorWithCause(ErrorTypeUnknown, err, err.Error())
		}
		if !classified.Retryable() {
			return zero, err
		}
		cfg := classified.RetryConfig()
		if attempt >= cfg.MaxRetries {
			return zero, err
		}

		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	jitter := 0.85 + rand.Float64()*0.3 //nolint:gosec // jitter, not a security-sensitive random
	return time.Duration(d * jitter)
}
