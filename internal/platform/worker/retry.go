package worker

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	delayMultiplier     = 2
)

// RetryConfig configures exponential backoff behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns the default retry configuration:
// 3 attempts, 1s initial delay, doubling, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
	}
}

// Retry runs fn with exponential backoff for errors accepted by isRetryable.
// A nil isRetryable retries every error. The last error is returned after the
// final attempt.
func Retry(ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}

	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	var lastErr error

	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry interrupted: %w", ctx.Err())
			case <-time.After(delay):
				delay *= delayMultiplier
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
