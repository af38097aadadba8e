package vector

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures the embedding provider's retry behavior (spec.md
// §4.7 "Provider failure": base 500ms, max 3 attempts, jitter). Jitter is
// added here since concurrent embedding batches would otherwise retry in
// lockstep.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFrac   float64 // fraction of delay to randomize, e.g. 0.2 = ±20%
}

// DefaultRetryConfig matches spec.md §4.7 exactly: base 500ms, 3 attempts,
// doubling backoff, capped, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		Multiplier:  2.0,
		JitterFrac:  0.2,
	}
}

// jitterSource abstracts the randomness so callers (and tests) can make
// backoff deterministic without a real RNG.
type jitterSource func(frac float64) float64

// withRetry runs fn up to cfg.MaxAttempts times with exponential backoff
// between attempts, honoring ctx cancellation. jitter, if nil, adds no
// randomization.
func withRetry(ctx context.Context, cfg RetryConfig, jitter jitterSource, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if jitter != nil && cfg.JitterFrac > 0 {
			wait += time.Duration(float64(delay) * jitter(cfg.JitterFrac))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("embed: failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
