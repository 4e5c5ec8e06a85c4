// Package retry provides retry logic with exponential backoff.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/debsources/debsources/internal/archerr"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // Maximum number of attempts (0 = infinite)
	InitialWait time.Duration // Initial wait time
	MaxWait     time.Duration // Maximum wait time
	Multiplier  float64       // Backoff multiplier
	Jitter      float64       // Jitter factor (0-1)

	// ShouldRetry reports whether err is transient. Defaults to
	// archerr.Retryable, which admits only registry outages.
	ShouldRetry func(error) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Do executes fn with retries.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn with retries and returns a result.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = archerr.Retryable
	}

	var result T
	var lastErr error

	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return result, err
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if cfg.MaxAttempts != 0 && attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return result, lastErr
}

// backoff returns the wait after the given failed attempt.
func backoff(cfg Config, attempt int) time.Duration {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}

	if cfg.Jitter > 0 {
		jitter := wait * cfg.Jitter * (rand.Float64()*2 - 1)
		wait += jitter
	}
	return time.Duration(wait)
}
