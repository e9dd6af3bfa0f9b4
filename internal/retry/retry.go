// Package retry runs an operation again with exponential backoff when it
// fails with an error the caller classifies as transient.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // total attempts, at least 1
	InitialWait time.Duration // wait after the first failure
	MaxWait     time.Duration // cap on a single wait
	Multiplier  float64       // backoff growth per attempt
	Jitter      float64       // +/- fraction applied to each wait (0-1)

	// ShouldRetry classifies errors. Nil retries nothing.
	ShouldRetry func(error) bool

	// OnRetry is called before each wait, with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns the settings used for index transactions.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		InitialWait: 10 * time.Millisecond,
		MaxWait:     500 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Backoff returns the wait before the attempt after `attempt` failures.
func (c Config) Backoff(attempt int) time.Duration {
	wait := float64(c.InitialWait) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}
	if c.Jitter > 0 {
		wait += wait * c.Jitter * (rand.Float64()*2 - 1)
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// Do executes fn until it succeeds, fails with a non-retryable error, runs
// out of attempts or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if cfg.ShouldRetry == nil || !cfg.ShouldRetry(err) || attempt == attempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		r, err := fn(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
