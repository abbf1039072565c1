// Package retry provides bounded retry with exponential backoff for
// fallible network operations.
package retry

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultMaxRetries is the default number of retries after the
	// initial attempt.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the default base delay for exponential backoff.
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay caps the exponential backoff delay.
	DefaultMaxDelay = 5 * time.Second
)

// Config holds the retry policy.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt,
	// so an operation runs at most MaxRetries+1 times.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
}

// DefaultConfig returns the retry policy used for all measurements.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// DelayForAttempt returns the backoff delay applied before retry number
// attempt+1: base * 2^attempt, capped at MaxDelay.
func (c Config) DelayForAttempt(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay || delay < 0 {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Result reports the outcome of a retried operation.
type Result[T any] struct {
	// Value is the operation's result when Err is nil.
	Value T

	// Err is the error from the final attempt, nil on success.
	Err error

	// Attempts is the number of times the operation ran. On total
	// failure this always equals MaxRetries+1.
	Attempts int
}

// Success reports whether the operation eventually succeeded.
func (r Result[T]) Success() bool {
	return r.Err == nil
}

// Do runs op until it succeeds or the retry budget is exhausted.
//
// The first attempt runs immediately; before each retry Do sleeps the
// configured backoff delay. Every failure is retried uniformly; no
// attempt is made to distinguish transient from permanent errors. Each
// failure is logged under the given label. Cancelling ctx cuts a
// backoff sleep short and surfaces the context error as the final
// failure.
func Do[T any](ctx context.Context, cfg Config, logger *slog.Logger, label string, op func(context.Context) (T, error)) Result[T] {
	totalAttempts := cfg.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < totalAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.DelayForAttempt(attempt - 1)
			logger.Debug("retrying",
				"operation", label,
				"attempt", attempt+1,
				"total", totalAttempts,
				"delay", delay.String(),
			)
			if err := sleep(ctx, delay); err != nil {
				return Result[T]{Err: err, Attempts: totalAttempts}
			}
		}

		value, err := op(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt + 1}
		}
		lastErr = err

		logger.Warn("attempt_failed",
			"operation", label,
			"attempt", attempt+1,
			"total", totalAttempts,
			"error", err,
		)
	}

	return Result[T]{Err: lastErr, Attempts: totalAttempts}
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
