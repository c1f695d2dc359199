package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/sean-she/photoflow-storage/errors"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0
	defaultJitter         = 0.1
)

// RetryConfig controls how Retry spaces and filters attempts.
type RetryConfig struct {
	// MaxAttempts caps the total number of calls, first try included.
	MaxAttempts int
	// InitialBackoff is the wait after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// BackoffFactor multiplies the wait after each failure.
	BackoffFactor float64
	// Jitter randomizes each wait by up to this fraction in either
	// direction.
	Jitter float64
	// RetryIf reports whether an error is worth another attempt.
	// Nil means DefaultRetryIf.
	RetryIf func(error) bool
	// OnRetry observes each failed attempt before the wait.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig is three attempts with exponential backoff from
// 100ms up to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
		Jitter:         defaultJitter,
		RetryIf:        DefaultRetryIf,
	}
}

// DefaultRetryIf rules out context cancellation, then defers to the
// error's own classification when it carries one. Unclassified errors
// are retried.
func DefaultRetryIf(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// normalize fills zero fields with the package defaults.
func (c RetryConfig) normalize() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	return c
}

// Retry calls fn until it succeeds, RetryIf rules the error out, the
// attempts are exhausted, or ctx is done. Waits between attempts are
// context-aware.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	cfg = cfg.normalize()
	var zero T

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !cfg.RetryIf(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		wait := backoffFor(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffFor is InitialBackoff * BackoffFactor^(attempt-1), jittered,
// then capped at MaxBackoff.
func backoffFor(attempt int, cfg RetryConfig) time.Duration {
	wait := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if cfg.Jitter > 0 {
		wait += (rand.Float64()*2 - 1) * wait * cfg.Jitter
	}
	if wait > float64(cfg.MaxBackoff) {
		wait = float64(cfg.MaxBackoff)
	}
	if wait < 0 {
		wait = float64(cfg.InitialBackoff)
	}
	return time.Duration(wait)
}
