package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls per-dispatch retry behavior. Transient failures back
// off exponentially and are capped by MaxAttempts; rate-limit signals wait a
// fixed cooldown and do not consume a transient attempt, bounded only by
// OverallCeiling.
type RetryConfig struct {
	// MaxAttempts is the total number of transient attempts (including the
	// first try). A value of 1 means no transient retries. Default: 3.
	MaxAttempts int

	// BackoffBase is the unit for exponential backoff: the n-th transient
	// retry waits BackoffBase * 2^(n-1). Default: 1s.
	BackoffBase time.Duration

	// Cooldown is the fixed wait after a rate-limit signal. Default: 60s.
	Cooldown time.Duration

	// OverallCeiling caps total attempts of any kind. Zero derives
	// max(10, 3*MaxAttempts).
	OverallCeiling int

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used. Rate-limit errors are always retried.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the transient attempt
	// count so far and the error.
	OnRetry func(attempt int, err error)

	// Sleep is a test seam; nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns a sensible retry configuration for enhancement
// dispatch.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		Cooldown:    60 * time.Second,
	}
}

// DoVal executes fn until it succeeds, a non-retryable error occurs, or the
// attempt budgets are exhausted. Context cancellation stops retries
// immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	attempt := 0 // transient attempts consumed so far

	for total := 0; total < cfg.OverallCeiling; total++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			wait := rl.RetryAfter
			if wait <= 0 {
				wait = cfg.Cooldown
			}
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, err)
			}
			if sleepErr := cfg.Sleep(ctx, wait); sleepErr != nil {
				return zero, lastErr
			}
			continue
		}

		if !shouldRetry(err) {
			return zero, lastErr
		}

		attempt++
		if attempt >= cfg.MaxAttempts {
			return zero, lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		delay := cfg.BackoffBase << (attempt - 1)
		if sleepErr := cfg.Sleep(ctx, delay); sleepErr != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Do executes fn with the same semantics as DoVal for functions without a
// return value.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.OverallCeiling <= 0 {
		cfg.OverallCeiling = max(10, 3*cfg.MaxAttempts)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return cfg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
