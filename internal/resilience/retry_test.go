package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Cooldown:    time.Millisecond,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsTransientAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls++
		return errors.New("permanent error: bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RateLimitDoesNotConsumeTransientAttempts(t *testing.T) {
	var calls int
	cfg := fastConfig()
	cfg.OverallCeiling = 20

	// 5 rate-limit signals followed by 2 transient failures and a success
	// must complete: the cooldowns do not count against MaxAttempts.
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls <= 5 {
			return NewRateLimitError(errors.New("quota exceeded"), 0)
		}
		if calls <= 7 {
			return NewTransientError(errors.New("flaky"), 502)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 8 {
		t.Errorf("expected 8 calls, got %d", calls)
	}
}

func TestDo_RateLimitBoundedByOverallCeiling(t *testing.T) {
	var calls int
	cfg := fastConfig()
	cfg.OverallCeiling = 4

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewRateLimitError(errors.New("quota exceeded"), 0)
	})
	if err == nil {
		t.Fatal("expected error after hitting overall ceiling")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_RateLimitUsesCooldown(t *testing.T) {
	var slept []time.Duration
	cfg := fastConfig()
	cfg.Cooldown = 42 * time.Millisecond
	cfg.OverallCeiling = 5
	cfg.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	var calls int
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return NewRateLimitError(errors.New("quota"), 0)
		}
		return nil
	})

	if len(slept) != 1 || slept[0] != 42*time.Millisecond {
		t.Errorf("expected one cooldown sleep of 42ms, got %v", slept)
	}
}

func TestDo_TransientBackoffDoubles(t *testing.T) {
	var slept []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 4,
		BackoffBase: 10 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("flaky"), 500)
	})

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	val, err := DoVal(context.Background(), fastConfig(), func(_ context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 7 {
		t.Errorf("expected 7, got %d", val)
	}
}

func TestDoVal_ContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	_, err := DoVal(ctx, fastConfig(), func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("flaky"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
