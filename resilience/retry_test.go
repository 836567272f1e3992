package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halcyonlabs/patternflow/core"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	attempts, err := Retry(context.Background(), cfg, core.IsTransient, func() error {
		calls++
		if calls < 3 {
			return core.Transient(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("expected 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	attempts, err := Retry(context.Background(), cfg, core.IsTransient, func() error {
		calls++
		return core.Transient(errors.New("always down"))
	})
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("expected exactly 3 attempts, got attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	attempts, err := Retry(context.Background(), cfg, core.IsTransient, func() error {
		calls++
		return core.NewError(core.KindValidationFailure, "op", "bad args")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("permanent errors must not retry: attempts=%d calls=%d", attempts, calls)
	}
}

func TestRetrySkipsBackoffWhenBudgetTooSmall(t *testing.T) {
	// Backoff ceiling far exceeds the context budget, so the retry loop must
	// give up after the first failure rather than sleep.
	cfg := &RetryConfig{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	calls := 0
	_, err := Retry(ctx, cfg, core.IsTransient, func() error {
		calls++
		return core.Transient(errors.New("slow upstream"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Error("retry must not sleep past the deadline budget")
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, cfg, core.IsTransient, func() error {
		t.Fatal("fn must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
