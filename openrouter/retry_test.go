package openrouter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsAfterTransientError(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", ErrorFromStatusCode(503, "unavailable", "", nil)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(401, "invalid key", "", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(500, "oops", "", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// initial attempt + MaxRetries
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry429GatedByPolicy(t *testing.T) {
	calls := 0
	policy := fastPolicy()
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(429, "slow down", "", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("429 without Retry429 should not be retried, got %d calls", calls)
	}

	calls = 0
	policy.Retry429 = true
	_, err = Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(429, "slow down", "", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls with Retry429, got %d", calls)
	}
}

func TestRetry429HonorsRetryAfter(t *testing.T) {
	calls := 0
	after := 0.001
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", ErrorFromStatusCode(429, "slow down", "", &after)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected retry when Retry-After is present, got %d calls", calls)
	}
}

func TestRetry429RetryAfterBeyondMaxDelay(t *testing.T) {
	calls := 0
	after := 60.0 // above MaxDelay
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", ErrorFromStatusCode(429, "slow down", "", &after)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected immediate failure, got %d calls", calls)
	}
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := fastPolicy()
	policy.BaseDelay = 1.0 // long enough that ctx.Done wins the select
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return "", ErrorFromStatusCode(500, "oops", "", nil)
	})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T", err)
	}
}

func TestDelayBackoff(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 0.25, MaxDelay: 3.0, BackoffMultiplier: 2.0}
	if got := policy.Delay(0); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
	if got := policy.Delay(1); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
	if got := policy.Delay(10); got != 3*time.Second {
		t.Errorf("expected cap at 3s, got %v", got)
	}
}

func TestDelayJitterBounds(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, MaxDelay: 30.0, BackoffMultiplier: 2.0, Jitter: true}
	for i := 0; i < 100; i++ {
		d := policy.Delay(0)
		if d < 500*time.Millisecond || d >= 1500*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %v", d)
		}
	}
}
