package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(func() time.Time { return now }, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "route:login:addr:10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d denied inside the limit", i+1)
		}
		if decision.Remaining != 3-(i+1) {
			t.Fatalf("remaining after #%d = %d", i+1, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(ctx, "route:login:addr:10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow over limit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("request over the limit was allowed")
	}
	if !decision.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("reset at = %s", decision.ResetAt)
	}

	// Other keys are unaffected.
	if d, _ := limiter.Allow(ctx, "route:login:addr:10.0.0.2", 3, time.Minute); !d.Allowed {
		t.Fatal("different key denied")
	}

	// The window rolls over and the counter resets.
	now = now.Add(time.Minute + time.Second)
	if d, _ := limiter.Allow(ctx, "route:login:addr:10.0.0.1", 3, time.Minute); !d.Allowed || d.Remaining != 2 {
		t.Fatalf("after window rollover: %+v", d)
	}
}

func TestMemoryLimiterZeroLimitDisables(t *testing.T) {
	limiter := NewMemoryLimiter(nil, 0)
	d, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("decision = %+v, err = %v", d, err)
	}
}

func TestMemoryLimiterEvictsExpiredAtCapacity(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(func() time.Time { return now }, 2)
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := limiter.Allow(ctx, "b", 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); err == nil {
		t.Fatal("capacity exceeded without error while buckets are live")
	}

	// Once the live buckets expire, new keys fit again.
	now = now.Add(2 * time.Minute)
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); err != nil {
		t.Fatalf("Allow after expiry sweep: %v", err)
	}
}
