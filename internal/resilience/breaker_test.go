package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("openrouter", 2, time.Minute)
	fail := func(context.Context) (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 2; i++ {
		if _, err := Call(context.Background(), b, fail); err == nil {
			t.Fatal("expected error")
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	calls := 0
	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("fallback", 1, time.Second)
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, errors.New("boom") })
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Second)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	v, err := Call(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("trial call failed: %v %d", err, v)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("fallback", 3, time.Second)
	b.now = func() time.Time { return now }
	fail := func(context.Context) (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail)
	}
	now = now.Add(2 * time.Second)
	_, _ = Call(context.Background(), b, fail)

	if b.State() != BreakerOpen {
		t.Fatalf("expected open after failed trial call, got %s", b.State())
	}
}
