package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	t.Parallel()
	clock := newManualClock()
	l := newWithClock(3, 1, clock.Now)

	for i := range 3 {
		if !l.Allow() {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow() {
		t.Error("4th request should be denied")
	}

	clock.Advance(time.Second)
	if !l.Allow() {
		t.Error("request after refill should be allowed")
	}
}

func TestLimiterRefillCapped(t *testing.T) {
	t.Parallel()
	clock := newManualClock()
	l := newWithClock(2, 10, clock.Now)
	l.Allow()
	l.Allow()

	clock.Advance(time.Hour)
	if got := l.Available(); got != 2 {
		t.Errorf("Available() = %v, want 2", got)
	}
	if !l.IsFull() {
		t.Error("IsFull() = false, want true")
	}
}

func TestLimiterRetryAfter(t *testing.T) {
	t.Parallel()
	clock := newManualClock()
	l := newWithClock(1, 0.5, clock.Now) // one token every 2s

	if got := l.RetryAfter(); got != 0 {
		t.Errorf("RetryAfter() = %v, want 0", got)
	}
	l.Allow()
	if got := l.RetryAfter(); got != 2*time.Second {
		t.Errorf("RetryAfter() = %v, want 2s", got)
	}
	clock.Advance(1500 * time.Millisecond)
	if got := l.RetryAfter(); got != 500*time.Millisecond {
		t.Errorf("RetryAfter() = %v, want 500ms", got)
	}
}

func TestLimiterWait(t *testing.T) {
	t.Parallel()

	t.Run("acquires after refill", func(t *testing.T) {
		t.Parallel()
		l := New(1, 100)
		l.Allow()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.Wait(ctx); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		l := New(1, 0.001)
		l.Allow()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := l.Wait(ctx); err == nil {
			t.Error("Wait() should fail once the context expires")
		}
	})
}

func TestLimiterReset(t *testing.T) {
	t.Parallel()
	l := New(2, 0.001)
	l.Allow()
	l.Allow()
	l.Reset()
	if !l.IsFull() {
		t.Error("Reset() should refill the bucket")
	}
}

func TestLimiterConcurrent(t *testing.T) {
	t.Parallel()
	l := New(50, 0.0001)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			if l.Allow() {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed = %d, want 50", got)
	}
}
