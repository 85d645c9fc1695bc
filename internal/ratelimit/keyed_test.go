package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/garyellow/visadesk/internal/metrics"
)

func newTestKeyed(t *testing.T, cfg KeyedConfig) (*KeyedLimiter, *manualClock) {
	t.Helper()
	clock := newManualClock()
	cfg.clock = clock.Now
	if cfg.CleanupPeriod == 0 {
		cfg.CleanupPeriod = time.Hour
	}
	kl := NewKeyedLimiter(cfg)
	t.Cleanup(kl.Stop)
	return kl, clock
}

func TestKeyedLimiterPerKey(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "chat", Burst: 1, RefillRate: 1})

	if !kl.Allow("web:a") {
		t.Error("first request for web:a should pass")
	}
	if kl.Allow("web:a") {
		t.Error("second request for web:a should be limited")
	}
	if !kl.Allow("web:b") {
		t.Error("web:b has its own bucket")
	}
	if !kl.Allow("") {
		t.Error("empty key is never limited")
	}
}

// Matches the verification limiter: burst 5, one token per minute, 20/day.
func TestKeyedLimiterVerifyProfile(t *testing.T) {
	t.Parallel()
	kl, clock := newTestKeyed(t, KeyedConfig{
		Name:       "verify",
		Burst:      5,
		RefillRate: 1.0 / 60,
		DailyLimit: 20,
	})

	for i := range 5 {
		if !kl.Allow("s1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if kl.Allow("s1") {
		t.Fatal("6th immediate attempt should be limited")
	}
	if got := kl.RetryAfter("s1"); got != time.Minute {
		t.Errorf("RetryAfter() = %v, want 1m", got)
	}

	// Keep the bucket fed; the daily cap still applies.
	allowed := 5
	for range 40 {
		clock.Advance(time.Minute)
		if kl.Allow("s1") {
			allowed++
		}
	}
	if allowed != 20 {
		t.Errorf("allowed = %d, want 20 (daily limit)", allowed)
	}
	if got := kl.DailyRemaining("s1"); got != 0 {
		t.Errorf("DailyRemaining() = %d, want 0", got)
	}
	if got := kl.RetryAfter("s1"); got != time.Hour {
		t.Errorf("RetryAfter() with exhausted day = %v, want 1h", got)
	}
}

func TestKeyedLimiterSweep(t *testing.T) {
	t.Parallel()
	kl, clock := newTestKeyed(t, KeyedConfig{Name: "chat", Burst: 2, RefillRate: 1})
	kl.Allow("a")
	kl.Allow("b")

	kl.sweep()
	if got := kl.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2 before refill", got)
	}

	clock.Advance(5 * time.Second)
	kl.sweep()
	if got := kl.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after refill", got)
	}
}

func TestKeyedLimiterSweepKeepsDailyUsage(t *testing.T) {
	t.Parallel()
	kl, clock := newTestKeyed(t, KeyedConfig{Name: "llm", Burst: 2, RefillRate: 1, DailyLimit: 10})
	kl.Allow("a")

	clock.Advance(time.Minute)
	kl.sweep()
	if got := kl.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1 while daily usage remains", got)
	}
}

func TestKeyedLimiterForget(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "verify", Burst: 1, RefillRate: 0.001})
	kl.Allow("s")
	kl.Forget("s")
	if !kl.Allow("s") {
		t.Error("Allow() after Forget() should pass")
	}
}

func TestKeyedLimiterRecordsDrops(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "chat", Burst: 1, RefillRate: 0.001, Metrics: m})

	kl.Allow("s")
	kl.Allow("s")
	kl.Allow("s")

	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("chat")); got != 2 {
		t.Errorf("drops = %v, want 2", got)
	}
}

func TestKeyedLimiterConcurrent(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(t, KeyedConfig{Name: "chat", Burst: 10, RefillRate: 0.001})

	var wg sync.WaitGroup
	for i := range 20 {
		key := fmt.Sprintf("k%d", i%4)
		wg.Go(func() {
			for range 10 {
				kl.Allow(key)
			}
		})
	}
	wg.Wait()

	if got := kl.ActiveCount(); got != 4 {
		t.Errorf("ActiveCount() = %d, want 4", got)
	}
	for i := range 4 {
		if got := kl.Available(fmt.Sprintf("k%d", i)); got >= 1 {
			t.Errorf("k%d Available() = %v, want < 1", i, got)
		}
	}
}

func TestKeyedLimiterStopIdempotent(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "x", Burst: 1, RefillRate: 1})
	kl.Stop()
	kl.Stop()
}
