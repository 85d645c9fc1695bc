package ratelimit

import (
	"sync"
	"time"

	"github.com/garyellow/visadesk/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter.
type KeyedConfig struct {
	// Name labels drops in metrics ("chat", "verify", "llm").
	Name string

	Burst      float64 // bucket capacity
	RefillRate float64 // tokens per second

	// DailyLimit adds a rolling 24h cap. 0 disables it.
	DailyLimit int

	CleanupPeriod time.Duration

	Metrics *metrics.Metrics

	clock Clock
}

// KeyedLimiter keeps one token bucket (plus an optional daily window) per
// key, typically a chat session key. Idle keys are dropped periodically.
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[string]*keyedEntry
	config  KeyedConfig
	stopCh  chan struct{}
	once    sync.Once
}

// keyedEntry.mu makes the two-layer check-then-consume atomic.
type keyedEntry struct {
	mu      sync.Mutex
	limiter *Limiter
	daily   *SlidingWindowCounter
}

// NewKeyedLimiter starts the cleanup goroutine. Call Stop to release it.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		entries: make(map[string]*keyedEntry),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Allow reports whether key may proceed, consuming quota when it may.
// Both the bucket and the daily window must have room. Empty keys are
// never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	entry := kl.entry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.daily.Check() || !entry.limiter.Check() {
		kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
		return false
	}
	entry.daily.Consume()
	entry.limiter.Consume()
	return true
}

// RetryAfter estimates when key may try again. It ignores the daily window
// except to report a full hour when that window is exhausted.
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return 0
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.daily.Check() {
		return time.Hour
	}
	return entry.limiter.RetryAfter()
}

// Forget drops the state for key.
func (kl *KeyedLimiter) Forget(key string) {
	kl.mu.Lock()
	delete(kl.entries, key)
	kl.mu.Unlock()
}

// Available returns the bucket tokens left for key.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.Burst
	}
	return entry.limiter.Available()
}

// DailyRemaining returns the daily quota left for key, or -1 when the
// daily window is disabled.
func (kl *KeyedLimiter) DailyRemaining(key string) int {
	if kl.config.DailyLimit <= 0 {
		return -1
	}

	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.DailyLimit
	}
	return entry.daily.Remaining()
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

func (kl *KeyedLimiter) entry(key string) *keyedEntry {
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return entry
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if entry, ok = kl.entries[key]; ok {
		return entry
	}
	entry = &keyedEntry{
		limiter: newWithClock(kl.config.Burst, kl.config.RefillRate, kl.config.clock),
		daily:   newSlidingWindowWithClock(kl.config.DailyLimit, 24*time.Hour, kl.config.clock),
	}
	kl.entries[key] = entry
	return entry
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

// sweep removes keys whose bucket refilled and whose daily window is empty.
func (kl *KeyedLimiter) sweep() {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, entry := range kl.entries {
		if entry.limiter.IsFull() && entry.daily.Idle() {
			delete(kl.entries, key)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (kl *KeyedLimiter) Stop() {
	kl.once.Do(func() { close(kl.stopCh) })
}
