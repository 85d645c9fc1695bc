package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindowCounter approximates a rolling window limit using two fixed
// windows and weighted averaging:
//
//	effective = curr + prev × (remaining time in current window / window)
//
// A nil counter is unlimited.
type SlidingWindowCounter struct {
	mu              sync.Mutex
	currCount       int
	prevCount       int
	currWindowStart time.Time
	windowDuration  time.Duration
	maxRequests     int
	now             Clock
}

// NewSlidingWindowCounter returns nil when maxRequests <= 0 (disabled).
func NewSlidingWindowCounter(maxRequests int, windowDuration time.Duration) *SlidingWindowCounter {
	return newSlidingWindowWithClock(maxRequests, windowDuration, time.Now)
}

func newSlidingWindowWithClock(maxRequests int, windowDuration time.Duration, now Clock) *SlidingWindowCounter {
	if maxRequests <= 0 {
		return nil
	}
	return &SlidingWindowCounter{
		currWindowStart: now(),
		windowDuration:  windowDuration,
		maxRequests:     maxRequests,
		now:             now,
	}
}

// Allow counts the request if the window has room.
func (swc *SlidingWindowCounter) Allow() bool {
	if swc == nil {
		return true
	}

	swc.mu.Lock()
	defer swc.mu.Unlock()

	swc.rotate()
	if swc.weighted() >= float64(swc.maxRequests) {
		return false
	}
	swc.currCount++
	return true
}

// Check reports whether a request would be allowed without counting it.
func (swc *SlidingWindowCounter) Check() bool {
	if swc == nil {
		return true
	}

	swc.mu.Lock()
	defer swc.mu.Unlock()

	swc.rotate()
	return swc.weighted() < float64(swc.maxRequests)
}

// Consume counts a request previously accepted by Check.
func (swc *SlidingWindowCounter) Consume() {
	if swc == nil {
		return
	}

	swc.mu.Lock()
	defer swc.mu.Unlock()

	swc.rotate()
	if swc.weighted() < float64(swc.maxRequests) {
		swc.currCount++
	}
}

// rotate must be called with mu held.
func (swc *SlidingWindowCounter) rotate() {
	elapsed := swc.now().Sub(swc.currWindowStart)
	if elapsed < swc.windowDuration {
		return
	}

	passed := int(elapsed / swc.windowDuration)
	if passed == 1 {
		swc.prevCount = swc.currCount
	} else {
		swc.prevCount = 0
	}
	swc.currCount = 0
	swc.currWindowStart = swc.currWindowStart.Add(time.Duration(passed) * swc.windowDuration)
}

// weighted must be called with mu held.
func (swc *SlidingWindowCounter) weighted() float64 {
	elapsed := swc.now().Sub(swc.currWindowStart)
	overlap := float64(swc.windowDuration-elapsed) / float64(swc.windowDuration)
	overlap = max(0, min(1, overlap))
	return float64(swc.currCount) + float64(swc.prevCount)*overlap
}

// Remaining returns the approximate quota left, or -1 when unlimited.
func (swc *SlidingWindowCounter) Remaining() int {
	if swc == nil {
		return -1
	}

	swc.mu.Lock()
	defer swc.mu.Unlock()

	swc.rotate()
	remaining := float64(swc.maxRequests) - swc.weighted()
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Idle reports whether the counter holds no usage and can be discarded.
func (swc *SlidingWindowCounter) Idle() bool {
	if swc == nil {
		return true
	}

	swc.mu.Lock()
	defer swc.mu.Unlock()

	swc.rotate()
	return swc.weighted() == 0
}
