// Package backoff computes full-jitter exponential retry delays.
//
//	delay = random(0, min(max, initial * 2^(attempt-1)))
//
// See https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
package backoff

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Ceiling returns the un-jittered delay for attempt (1-based), capped at max.
func Ceiling(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 || initial <= 0 {
		return 0
	}
	exp := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(initial) * exp)
	if delay > max || delay < 0 {
		delay = max
	}
	return delay
}

// FullJitter returns a uniformly random delay in [0, Ceiling(attempt)).
func FullJitter(attempt int, initial, max time.Duration) time.Duration {
	ceiling := Ceiling(attempt, initial, max)
	if ceiling <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(ceiling)))
	if err != nil {
		return ceiling / 2
	}
	return time.Duration(n.Int64())
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasBudget reports whether ctx has at least required time left before its
// deadline. A context without a deadline always has budget.
func HasBudget(ctx context.Context, required time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= required
}
