package warmup

import (
	"sync/atomic"
	"time"
)

// ReadinessState reports whether startup warmup has finished. After the
// grace period the service counts as ready even if warmup is still running.
type ReadinessState struct {
	ready     atomic.Bool
	failed    atomic.Bool
	startTime time.Time
	timeout   time.Duration
}

// ReadinessStatus is the readiness body of /readyz.
type ReadinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// NewReadinessState starts the grace period now.
func NewReadinessState(timeout time.Duration) *ReadinessState {
	return &ReadinessState{startTime: time.Now(), timeout: timeout}
}

// IsReady reports whether traffic should be accepted.
func (s *ReadinessState) IsReady() bool {
	if s.ready.Load() {
		return true
	}
	return !s.failed.Load() && time.Since(s.startTime) >= s.timeout
}

// MarkReady records a completed warmup.
func (s *ReadinessState) MarkReady() { s.ready.Store(true) }

// MarkFailed records a failed warmup. The service stays unready until a
// later MarkReady.
func (s *ReadinessState) MarkFailed() { s.failed.Store(true) }

// WarmupCompleted reports whether MarkReady was called.
func (s *ReadinessState) WarmupCompleted() bool { return s.ready.Load() }

// Status describes the current state.
func (s *ReadinessState) Status() ReadinessStatus {
	status := ReadinessStatus{
		Ready:          s.IsReady(),
		ElapsedSeconds: int(time.Since(s.startTime).Seconds()),
		TimeoutSeconds: int(s.timeout.Seconds()),
	}
	switch {
	case s.ready.Load():
	case s.failed.Load():
		status.Reason = "warmup failed"
	case !status.Ready:
		status.Reason = "warmup in progress"
	default:
		status.Reason = "grace period elapsed (warmup may still be running)"
	}
	return status
}
