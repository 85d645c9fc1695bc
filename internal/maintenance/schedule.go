// Package maintenance keeps shared run times for periodic jobs so that
// several instances run each job once per interval between them.
package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/garyellow/visadesk/internal/r2client"
)

// Job names.
const (
	JobReminders      = "reminders"
	JobSessionCleanup = "session_cleanup"
	JobAuditCleanup   = "audit_cleanup"
)

// State maps job names to their last claimed run (unix seconds).
type State struct {
	Jobs      map[string]int64 `json:"jobs"`
	UpdatedAt int64            `json:"updated_at"`
}

// LastRun returns when job was last claimed, or the zero time.
func (s State) LastRun(job string) time.Time {
	ts, ok := s.Jobs[job]
	if !ok {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// Scheduler decides whether this instance should run a job now.
type Scheduler interface {
	Claim(ctx context.Context, job string, interval time.Duration) (bool, error)
}

type objectClient interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	PutObjectIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	PutObjectIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error)
}

// R2ScheduleStore persists State as one JSON object, updated with etag
// compare-and-swap.
type R2ScheduleStore struct {
	client         objectClient
	key            string
	requestTimeout time.Duration
	now            func() time.Time
}

// NewR2ScheduleStore creates a schedule store at key.
func NewR2ScheduleStore(client objectClient, key string, requestTimeout time.Duration) (*R2ScheduleStore, error) {
	if client == nil {
		return nil, errors.New("maintenance: object client is required")
	}
	if key == "" {
		return nil, errors.New("maintenance: schedule key is required")
	}
	return &R2ScheduleStore{client: client, key: key, requestTimeout: requestTimeout, now: time.Now}, nil
}

// Load returns the state and its etag. exists is false when the object is
// missing. Transient errors are retried up to 3 times.
func (s *R2ScheduleStore) Load(ctx context.Context) (State, string, bool, error) {
	const maxRetries = 3
	var lastErr error
	for attempt := range maxRetries {
		state, etag, exists, err := s.loadOnce(ctx)
		if err == nil {
			return state, etag, exists, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return State{}, "", false, err
		}
		lastErr = err
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return State{}, "", false, ctx.Err()
			case <-time.After(100 * time.Millisecond * time.Duration(attempt+1)):
			}
		}
	}
	return State{}, "", false, lastErr
}

func (s *R2ScheduleStore) loadOnce(ctx context.Context) (State, string, bool, error) {
	readCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	body, etag, err := s.client.Download(readCtx, s.key)
	if errors.Is(err, r2client.ErrNotFound) {
		return State{}, "", false, nil
	}
	if err != nil {
		return State{}, "", false, fmt.Errorf("maintenance: download state: %w", err)
	}
	defer func() { _ = body.Close() }()

	var state State
	if err := json.NewDecoder(body).Decode(&state); err != nil {
		return State{}, "", false, fmt.Errorf("maintenance: decode state: %w", err)
	}
	return state, etag, true, nil
}

// Ensure returns the state and etag, creating an empty object if needed.
func (s *R2ScheduleStore) Ensure(ctx context.Context) (State, string, error) {
	state, etag, exists, err := s.Load(ctx)
	if err != nil {
		return State{}, "", err
	}
	if exists {
		return state, etag, nil
	}

	state = State{Jobs: map[string]int64{}, UpdatedAt: s.now().Unix()}
	data, err := json.Marshal(state)
	if err != nil {
		return State{}, "", fmt.Errorf("maintenance: marshal state: %w", err)
	}
	writeCtx, cancel := s.withTimeout(ctx)
	created, createdETag, err := s.client.PutObjectIfNotExists(writeCtx, s.key, bytes.NewReader(data), "application/json")
	cancel()
	if err != nil {
		return State{}, "", fmt.Errorf("maintenance: create state: %w", err)
	}
	if created {
		return state, createdETag, nil
	}

	// Another instance created it first.
	state, etag, exists, err = s.Load(ctx)
	if err != nil {
		return State{}, "", err
	}
	if !exists {
		return State{}, "", errors.New("maintenance: state missing after create race")
	}
	return state, etag, nil
}

// Claim records a run of job and returns true when at least interval has
// passed since the last claimed run. Losing the compare-and-swap to another
// instance rereads the state before deciding.
func (s *R2ScheduleStore) Claim(ctx context.Context, job string, interval time.Duration) (bool, error) {
	for range 3 {
		state, etag, err := s.Ensure(ctx)
		if err != nil {
			return false, err
		}
		now := s.now()
		if last := state.LastRun(job); !last.IsZero() && now.Sub(last) < interval {
			return false, nil
		}

		if state.Jobs == nil {
			state.Jobs = map[string]int64{}
		}
		state.Jobs[job] = now.Unix()
		state.UpdatedAt = now.Unix()
		data, err := json.Marshal(state)
		if err != nil {
			return false, fmt.Errorf("maintenance: marshal state: %w", err)
		}

		writeCtx, cancel := s.withTimeout(ctx)
		updated, _, err := s.client.PutObjectIfMatch(writeCtx, s.key, bytes.NewReader(data), etag, "application/json")
		cancel()
		if err != nil {
			return false, fmt.Errorf("maintenance: update state: %w", err)
		}
		if updated {
			return true, nil
		}
	}
	return false, errors.New("maintenance: failed to update state after retries")
}

func (s *R2ScheduleStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

// LocalSchedule is the single-instance Scheduler.
type LocalSchedule struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewLocalSchedule creates an in-memory schedule.
func NewLocalSchedule() *LocalSchedule {
	return &LocalSchedule{last: map[string]time.Time{}, now: time.Now}
}

// Claim implements Scheduler.
func (l *LocalSchedule) Claim(_ context.Context, job string, interval time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if last, ok := l.last[job]; ok && now.Sub(last) < interval {
		return false, nil
	}
	l.last[job] = now
	return true, nil
}
