package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const lockContentType = "application/json"

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DistributedLock is a lease stored as one object and guarded by
// conditional writes. A holder must Renew before the TTL runs out;
// an expired lease may be taken over by any other instance.
type DistributedLock struct {
	store   ObjectStore
	key     string
	ttl     time.Duration
	ownerID string
	now     func() time.Time

	mu   sync.Mutex
	etag string // ETag of the lease we hold, empty when not held
}

// NewDistributedLock creates a lock on key with a fresh owner ID.
func NewDistributedLock(store ObjectStore, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		store:   store,
		key:     key,
		ttl:     ttl,
		ownerID: uuid.NewString(),
		now:     time.Now,
	}
}

// OwnerID identifies this instance in the lock body.
func (l *DistributedLock) OwnerID() string { return l.ownerID }

// TTL returns the lease duration.
func (l *DistributedLock) TTL() time.Duration { return l.ttl }

// Held reports whether this instance believes it holds the lease.
func (l *DistributedLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.etag != ""
}

// Acquire takes the lease. It returns false, nil when another live
// holder has it or when a concurrent takeover won the race.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	body, err := l.body()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	created, etag, err := l.store.PutObjectIfNotExists(ctx, l.key, bytes.NewReader(body), lockContentType)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	info, current, err := l.read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		// Released between our two calls; the next tick will create it.
		return false, nil
	case err != nil:
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if info != nil && l.now().Before(info.ExpiresAt) {
		return false, nil
	}

	// Expired or unreadable lease: take it over if nobody else did.
	taken, etag, err := l.store.PutObjectIfMatch(ctx, l.key, bytes.NewReader(body), current, lockContentType)
	if err != nil {
		return false, fmt.Errorf("acquire lock: take over: %w", err)
	}
	if taken {
		l.etag = etag
	}
	return taken, nil
}

// Renew extends a held lease. It returns false, nil when the lease was lost.
func (l *DistributedLock) Renew(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.etag == "" {
		return false, nil
	}
	body, err := l.body()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	ok, etag, err := l.store.PutObjectIfMatch(ctx, l.key, bytes.NewReader(body), l.etag, lockContentType)
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !ok {
		l.etag = ""
		return false, nil
	}
	l.etag = etag
	return true, nil
}

// Release deletes the lease if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { l.etag = "" }()

	info, _, err := l.read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("release lock: %w", err)
	}
	if info != nil && info.Owner != l.ownerID {
		return nil
	}
	if err := l.store.DeleteObject(ctx, l.key); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *DistributedLock) body() ([]byte, error) {
	return json.Marshal(LockInfo{Owner: l.ownerID, ExpiresAt: l.now().Add(l.ttl)})
}

// read returns the current lease and its ETag. A nil info with a nil
// error means the object exists but does not decode.
func (l *DistributedLock) read(ctx context.Context) (*LockInfo, string, error) {
	rc, etag, err := l.store.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read lock: %w", err)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, etag, nil
	}
	return &info, etag, nil
}
