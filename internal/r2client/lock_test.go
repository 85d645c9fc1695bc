package r2client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(store ObjectStore, now *time.Time) *DistributedLock {
	l := NewDistributedLock(store, "locks/test.lock", time.Minute)
	l.now = func() time.Time { return *now }
	return l
}

func TestDistributedLock_AcquireExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	a := newTestLock(store, &now)
	b := newTestLock(store, &now)
	require.NotEqual(t, a.OwnerID(), b.OwnerID())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, a.Held())
	assert.Equal(t, lockContentType, store.ContentType("locks/test.lock"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be taken")
	assert.False(t, b.Held())
}

func TestDistributedLock_TakeOverExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	a := newTestLock(store, &now)
	b := newTestLock(store, &now)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease should be taken over")

	ok, err = a.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "previous holder lost the lease")
	assert.False(t, a.Held())
}

func TestDistributedLock_TakeOverCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	_, err := store.Upload(ctx, "locks/test.lock", strings.NewReader("not json"), "")
	require.NoError(t, err)

	ok, err := newTestLock(store, &now).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_Renew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	a := newTestLock(store, &now)
	b := newTestLock(store, &now)

	ok, err := a.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "renew without holding")

	_, err = a.Acquire(ctx)
	require.NoError(t, err)

	// Renewing just before expiry pushes the deadline out.
	now = now.Add(50 * time.Second)
	ok, err = a.Renew(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(50 * time.Second)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "renewed lease is still live")
}

func TestDistributedLock_Release(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	a := newTestLock(store, &now)
	b := newTestLock(store, &now)

	require.NoError(t, a.Release(ctx), "release of missing lock")

	_, err := a.Acquire(ctx)
	require.NoError(t, err)

	// A non-owner release leaves the lease alone.
	require.NoError(t, b.Release(ctx))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, a.Release(ctx))
	assert.Equal(t, 0, store.Len())
	assert.False(t, a.Held())

	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_Conditional(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	ok, etag, err := s.PutObjectIfNotExists(ctx, "k", strings.NewReader("v1"), "text/plain")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = s.PutObjectIfNotExists(ctx, "k", strings.NewReader("v2"), "text/plain")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = s.PutObjectIfMatch(ctx, "k", strings.NewReader("v2"), "stale", "text/plain")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = s.PutObjectIfMatch(ctx, "k", strings.NewReader("v2"), etag, "text/plain")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = s.Download(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
