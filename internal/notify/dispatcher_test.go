package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/visadesk/internal/archive"
	"github.com/garyellow/visadesk/internal/letters"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/r2client"
	"github.com/garyellow/visadesk/internal/storage"
)

func newTestDispatcher(db *storage.DB, sender Sender, mutate func(*DispatcherConfig)) *Dispatcher {
	cfg := DispatcherConfig{
		Store:        db,
		Sender:       sender,
		Logger:       testLogger(),
		Metrics:      metrics.New(prometheus.NewRegistry()),
		PollInterval: 10 * time.Millisecond,
		Workers:      2,
		MaxAttempts:  3,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDispatcher(cfg)
}

func queue(t *testing.T, s *Service, kind letters.Kind, appID string) *storage.Notification {
	t.Helper()
	n, created, err := s.Notify(t.Context(), kind, appID, "")
	require.NoError(t, err)
	require.True(t, created)
	return n
}

func TestDispatchOnceDeliversAndArchives(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)
	ctx := t.Context()

	ids := []string{
		queue(t, s, letters.StatusUpdate, "WP-2024-1234").ID,
		queue(t, s, letters.AppointmentConfirmation, "SV-2024-7891").ID,
		queue(t, s, letters.ApprovalNotification, "TV-2024-3456").ID,
	}

	sender := &fakeSender{}
	arch := archive.New(r2client.NewMemoryStore(), "letters", nil)
	d := newTestDispatcher(db, sender, func(c *DispatcherConfig) { c.Archive = arch })

	claimed, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, claimed)
	assert.Len(t, sender.Sent(), 3)

	for _, id := range ids {
		n, err := db.GetNotification(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, storage.NotificationSent, n.Status)
		assert.Equal(t, 1, n.Attempts)
		assert.False(t, n.SentAt.IsZero())
		require.Equal(t, arch.Key(n.ApplicationID, n.ID), n.ArchiveKey)

		body, err := arch.Get(ctx, n.ArchiveKey)
		require.NoError(t, err)
		assert.Equal(t, "Subject: "+n.Subject+"\n\n"+n.Body, string(body))
	}

	claimed, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, claimed, "sent rows are not claimed again")
}

func TestDispatchOnceRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)
	ctx := t.Context()
	id := queue(t, s, letters.StatusUpdate, "WP-2024-1234").ID

	sender := &fakeSender{failures: 1, err: errors.New("connection reset")}
	d := newTestDispatcher(db, sender, nil)
	base := time.Now()
	d.now = func() time.Time { return base }

	_, err := d.DispatchOnce(ctx)
	require.NoError(t, err)

	n, err := db.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.NotificationPending, n.Status)
	assert.Equal(t, 1, n.Attempts)
	assert.Equal(t, "connection reset", n.LastError)
	assert.False(t, n.NextAttemptAt.After(base.Add(30*time.Second)), "first retry within the initial delay")

	d.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = d.DispatchOnce(ctx)
	require.NoError(t, err)

	n, err = db.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.NotificationSent, n.Status)
	assert.Equal(t, 2, n.Attempts)
	assert.Empty(t, n.LastError)
}

func TestDispatchOnceGivesUp(t *testing.T) {
	t.Parallel()

	t.Run("permanent error", func(t *testing.T) {
		t.Parallel()
		db := setupDB(t)
		s := newTestService(t, db)
		id := queue(t, s, letters.StatusUpdate, "WP-2024-1234").ID

		sender := &fakeSender{failures: 1, err: Permanent(errors.New("sendgrid: status 400"))}
		d := newTestDispatcher(db, sender, nil)
		_, err := d.DispatchOnce(t.Context())
		require.NoError(t, err)

		n, err := db.GetNotification(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, storage.NotificationFailed, n.Status)
		assert.Equal(t, 1, n.Attempts)
	})

	t.Run("max attempts", func(t *testing.T) {
		t.Parallel()
		db := setupDB(t)
		s := newTestService(t, db)
		id := queue(t, s, letters.StatusUpdate, "WP-2024-1234").ID

		sender := &fakeSender{failures: 10, err: errors.New("503 unavailable")}
		d := newTestDispatcher(db, sender, func(c *DispatcherConfig) { c.MaxAttempts = 2 })
		base := time.Now()

		for i := range 3 {
			d.now = func() time.Time { return base.Add(time.Duration(i) * 2 * time.Hour) }
			_, err := d.DispatchOnce(t.Context())
			require.NoError(t, err)
		}

		n, err := db.GetNotification(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, storage.NotificationFailed, n.Status)
		assert.Equal(t, 2, n.Attempts)
		assert.Equal(t, 2, sender.calls, "failed rows are not retried")
	})
}

func TestDispatcherLeaderElection(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	ctx := t.Context()
	store := r2client.NewMemoryStore()

	d1 := newTestDispatcher(db, &fakeSender{}, func(c *DispatcherConfig) {
		c.Lock = r2client.NewDistributedLock(store, "locks/notify.lock", time.Minute)
	})
	d2 := newTestDispatcher(db, &fakeSender{}, func(c *DispatcherConfig) {
		c.Lock = r2client.NewDistributedLock(store, "locks/notify.lock", time.Minute)
	})

	assert.True(t, d1.ensureLeader(ctx))
	assert.True(t, d1.Leading())
	assert.False(t, d2.ensureLeader(ctx))
	assert.False(t, d2.Leading())

	d1.stepDown()
	assert.False(t, d1.Leading())
	assert.True(t, d2.ensureLeader(ctx))
	d2.stepDown()
	assert.Zero(t, store.Len())
}

func TestDispatcherLocksArePerOutbox(t *testing.T) {
	t.Parallel()
	dbA, dbB := setupDB(t), setupDB(t)
	store := r2client.NewMemoryStore()

	lockFor := func(db *storage.DB) Locker {
		id, err := db.StoreID(t.Context())
		require.NoError(t, err)
		return r2client.NewDistributedLock(store, r2client.ScopedKey("locks/notify.lock", id), time.Minute)
	}
	senderA, senderB := &fakeSender{}, &fakeSender{}
	dA := newTestDispatcher(dbA, senderA, func(c *DispatcherConfig) { c.Lock = lockFor(dbA) })
	dB := newTestDispatcher(dbB, senderB, func(c *DispatcherConfig) { c.Lock = lockFor(dbB) })

	id := queue(t, newTestService(t, dbB), letters.StatusUpdate, "WP-2024-1234").ID

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{}, 2)
	for _, d := range []*Dispatcher{dA, dB} {
		go func() {
			defer func() { done <- struct{}{} }()
			d.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool { return len(senderB.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, dA.Leading, 2*time.Second, 10*time.Millisecond, "each outbox has its own leader")
	assert.True(t, dB.Leading())
	assert.Empty(t, senderA.Sent())

	n, err := dbB.GetNotification(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, storage.NotificationSent, n.Status)

	cancel()
	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not stop after cancel")
		}
	}
	assert.Zero(t, store.Len(), "locks released on stop")
}

func TestDispatcherRun(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)
	queue(t, s, letters.StatusUpdate, "WP-2024-1234")

	sender := &fakeSender{}
	d := newTestDispatcher(db, sender, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Rows queued while running are picked up on a later tick.
	queue(t, s, letters.DocumentRequest, "WP-2024-1234")
	require.Eventually(t, func() bool { return len(sender.Sent()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
