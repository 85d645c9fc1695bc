package notify

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/seed"
	"github.com/garyellow/visadesk/internal/storage"
)

var testNow = time.Date(2024, 4, 13, 9, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(t.Context(), filepath.Join(t.TempDir(), "test.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = seed.Load(t.Context(), db)
	require.NoError(t, err)
	return db
}

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

func newTestService(t *testing.T, db *storage.DB) *Service {
	t.Helper()
	s := NewService(db, db, testLogger(), metrics.New(prometheus.NewRegistry()))
	s.now = func() time.Time { return testNow }
	return s
}

// fakeSender fails the first failures calls, then succeeds.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	err      error
	sent     []*storage.Notification
	calls    int
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, n *storage.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) Sent() []*storage.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*storage.Notification(nil), f.sent...)
}
