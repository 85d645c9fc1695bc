package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestDB opens a fresh file-backed database. A file is required because
// the reader and writer pools must share one database.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"), 30*time.Minute)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewCreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "visadesk.db")
	db, err := New(context.Background(), path, time.Minute)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSchemaIdempotent(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	if err := InitSchema(context.Background(), db.Writer()); err != nil {
		t.Errorf("second InitSchema() error = %v", err)
	}
}

func TestWALMode(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	var mode string
	if err := db.Reader().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()
	seedFixture(t, db)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 16 {
		wg.Go(func() {
			if _, err := db.GetApplication(ctx, "WP-2024-1234"); err != nil {
				errs <- err
			}
		})
		wg.Go(func() {
			key := "web:" + string(rune('a'+i))
			if err := db.TouchSession(ctx, key); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}
}
