// Package storage is the SQLite application-state store: applications with
// their documents and timelines, chat sessions, the verification audit log
// and the notification outbox.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/garyellow/visadesk/internal/config"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// DB holds a single-connection writer and a pooled reader on the same
// WAL-mode database file. Writes are serialized by the writer pool while
// readers proceed concurrently.
type DB struct {
	writer     *sql.DB
	reader     *sql.DB
	path       string
	sessionTTL time.Duration
	now        func() time.Time
}

// New opens (creating if needed) the database at dbPath and initializes
// the schema. sessionTTL is the idle timeout for verified chat sessions.
func New(ctx context.Context, dbPath string, sessionTTL time.Duration) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	writer, err := sql.Open("sqlite", dsn(dbPath, "immediate"))
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	reader, err := sql.Open("sqlite", dsn(dbPath, "deferred"))
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(8)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)

	db := &DB{
		writer:     writer,
		reader:     reader,
		path:       dbPath,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}

	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := InitSchema(ctx, writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

// dsn applies pragmas through the connection string so that every pooled
// connection gets them, not only the first.
func dsn(path, txlock string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.DatabaseBusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", txlock)
	return "file:" + path + "?" + q.Encode()
}

// Ping checks both pools.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if err := db.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("ping reader: %w", err)
	}
	return nil
}

// Close closes both pools.
func (db *DB) Close() error {
	var firstErr error
	if db.reader != nil {
		firstErr = db.reader.Close()
	}
	if db.writer != nil {
		if err := db.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reader returns the read pool.
func (db *DB) Reader() *sql.DB { return db.reader }

// Writer returns the single-connection write pool.
func (db *DB) Writer() *sql.DB { return db.writer }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// SessionTTL returns the configured session idle timeout.
func (db *DB) SessionTTL() time.Duration { return db.sessionTTL }

// withTx runs fn in a write transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// observe logs operations slower than config.SlowQueryThreshold.
func observe(ctx context.Context, op string, start time.Time) {
	if d := time.Since(start); d > config.SlowQueryThreshold {
		slog.WarnContext(ctx, "slow database operation",
			"operation", op,
			"duration_ms", d.Milliseconds())
	}
}
