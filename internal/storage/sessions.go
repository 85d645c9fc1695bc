package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetSession returns the session for key, or nil, nil when it is unknown or
// has been idle longer than the session TTL.
func (db *DB) GetSession(ctx context.Context, key string) (*Session, error) {
	var s Session
	var appID sql.NullString
	var verified sql.NullInt64
	var lastSeen int64
	err := db.reader.QueryRowContext(ctx, `
		SELECT key, application_id, verified_at, last_seen_at FROM sessions
		WHERE key = ? AND last_seen_at > ?`,
		key, db.now().Add(-db.sessionTTL).UnixMilli()).Scan(&s.Key, &appID, &verified, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.ApplicationID = appID.String
	if verified.Valid {
		s.VerifiedAt = time.UnixMilli(verified.Int64)
	}
	s.LastSeenAt = time.UnixMilli(lastSeen)
	return &s, nil
}

// CreateSession inserts a new unverified session for key. It fails when
// key is already in use.
func (db *DB) CreateSession(ctx context.Context, key string) error {
	if _, err := db.writer.ExecContext(ctx,
		`INSERT INTO sessions (key, last_seen_at) VALUES (?, ?)`,
		key, db.now().UnixMilli()); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// TouchSession records activity on key, creating an unverified session if
// none exists. An expired session loses its binding instead of being revived.
func (db *DB) TouchSession(ctx context.Context, key string) error {
	now := db.now()
	cutoff := now.Add(-db.sessionTTL).UnixMilli()
	if _, err := db.writer.ExecContext(ctx, `
		INSERT INTO sessions (key, last_seen_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			application_id = CASE WHEN last_seen_at > ? THEN application_id END,
			verified_at = CASE WHEN last_seen_at > ? THEN verified_at END,
			last_seen_at = excluded.last_seen_at`,
		key, now.UnixMilli(), cutoff, cutoff); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// BindSession marks key as verified for appID.
func (db *DB) BindSession(ctx context.Context, key, appID string) error {
	now := db.now().UnixMilli()
	if _, err := db.writer.ExecContext(ctx, `
		INSERT INTO sessions (key, application_id, verified_at, last_seen_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			application_id = excluded.application_id,
			verified_at = excluded.verified_at,
			last_seen_at = excluded.last_seen_at`,
		key, appID, now, now); err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	return nil
}

// ClearSession drops the binding on key, returning the conversation to
// unverified. The session itself stays open.
func (db *DB) ClearSession(ctx context.Context, key string) error {
	if _, err := db.writer.ExecContext(ctx, `
		UPDATE sessions SET application_id = NULL, verified_at = NULL, last_seen_at = ?
		WHERE key = ?`,
		db.now().UnixMilli(), key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions idle for longer than ttl.
func (db *DB) DeleteExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	start := time.Now()
	defer observe(ctx, "delete_expired_sessions", start)

	res, err := db.writer.ExecContext(ctx, `DELETE FROM sessions WHERE last_seen_at <= ?`,
		db.now().Add(-ttl).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// CountVerifiedSessions counts verified sessions that have not expired.
func (db *DB) CountVerifiedSessions(ctx context.Context) (int, error) {
	var n int
	err := db.reader.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE application_id IS NOT NULL AND last_seen_at > ?`,
		db.now().Add(-db.sessionTTL).UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
