package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordVerificationAttempt appends an audit row. ID and CreatedAt are
// filled in when empty.
func (db *DB) RecordVerificationAttempt(ctx context.Context, a *VerificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = db.now()
	}
	if _, err := db.writer.ExecContext(ctx, `
		INSERT INTO verification_attempts
			(id, session_key, channel, method, outcome, application_id, input_digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionKey, a.Channel, a.Method, a.Outcome, nullString(a.ApplicationID),
		a.InputDigest, a.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("record verification attempt: %w", err)
	}
	return nil
}

// ListVerificationAttempts returns the most recent attempts, newest first.
func (db *DB) ListVerificationAttempts(ctx context.Context, limit int) ([]VerificationAttempt, error) {
	start := time.Now()
	defer observe(ctx, "list_verification_attempts", start)

	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, session_key, channel, method, outcome, COALESCE(application_id, ''), input_digest, created_at
		FROM verification_attempts
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list verification attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attempts := []VerificationAttempt{}
	for rows.Next() {
		var a VerificationAttempt
		var created int64
		if err := rows.Scan(&a.ID, &a.SessionKey, &a.Channel, &a.Method, &a.Outcome,
			&a.ApplicationID, &a.InputDigest, &created); err != nil {
			return nil, fmt.Errorf("scan verification attempt: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CountVerificationAttempts counts attempts with outcome since the given
// time. An empty outcome counts all outcomes.
func (db *DB) CountVerificationAttempts(ctx context.Context, outcome string, since time.Time) (int, error) {
	var n int
	var row *sql.Row
	if outcome == "" {
		row = db.reader.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM verification_attempts WHERE created_at >= ?`, since.UnixMilli())
	} else {
		row = db.reader.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM verification_attempts WHERE outcome = ? AND created_at >= ?`,
			outcome, since.UnixMilli())
	}
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count verification attempts: %w", err)
	}
	return n, nil
}

// DeleteVerificationAttemptsBefore prunes audit rows older than cutoff.
func (db *DB) DeleteVerificationAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.writer.ExecContext(ctx,
		`DELETE FROM verification_attempts WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune verification attempts: %w", err)
	}
	return res.RowsAffected()
}
