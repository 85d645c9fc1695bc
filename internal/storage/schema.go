package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []struct {
	name string
	ddl  string
}{
	{"store_meta", `
	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`},
	{"applications", `
	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_folded TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		email TEXT NOT NULL,
		visa_type TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('documents_required', 'under_review', 'approved', 'rejected')),
		submitted_date TEXT NOT NULL,
		expected_completion TEXT NOT NULL,
		approval_date TEXT,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
	CREATE INDEX IF NOT EXISTS idx_applications_dob ON applications(date_of_birth);
	`},
	{"documents", `
	CREATE TABLE IF NOT EXISTS documents (
		application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('missing', 'received')),
		deadline TEXT,
		template TEXT,
		received_at INTEGER,
		PRIMARY KEY (application_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_deadline ON documents(status, deadline);
	`},
	{"timeline_events", `
	CREATE TABLE IF NOT EXISTS timeline_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		step TEXT NOT NULL,
		date TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_timeline_application ON timeline_events(application_id, seq);
	`},
	{"sessions", `
	CREATE TABLE IF NOT EXISTS sessions (
		key TEXT PRIMARY KEY,
		application_id TEXT REFERENCES applications(id) ON DELETE SET NULL,
		verified_at INTEGER,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at);
	`},
	{"verification_attempts", `
	CREATE TABLE IF NOT EXISTS verification_attempts (
		id TEXT PRIMARY KEY,
		session_key TEXT NOT NULL,
		channel TEXT NOT NULL,
		method TEXT NOT NULL,
		outcome TEXT NOT NULL,
		application_id TEXT,
		input_digest TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON verification_attempts(created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON verification_attempts(outcome, created_at);
	`},
	{"notifications", `
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		letter_type TEXT NOT NULL,
		recipient TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		html TEXT NOT NULL DEFAULT '',
		dedupe_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL CHECK(status IN ('pending', 'sent', 'failed')),
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at INTEGER NOT NULL,
		archive_key TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		sent_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications(status, next_attempt_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_application ON notifications(application_id, created_at);
	`},
}

// InitSchema creates all tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	return nil
}
