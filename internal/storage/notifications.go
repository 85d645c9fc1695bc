package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClaimLease is how long a claimed notification stays invisible to other
// pollers before it becomes due again.
const ClaimLease = 5 * time.Minute

const notificationColumns = `id, application_id, letter_type, recipient, subject, body, html, dedupe_key,
	status, attempts, last_error, next_attempt_at, archive_key, created_at, sent_at`

// EnqueueNotification inserts n as pending unless a row with the same
// DedupeKey exists. created is false for duplicates, in which case n is
// left as passed.
func (db *DB) EnqueueNotification(ctx context.Context, n *Notification) (created bool, err error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := db.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = now
	}
	n.Status = NotificationPending

	res, err := db.writer.ExecContext(ctx, `
		INSERT INTO notifications (id, application_id, letter_type, recipient, subject, body, html,
			dedupe_key, status, attempts, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(dedupe_key) DO NOTHING`,
		n.ID, n.ApplicationID, n.LetterType, n.Recipient, n.Subject, n.Body, n.HTML,
		n.DedupeKey, n.Status, n.NextAttemptAt.UnixMilli(), n.CreatedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// ClaimDueNotifications returns up to limit pending rows due at now and
// pushes their next attempt out by ClaimLease so concurrent pollers skip
// them. Callers must finish each row with MarkNotificationSent, Retry or
// Failed.
func (db *DB) ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	start := time.Now()
	defer observe(ctx, "claim_due_notifications", start)

	var claimed []*Notification
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
			WHERE status = ? AND next_attempt_at <= ?
			ORDER BY next_attempt_at, created_at
			LIMIT ?`, NotificationPending, now.UnixMilli(), limit)
		if err != nil {
			return fmt.Errorf("select due notifications: %w", err)
		}
		claimed, err = scanNotifications(rows)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]any, 0, len(claimed)+1)
		ids = append(ids, now.Add(ClaimLease).UnixMilli())
		for _, n := range claimed {
			ids = append(ids, n.ID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(claimed)), ",")
		if _, err := tx.ExecContext(ctx,
			`UPDATE notifications SET next_attempt_at = ? WHERE id IN (`+placeholders+`)`, ids...); err != nil {
			return fmt.Errorf("lease notifications: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkNotificationSent records a successful delivery.
func (db *DB) MarkNotificationSent(ctx context.Context, id, archiveKey string, at time.Time) error {
	return db.execOne(ctx, "mark notification sent", `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, last_error = '', archive_key = ?, sent_at = ?
		WHERE id = ?`,
		NotificationSent, archiveKey, at.UnixMilli(), id)
}

// MarkNotificationRetry records a failed attempt and schedules the next one.
func (db *DB) MarkNotificationRetry(ctx context.Context, id, lastErr string, next time.Time) error {
	return db.execOne(ctx, "mark notification retry", `
		UPDATE notifications
		SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		WHERE id = ? AND status = ?`,
		lastErr, next.UnixMilli(), id, NotificationPending)
}

// MarkNotificationFailed gives up on a notification.
func (db *DB) MarkNotificationFailed(ctx context.Context, id, lastErr string) error {
	return db.execOne(ctx, "mark notification failed", `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, last_error = ?
		WHERE id = ?`,
		NotificationFailed, lastErr, id)
}

// SetNotificationArchiveKey records where a sent letter was archived.
func (db *DB) SetNotificationArchiveKey(ctx context.Context, id, archiveKey string) error {
	return db.execOne(ctx, "set archive key",
		`UPDATE notifications SET archive_key = ? WHERE id = ?`, archiveKey, id)
}

// GetNotification returns the notification with id, or nil, nil.
func (db *DB) GetNotification(ctx context.Context, id string) (*Notification, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	list, err := scanNotifications(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListNotifications returns notifications for appID, newest first. An empty
// appID lists across all applications.
func (db *DB) ListNotifications(ctx context.Context, appID string, limit int) ([]*Notification, error) {
	start := time.Now()
	defer observe(ctx, "list_notifications", start)

	var rows *sql.Rows
	var err error
	if appID == "" {
		rows, err = db.reader.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
			ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	} else {
		rows, err = db.reader.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
			WHERE application_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?`, appID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return scanNotifications(rows)
}

// CountNotifications counts rows in the given status.
func (db *DB) CountNotifications(ctx context.Context, status string) (int, error) {
	var n int
	if err := db.reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = ?`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func (db *DB) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := db.writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: no matching notification", op)
	}
	return nil
}

func scanNotifications(rows *sql.Rows) ([]*Notification, error) {
	defer func() { _ = rows.Close() }()

	list := []*Notification{}
	for rows.Next() {
		var n Notification
		var next, created int64
		var sent sql.NullInt64
		if err := rows.Scan(&n.ID, &n.ApplicationID, &n.LetterType, &n.Recipient, &n.Subject, &n.Body,
			&n.HTML, &n.DedupeKey, &n.Status, &n.Attempts, &n.LastError, &next, &n.ArchiveKey,
			&created, &sent); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.NextAttemptAt = time.UnixMilli(next)
		n.CreatedAt = time.UnixMilli(created)
		if sent.Valid {
			n.SentAt = time.UnixMilli(sent.Int64)
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}
