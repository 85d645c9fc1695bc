package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/stringutil"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const applicationColumns = `id, name, date_of_birth, email, visa_type, status,
	submitted_date, expected_completion, COALESCE(approval_date, ''), updated_at`

// SeedApplications inserts applications that do not exist yet. Existing rows
// (and their documents and timelines) are left untouched so restarts never
// overwrite live state. It returns the number of applications inserted.
func (db *DB) SeedApplications(ctx context.Context, apps []Application) (int, error) {
	start := time.Now()
	defer observe(ctx, "seed_applications", start)

	inserted := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now().UnixMilli()
		for _, app := range apps {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO applications (id, name, name_folded, date_of_birth, email, visa_type, status,
					submitted_date, expected_completion, approval_date, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING`,
				app.ID, app.Name, stringutil.Fold(app.Name), app.DateOfBirth, app.Email, app.VisaType, app.Status,
				app.SubmittedDate, app.ExpectedCompletion, nullString(app.ApprovalDate), now)
			if err != nil {
				return fmt.Errorf("seed application %s: %w", app.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			inserted++

			for i, doc := range app.Documents {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO documents (application_id, id, position, name, status, deadline, template)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					app.ID, doc.ID, i, doc.Name, doc.Status, nullString(doc.Deadline), nullString(doc.Template)); err != nil {
					return fmt.Errorf("seed document %s/%s: %w", app.ID, doc.ID, err)
				}
			}
			for _, ev := range app.Timeline {
				if err := insertTimelineEvent(ctx, tx, app.ID, ev); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return inserted, err
}

// GetApplication returns the application with the exact id, or nil, nil.
func (db *DB) GetApplication(ctx context.Context, id string) (*Application, error) {
	start := time.Now()
	defer observe(ctx, "get_application", start)
	return getApplication(ctx, db.reader, id)
}

func getApplication(ctx context.Context, q querier, id string) (*Application, error) {
	row := q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get application %s: %w", id, err)
	}

	byID := map[string]*Application{app.ID: app}
	if err := loadDocuments(ctx, q, byID, `WHERE application_id = ?`, id); err != nil {
		return nil, err
	}
	if err := loadTimelines(ctx, q, byID, `WHERE application_id = ?`, id); err != nil {
		return nil, err
	}
	return app, nil
}

// FindApplicationByNameAndDOB matches a case-insensitive, diacritic-folded
// substring of the applicant name together with an exact date of birth in
// either YYYY-MM-DD or YYYY.MM.DD form. It returns nil, nil when nothing
// matches.
func (db *DB) FindApplicationByNameAndDOB(ctx context.Context, name, dob string) (*Application, error) {
	start := time.Now()
	defer observe(ctx, "find_application_by_name_dob", start)

	folded := stringutil.Fold(name)
	if folded == "" || dob == "" {
		return nil, nil
	}

	var id string
	err := db.reader.QueryRowContext(ctx, `
		SELECT id FROM applications
		WHERE name_folded LIKE '%' || ? || '%' ESCAPE '\'
		  AND (date_of_birth = ? OR REPLACE(date_of_birth, '-', '.') = ?)
		ORDER BY submitted_date, id
		LIMIT 1`,
		sanitizeSearchTerm(folded), dob, dob).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find application by name and dob: %w", err)
	}
	return getApplication(ctx, db.reader, id)
}

// ListApplications returns every application ordered by submission date.
func (db *DB) ListApplications(ctx context.Context) ([]*Application, error) {
	start := time.Now()
	defer observe(ctx, "list_applications", start)

	rows, err := db.reader.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY submitted_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []*Application
	byID := make(map[string]*Application)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
		byID[app.ID] = app
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	if err := loadDocuments(ctx, db.reader, byID, ""); err != nil {
		return nil, err
	}
	if err := loadTimelines(ctx, db.reader, byID, ""); err != nil {
		return nil, err
	}
	return apps, nil
}

// CountApplicationsByStatus returns the number of applications per status.
// Every known status is present in the result, possibly with zero.
func (db *DB) CountApplicationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.reader.QueryContext(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateApplicationStatus moves an application to status in one
// transaction and appends the matching timeline event dated at. Approval
// also sets ApprovalDate.
//
// Errors: ErrInvalidStatus for an unknown status, ErrNotFound for an unknown
// id, ErrStatusUnchanged when the application is already in status.
func (db *DB) UpdateApplicationStatus(ctx context.Context, id, status string, at time.Time) (*StatusChange, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", domerrors.ErrInvalidStatus, status)
	}

	start := time.Now()
	defer observe(ctx, "update_application_status", start)

	var change *StatusChange
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM applications WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("application %s: %w", id, domerrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		if current == status {
			return fmt.Errorf("application %s already %s: %w", id, status, domerrors.ErrStatusUnchanged)
		}

		if err := setStatus(ctx, tx, id, status, at); err != nil {
			return err
		}

		app, err := getApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		change = &StatusChange{Application: app, From: current, To: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func setStatus(ctx context.Context, tx *sql.Tx, id, status string, at time.Time) error {
	date := at.Format(DateLayout)
	query := `UPDATE applications SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{status, at.UnixMilli(), id}
	if status == StatusApproved {
		query = `UPDATE applications SET status = ?, updated_at = ?, approval_date = ? WHERE id = ?`
		args = []any{status, at.UnixMilli(), date, id}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return insertTimelineEvent(ctx, tx, id, TimelineEvent{Step: stepForStatus[status], Date: date})
}

// MarkDocumentReceived flips a document to received. When it was the last
// missing document of an application waiting for documents, the same
// transaction moves the application to under_review. The returned
// StatusChange has From == To when the status did not change.
func (db *DB) MarkDocumentReceived(ctx context.Context, appID, docID string) (*StatusChange, error) {
	start := time.Now()
	defer observe(ctx, "mark_document_received", start)

	var change *StatusChange
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now()

		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM applications WHERE id = ?`, appID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("application %s: %w", appID, domerrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE documents SET status = ?, received_at = COALESCE(received_at, ?)
			WHERE application_id = ? AND id = ?`,
			DocumentReceived, now.UnixMilli(), appID, docID)
		if err != nil {
			return fmt.Errorf("mark document received: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("document %s/%s: %w", appID, docID, domerrors.ErrNotFound)
		}

		newStatus := status
		if status == StatusDocumentsRequired {
			var missing int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM documents WHERE application_id = ? AND status = ?`,
				appID, DocumentMissing).Scan(&missing); err != nil {
				return fmt.Errorf("count missing documents: %w", err)
			}
			if missing == 0 {
				newStatus = StatusUnderReview
				if err := setStatus(ctx, tx, appID, newStatus, now); err != nil {
					return err
				}
			}
		}

		app, err := getApplication(ctx, tx, appID)
		if err != nil {
			return err
		}
		change = &StatusChange{Application: app, From: status, To: newStatus}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// Changed reports whether the transition altered the status.
func (c *StatusChange) Changed() bool { return c != nil && c.From != c.To }

// ListDocumentsDueBetween returns missing documents whose deadline lies in
// [from, to] (inclusive calendar dates).
func (db *DB) ListDocumentsDueBetween(ctx context.Context, from, to time.Time) ([]DueDocument, error) {
	start := time.Now()
	defer observe(ctx, "list_documents_due", start)

	rows, err := db.reader.QueryContext(ctx, `
		SELECT application_id, id, name, status, deadline, COALESCE(template, '')
		FROM documents
		WHERE status = ? AND deadline IS NOT NULL AND deadline BETWEEN ? AND ?
		ORDER BY deadline, application_id, position`,
		DocumentMissing, from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list due documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var due []DueDocument
	for rows.Next() {
		var d DueDocument
		if err := rows.Scan(&d.ApplicationID, &d.Document.ID, &d.Document.Name, &d.Document.Status,
			&d.Document.Deadline, &d.Document.Template); err != nil {
			return nil, fmt.Errorf("scan due document: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(s scanner) (*Application, error) {
	var app Application
	var updated int64
	if err := s.Scan(&app.ID, &app.Name, &app.DateOfBirth, &app.Email, &app.VisaType, &app.Status,
		&app.SubmittedDate, &app.ExpectedCompletion, &app.ApprovalDate, &updated); err != nil {
		return nil, err
	}
	app.UpdatedAt = time.UnixMilli(updated)
	app.Documents = []Document{}
	app.Timeline = []TimelineEvent{}
	return &app, nil
}

func loadDocuments(ctx context.Context, q querier, byID map[string]*Application, where string, args ...any) error {
	rows, err := q.QueryContext(ctx, `
		SELECT application_id, id, name, status, COALESCE(deadline, ''), COALESCE(template, '')
		FROM documents `+where+` ORDER BY application_id, position`, args...)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var appID string
		var d Document
		if err := rows.Scan(&appID, &d.ID, &d.Name, &d.Status, &d.Deadline, &d.Template); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if app, ok := byID[appID]; ok {
			app.Documents = append(app.Documents, d)
		}
	}
	return rows.Err()
}

func loadTimelines(ctx context.Context, q querier, byID map[string]*Application, where string, args ...any) error {
	rows, err := q.QueryContext(ctx, `
		SELECT application_id, step, date FROM timeline_events `+where+` ORDER BY seq`, args...)
	if err != nil {
		return fmt.Errorf("load timeline: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var appID string
		var ev TimelineEvent
		if err := rows.Scan(&appID, &ev.Step, &ev.Date); err != nil {
			return fmt.Errorf("scan timeline event: %w", err)
		}
		if app, ok := byID[appID]; ok {
			app.Timeline = append(app.Timeline, ev)
		}
	}
	return rows.Err()
}

func insertTimelineEvent(ctx context.Context, tx *sql.Tx, appID string, ev TimelineEvent) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO timeline_events (application_id, step, date) VALUES (?, ?, ?)`,
		appID, ev.Step, ev.Date); err != nil {
		return fmt.Errorf("insert timeline event %s: %w", ev.Step, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
