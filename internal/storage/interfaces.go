package storage

import (
	"context"
	"time"
)

// ApplicationRepository is the application-state surface used by the
// dialogue engine, identity verification and the HTTP API.
type ApplicationRepository interface {
	GetApplication(ctx context.Context, id string) (*Application, error)
	FindApplicationByNameAndDOB(ctx context.Context, name, dob string) (*Application, error)
	ListApplications(ctx context.Context) ([]*Application, error)
	CountApplicationsByStatus(ctx context.Context) (map[string]int, error)
	UpdateApplicationStatus(ctx context.Context, id, status string, at time.Time) (*StatusChange, error)
	MarkDocumentReceived(ctx context.Context, appID, docID string) (*StatusChange, error)
	ListDocumentsDueBetween(ctx context.Context, from, to time.Time) ([]DueDocument, error)
}

// SessionRepository stores per-conversation dialogue state.
type SessionRepository interface {
	GetSession(ctx context.Context, key string) (*Session, error)
	TouchSession(ctx context.Context, key string) error
	BindSession(ctx context.Context, key, appID string) error
	ClearSession(ctx context.Context, key string) error
}

// AuditRepository stores identity verification attempts.
type AuditRepository interface {
	RecordVerificationAttempt(ctx context.Context, a *VerificationAttempt) error
	ListVerificationAttempts(ctx context.Context, limit int) ([]VerificationAttempt, error)
	CountVerificationAttempts(ctx context.Context, outcome string, since time.Time) (int, error)
}

// NotificationRepository is the notification outbox.
type NotificationRepository interface {
	EnqueueNotification(ctx context.Context, n *Notification) (bool, error)
	ClaimDueNotifications(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	MarkNotificationSent(ctx context.Context, id, archiveKey string, at time.Time) error
	MarkNotificationRetry(ctx context.Context, id, lastErr string, next time.Time) error
	MarkNotificationFailed(ctx context.Context, id, lastErr string) error
	ListNotifications(ctx context.Context, appID string, limit int) ([]*Notification, error)
	CountNotifications(ctx context.Context, status string) (int, error)
}

var (
	_ ApplicationRepository  = (*DB)(nil)
	_ SessionRepository      = (*DB)(nil)
	_ AuditRepository        = (*DB)(nil)
	_ NotificationRepository = (*DB)(nil)
)
