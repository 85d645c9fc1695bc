package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/garyellow/visadesk/internal/letters"
	"github.com/garyellow/visadesk/internal/storage"
)

// DefaultReminderLead is how far ahead of a deadline reminders go out.
const DefaultReminderLead = 72 * time.Hour

// DueDocumentLister finds missing documents with upcoming deadlines.
type DueDocumentLister interface {
	ListDocumentsDueBetween(ctx context.Context, from, to time.Time) ([]storage.DueDocument, error)
}

// ReminderKey is the dedupe key for one document deadline.
func ReminderKey(appID, docID, deadline string) string {
	return fmt.Sprintf("reminder:%s:%s:%s", appID, docID, deadline)
}

// SendReminders queues a reminder for every missing document due within
// lead of now. Each (application, document, deadline) is reminded once.
// It returns the number of newly queued reminders.
func (s *Service) SendReminders(ctx context.Context, docs DueDocumentLister, lead time.Duration) (int, error) {
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	now := s.now()
	due, err := docs.ListDocumentsDueBetween(ctx, now, now.Add(lead))
	if err != nil {
		return 0, fmt.Errorf("list due documents: %w", err)
	}

	queued := 0
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		key := ReminderKey(d.ApplicationID, d.Document.ID, d.Document.Deadline)
		_, created, err := s.Notify(ctx, letters.ReminderNotice, d.ApplicationID, key)
		if err != nil {
			s.logger.WithError(err).WarnContext(ctx, "Failed to queue reminder",
				"application_id", d.ApplicationID,
				"document_id", d.Document.ID)
			continue
		}
		if created {
			queued++
		}
	}
	if queued > 0 {
		s.logger.InfoContext(ctx, "Deadline reminders queued", "count", queued)
	}
	return queued, nil
}
