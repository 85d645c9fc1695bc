package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/letters"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/storage"
)

// ApplicationLoader loads the application a letter is addressed to.
type ApplicationLoader interface {
	GetApplication(ctx context.Context, id string) (*storage.Application, error)
}

// Outbox accepts rendered notifications.
type Outbox interface {
	EnqueueNotification(ctx context.Context, n *storage.Notification) (bool, error)
}

// Service renders letters and queues them for delivery.
type Service struct {
	apps    ApplicationLoader
	outbox  Outbox
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service.
func NewService(apps ApplicationLoader, outbox Outbox, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		apps:    apps,
		outbox:  outbox,
		logger:  log.WithModule("notify"),
		metrics: m,
		now:     time.Now,
	}
}

// Preview renders a letter without queueing it.
func (s *Service) Preview(ctx context.Context, kind letters.Kind, appID string) (*letters.Letter, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domerrors.ErrUnknownLetterType, kind)
	}
	app, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("load application: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("application %s: %w", appID, domerrors.ErrNotFound)
	}
	return letters.Render(kind, app, s.now())
}

var enqueueErrors = domerrors.NewWrapper("notify", "enqueue_letter")

// Notify renders kind for appID and enqueues it. Calls sharing a non-empty
// dedupeKey enqueue at most once; created reports whether this call did.
// An empty dedupeKey always enqueues.
func (s *Service) Notify(ctx context.Context, kind letters.Kind, appID, dedupeKey string) (n *storage.Notification, created bool, err error) {
	letter, err := s.Preview(ctx, kind, appID)
	if err != nil {
		return nil, false, err
	}
	if letter.To == "" {
		return nil, false, enqueueErrors.Wrapf(domerrors.ErrMissingRecipient, "application %s has no email address on file", appID)
	}
	if dedupeKey == "" {
		dedupeKey = "manual:" + uuid.NewString()
	}

	n = &storage.Notification{
		ApplicationID: appID,
		LetterType:    string(kind),
		Recipient:     letter.To,
		Subject:       letter.Subject,
		Body:          letter.Body,
		HTML:          letter.HTML,
		DedupeKey:     dedupeKey,
	}
	created, err = s.outbox.EnqueueNotification(ctx, n)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	if !created {
		s.logger.DebugContext(ctx, "Notification already queued",
			"application_id", appID,
			"dedupe_key", dedupeKey)
		s.metrics.RecordNotification(string(kind), "duplicate")
		return n, false, nil
	}

	s.logger.InfoContext(ctx, "Notification queued",
		"notification_id", n.ID,
		"application_id", appID,
		"letter_type", kind)
	s.metrics.RecordNotification(string(kind), "queued")
	return n, true, nil
}

// OnStatusChange queues the letters a transition triggers: always a status
// update, plus an approval or rejection letter for those outcomes.
// A nil or no-op change queues nothing.
func (s *Service) OnStatusChange(ctx context.Context, change *storage.StatusChange) ([]*storage.Notification, error) {
	if !change.Changed() || change.Application == nil {
		return nil, nil
	}

	kinds := []letters.Kind{letters.StatusUpdate}
	switch change.To {
	case storage.StatusApproved:
		kinds = append(kinds, letters.ApprovalNotification)
	case storage.StatusRejected:
		kinds = append(kinds, letters.RejectionNotice)
	}

	appID := change.Application.ID
	stamp := strconv.FormatInt(change.Application.UpdatedAt.UnixMilli(), 10)

	var queued []*storage.Notification
	for _, kind := range kinds {
		key := fmt.Sprintf("%s:%s:%s->%s:%s", kind, appID, change.From, change.To, stamp)
		n, created, err := s.Notify(ctx, kind, appID, key)
		if err != nil {
			return queued, err
		}
		if created {
			queued = append(queued, n)
		}
	}
	return queued, nil
}
