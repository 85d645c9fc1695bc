package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/letters"
	"github.com/garyellow/visadesk/internal/storage"
)

func TestNotify(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)
	ctx := t.Context()

	n, created, err := s.Notify(ctx, letters.DocumentRequest, "WP-2024-1234", "doc:WP-2024-1234")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "hans.mueller@email.de", n.Recipient)
	assert.Equal(t, string(letters.DocumentRequest), n.LetterType)
	assert.Contains(t, n.Body, "Employment Contract with Salary Details")
	assert.Contains(t, n.HTML, "<html")
	assert.Equal(t, storage.NotificationPending, n.Status)

	_, created, err = s.Notify(ctx, letters.DocumentRequest, "WP-2024-1234", "doc:WP-2024-1234")
	require.NoError(t, err)
	assert.False(t, created, "same dedupe key")

	// Empty keys never collide.
	for range 2 {
		_, created, err = s.Notify(ctx, letters.DocumentRequest, "WP-2024-1234", "")
		require.NoError(t, err)
		assert.True(t, created)
	}

	list, err := db.ListNotifications(ctx, "WP-2024-1234", 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestNotifyErrors(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)
	ctx := t.Context()

	_, _, err := s.Notify(ctx, "invitation", "WP-2024-1234", "")
	require.ErrorIs(t, err, domerrors.ErrUnknownLetterType)

	_, _, err = s.Notify(ctx, letters.StatusUpdate, "XX-0000-0000", "")
	require.ErrorIs(t, err, domerrors.ErrNotFound)

	n, err := db.CountNotifications(ctx, storage.NotificationPending)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPreview(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)

	letter, err := s.Preview(t.Context(), letters.StatusUpdate, "SV-2024-7891")
	require.NoError(t, err)
	assert.Equal(t, "maria.santos@email.com", letter.To)
	assert.Contains(t, letter.Subject, "SV-2024-7891")

	n, err := db.CountNotifications(t.Context(), storage.NotificationPending)
	require.NoError(t, err)
	assert.Zero(t, n, "preview does not queue")
}

func TestOnStatusChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		appID string
		to    string
		want  []string
	}{
		{"approved", "SV-2024-7891", storage.StatusApproved,
			[]string{string(letters.StatusUpdate), string(letters.ApprovalNotification)}},
		{"rejected", "FR-2024-5678", storage.StatusRejected,
			[]string{string(letters.StatusUpdate), string(letters.RejectionNotice)}},
		{"documents required", "SV-2024-7891", storage.StatusDocumentsRequired,
			[]string{string(letters.StatusUpdate)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			db := setupDB(t)
			s := newTestService(t, db)
			ctx := t.Context()

			change, err := db.UpdateApplicationStatus(ctx, tt.appID, tt.to, testNow)
			require.NoError(t, err)

			queued, err := s.OnStatusChange(ctx, change)
			require.NoError(t, err)
			var got []string
			for _, n := range queued {
				got = append(got, n.LetterType)
			}
			assert.Equal(t, tt.want, got)

			// Replaying the same change queues nothing new.
			again, err := s.OnStatusChange(ctx, change)
			require.NoError(t, err)
			assert.Empty(t, again)
		})
	}
}

func TestOnStatusChangeNoop(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)

	queued, err := s.OnStatusChange(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, queued)

	app, err := db.GetApplication(t.Context(), "WP-2024-1234")
	require.NoError(t, err)
	queued, err = s.OnStatusChange(t.Context(), &storage.StatusChange{Application: app, From: app.Status, To: app.Status})
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestSendReminders(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := newTestService(t, db)
	ctx := t.Context()

	// Hans has two documents due 2024-04-15.
	n, err := s.SendReminders(ctx, db, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SendReminders(ctx, db, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "each deadline is reminded once")

	list, err := db.ListNotifications(ctx, "WP-2024-1234", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, n := range list {
		assert.Equal(t, string(letters.ReminderNotice), n.LetterType)
	}

	// Too early: nothing falls inside a one-day window.
	s.now = func() time.Time { return testNow.AddDate(0, 0, -10) }
	n, err = s.SendReminders(ctx, db, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReminderKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "reminder:WP-2024-1234:passport-copy:2024-04-15",
		ReminderKey("WP-2024-1234", "passport-copy", "2024-04-15"))
}

type noEmailLoader struct{ db *storage.DB }

func (l noEmailLoader) GetApplication(ctx context.Context, id string) (*storage.Application, error) {
	app, err := l.db.GetApplication(ctx, id)
	if app != nil {
		app.Email = ""
	}
	return app, err
}

func TestNotifyMissingRecipient(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := NewService(noEmailLoader{db}, db, testLogger(), nil)

	_, _, err := s.Notify(t.Context(), letters.StatusUpdate, "TV-2024-3456", "")
	require.ErrorIs(t, err, domerrors.ErrMissingRecipient)
	assert.Equal(t, "application TV-2024-3456 has no email address on file", domerrors.GetUserMessage(err))
}
