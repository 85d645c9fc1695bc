package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/visadesk/internal/bot"
	"github.com/garyellow/visadesk/internal/dashboard"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/notify"
	"github.com/garyellow/visadesk/internal/ratelimit"
	"github.com/garyellow/visadesk/internal/seed"
	"github.com/garyellow/visadesk/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	staffUser = "staff"
	staffPass = "s3cret"
)

// fakeProcessor echoes messages and records session keys.
type fakeProcessor struct {
	reply   *bot.Reply
	err     error
	keys    []string
	clients []string
}

func (f *fakeProcessor) Greeting() *bot.Reply { return bot.NewReply(bot.IntentGreeting, bot.GreetingText) }

func (f *fakeProcessor) Process(_ context.Context, in bot.Input) (*bot.Reply, error) {
	f.keys = append(f.keys, in.SessionKey)
	f.clients = append(f.clients, in.ClientKey)
	if strings.TrimSpace(in.Text) == "" {
		return nil, nil
	}
	if f.err != nil || f.reply != nil {
		return f.reply, f.err
	}
	return bot.NewReply(bot.IntentDefault, "echo: "+in.Text), nil
}

type testEnv struct {
	db        *storage.DB
	router    *gin.Engine
	processor *fakeProcessor
}

func setup(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	db, err := storage.New(t.Context(), filepath.Join(t.TempDir(), "api.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = seed.Load(t.Context(), db)
	require.NoError(t, err)

	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	proc := &fakeProcessor{}
	cfg := Config{
		Processor:            proc,
		Store:                db,
		Dashboard:            dashboard.NewBuilder(db),
		Notifier:             notify.NewService(db, db, log, m),
		Logger:               log,
		Metrics:              m,
		NotifyOnStatusChange: true,
		StaffUsername:        staffUser,
		StaffPassword:        staffPass,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	r := NewEngine(log, m)
	New(cfg).Register(r)
	return &testEnv{db: db, router: r, processor: proc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, staff bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if staff {
		req.SetBasicAuth(staffUser, staffPass)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// openSession creates a chat session and returns its messages path.
func (e *testEnv) openSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/chat/sessions", nil, false)
	require.Equal(t, http.StatusCreated, w.Code)
	return "/api/chat/sessions/" + decode[SessionResponse](t, w).SessionID + "/messages"
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestChatSession(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodPost, "/api/chat/sessions", nil, false)
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[SessionResponse](t, w)
	require.NotEmpty(t, sess.SessionID)
	assert.Equal(t, bot.IntentGreeting, sess.Reply.Intent)
	assert.Equal(t, bot.GreetingText, sess.Reply.Text)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	path := "/api/chat/sessions/" + sess.SessionID + "/messages"
	w = e.do(t, http.MethodPost, path, map[string]string{"text": "WP-2024-1234"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[bot.Reply](t, w)
	assert.Equal(t, "echo: WP-2024-1234", reply.Text)
	assert.Equal(t, []string{"web:" + sess.SessionID}, e.processor.keys)
	assert.Equal(t, []string{"ip:192.0.2.1"}, e.processor.clients, "client address is passed for verification limits")

	w = e.do(t, http.MethodPost, path, map[string]string{"text": "   "}, false)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestChatMessageValidation(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"bad session id", "/api/chat/sessions/not-a-uuid/messages", map[string]string{"text": "hi"}},
		{"missing text", "/api/chat/sessions/7d3b2a5e-2f7c-4a8e-9b1d-4c6f8e0a1b2c/messages", map[string]string{}},
		{"invalid json", "/api/chat/sessions/7d3b2a5e-2f7c-4a8e-9b1d-4c6f8e0a1b2c/messages", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.path, tt.body, false)
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, "invalid_request", resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestChatUnknownSession(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	// Client-chosen ids are not sessions.
	w := e.do(t, http.MethodPost, "/api/chat/sessions/7d3b2a5e-2f7c-4a8e-9b1d-4c6f8e0a1b2c/messages",
		map[string]string{"text": "WP-2024-1234"}, false)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error)
	assert.Empty(t, e.processor.keys, "unknown sessions never reach the processor")
}

func TestSessionCreationRateLimited(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "session",
		Burst:         2,
		RefillRate:    1.0 / 60,
		CleanupPeriod: time.Hour,
	})
	t.Cleanup(limiter.Stop)
	e := setup(t, func(c *Config) { c.SessionLimiter = limiter })

	for range 2 {
		e.openSession(t)
	}
	w := e.do(t, http.MethodPost, "/api/chat/sessions", nil, false)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, w).Error)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestChatRateLimited(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	reply := bot.NewReply(bot.IntentRateLimited, bot.RateLimitedText)
	reply.RetryAfter = 1500 * time.Millisecond
	e.processor.reply = reply

	w := e.do(t, http.MethodPost, e.openSession(t), map[string]string{"text": "hello"}, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, bot.RateLimitedText, decode[bot.Reply](t, w).Text)
}

func TestChatProcessorError(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	e.processor.err = errors.New("database is locked")

	w := e.do(t, http.MethodPost, e.openSession(t), map[string]string{"text": "hello"}, false)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, resp.Message, "locked")
}

func TestApplications(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodGet, "/api/applications", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Applications []storage.Application `json:"applications"`
	}](t, w)
	assert.Len(t, list.Applications, 4)

	w = e.do(t, http.MethodGet, "/api/applications/SV-2024-7891", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	app := decode[storage.Application](t, w)
	assert.Equal(t, "Maria Santos", app.Name)
	assert.Len(t, app.Documents, 3)

	w = e.do(t, http.MethodGet, "/api/applications/XX-0000-0000", nil, false)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error)

	w = e.do(t, http.MethodGet, "/api/applications/XX-0000-0000/notifications", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLookupApplication(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodGet, "/api/applications/lookup?name=hans+m%C3%BCller&dob=1985.03.15", nil, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	tests := []struct {
		name  string
		query string
		code  int
		want  string
	}{
		{"Folded name, dotted date", "name=HANS+MUELLER&dob=1985.03.15", http.StatusOK, "WP-2024-1234"},
		{"Partial name", "name=mueller&dob=1985-03-15", http.StatusOK, "WP-2024-1234"},
		{"Wrong date", "name=mueller&dob=1985-03-16", http.StatusNotFound, ""},
		{"Missing date", "name=mueller", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/api/applications/lookup?"+tt.query, nil, true)
			require.Equal(t, tt.code, w.Code)
			if tt.want != "" {
				assert.Equal(t, tt.want, decode[storage.Application](t, w).ID)
			}
		})
	}
}

func TestDashboard(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodGet, "/api/dashboard", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[dashboard.Dashboard](t, w)
	assert.Equal(t, dashboard.Stats{TotalApplications: 4, Approved: 1, Pending: 3, AutomationRate: "90%"}, d.Stats)
	assert.Len(t, d.Applications, 4)
	assert.Len(t, d.Performance, 4)
}

func TestStaffAuth(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodPut, "/api/applications/SV-2024-7891/status", map[string]string{"status": "approved"}, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="staff"`, w.Header().Get("WWW-Authenticate"))

	// No password configured: staff routes stay closed.
	closed := setup(t, func(c *Config) { c.StaffPassword = "" })
	req := httptest.NewRequest(http.MethodPost, "/api/letters/preview", strings.NewReader(`{}`))
	req.SetBasicAuth(staffUser, "")
	rec := httptest.NewRecorder()
	closed.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodPut, "/api/applications/SV-2024-7891/status", map[string]string{"status": "approved"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[StatusChangeResponse](t, w)
	assert.Equal(t, storage.StatusUnderReview, resp.From)
	assert.Equal(t, storage.StatusApproved, resp.To)
	assert.True(t, resp.StatusChanged)
	assert.NotEmpty(t, resp.Application.ApprovalDate)
	require.Len(t, resp.Notifications, 2)
	assert.Equal(t, "status_update", resp.Notifications[0].LetterType)
	assert.Equal(t, "approval_notification", resp.Notifications[1].LetterType)

	w = e.do(t, http.MethodGet, "/api/applications/SV-2024-7891/notifications", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Notifications []storage.Notification `json:"notifications"`
	}](t, w).Notifications, 2)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unchanged", "/api/applications/SV-2024-7891/status", map[string]string{"status": "approved"}, http.StatusConflict},
		{"invalid status", "/api/applications/SV-2024-7891/status", map[string]string{"status": "archived"}, http.StatusBadRequest},
		{"missing status", "/api/applications/SV-2024-7891/status", map[string]string{}, http.StatusBadRequest},
		{"unknown application", "/api/applications/XX-0000-0000/status", map[string]string{"status": "approved"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPut, tt.path, tt.body, true)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestUpdateStatusWithoutNotifications(t *testing.T) {
	t.Parallel()
	e := setup(t, func(c *Config) { c.NotifyOnStatusChange = false })

	w := e.do(t, http.MethodPut, "/api/applications/FR-2024-5678/status", map[string]string{"status": "rejected"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[StatusChangeResponse](t, w).Notifications)
}

func TestMarkDocumentReceived(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodPost, "/api/applications/WP-2024-1234/documents/employment-contract/received", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[StatusChangeResponse](t, w)
	assert.False(t, resp.StatusChanged, "one document still missing")
	assert.Empty(t, resp.Notifications)

	w = e.do(t, http.MethodPost, "/api/applications/WP-2024-1234/documents/language-certificate/received", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[StatusChangeResponse](t, w)
	assert.True(t, resp.StatusChanged)
	assert.Equal(t, storage.StatusUnderReview, resp.To)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "status_update", resp.Notifications[0].LetterType)

	w = e.do(t, http.MethodPost, "/api/applications/WP-2024-1234/documents/nope/received", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLetters(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)

	w := e.do(t, http.MethodGet, "/api/letters/types", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	types := decode[struct {
		Types []LetterType `json:"types"`
	}](t, w).Types
	require.Len(t, types, 6)
	assert.Equal(t, LetterType{Type: "status_update", Label: "Status Update"}, types[0])

	w = e.do(t, http.MethodPost, "/api/letters/preview",
		map[string]string{"type": "document_request", "application_id": "WP-2024-1234"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[map[string]any](t, w)
	assert.Equal(t, "hans.mueller@email.de", preview["to"])
	assert.Contains(t, preview["body"], "documents-WP-2024-1234@germany.gov")

	w = e.do(t, http.MethodPost, "/api/letters/send",
		map[string]string{"type": "appointment_confirmation", "application_id": "TV-2024-3456"}, true)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	n := decode[storage.Notification](t, w)
	assert.Equal(t, storage.NotificationPending, n.Status)
	assert.Equal(t, "ahmed.hassan@email.com", n.Recipient)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"unknown type", map[string]string{"type": "invitation", "application_id": "WP-2024-1234"}, http.StatusBadRequest},
		{"missing type", map[string]string{"application_id": "WP-2024-1234"}, http.StatusBadRequest},
		{"missing application", map[string]string{"type": "status_update"}, http.StatusBadRequest},
		{"unknown application", map[string]string{"type": "status_update", "application_id": "XX-0000-0000"}, http.StatusNotFound},
		{"invalid json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/letters/preview", tt.body, true)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestListVerifications(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	ctx := t.Context()
	for _, outcome := range []string{storage.OutcomeNotFound, storage.OutcomeVerified} {
		require.NoError(t, e.db.RecordVerificationAttempt(ctx, &storage.VerificationAttempt{
			SessionKey: "web:1", Channel: "web", Method: storage.MethodApplicationID, Outcome: outcome,
		}))
	}

	w := e.do(t, http.MethodGet, "/api/audit/verifications?limit=1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	attempts := decode[struct {
		Attempts []storage.VerificationAttempt `json:"attempts"`
	}](t, w).Attempts
	assert.Len(t, attempts, 1)

	w = e.do(t, http.MethodGet, "/api/audit/verifications?limit=abc", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
