// Package identity verifies that a chat user owns an application, either
// by quoting the application ID or by giving first name and date of birth.
// Every attempt is rate limited per session and per client, bounded by a
// failure budget across all clients, and written to the audit log.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/ratelimit"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/stringutil"
)

// Reply copy.
const (
	NotFoundMessage    = "I couldn't find your application. Please provide your application ID (e.g., WP-2024-1234) or your full name and date of birth (e.g., Hans Mueller, born 15.03.1985)."
	RateLimitedMessage = "Too many verification attempts. Please wait a few minutes before trying again."
)

// Store is the storage surface the verifier needs.
type Store interface {
	ListApplications(ctx context.Context) ([]*storage.Application, error)
	RecordVerificationAttempt(ctx context.Context, a *storage.VerificationAttempt) error
	CountVerificationAttempts(ctx context.Context, outcome string, since time.Time) (int, error)
}

// Attempt is one verification message. ClientKey identifies the sender
// across sessions; it may be empty.
type Attempt struct {
	SessionKey string
	ClientKey  string
	Channel    string
	Input      string
}

// Result is the outcome of an attempt. Application is set only when
// Outcome is storage.OutcomeVerified.
type Result struct {
	Outcome     string
	Method      string
	Application *storage.Application
	Message     string
	RetryAfter  time.Duration
}

// Verified reports whether the attempt matched an application.
func (r *Result) Verified() bool { return r != nil && r.Outcome == storage.OutcomeVerified }

// Verifier matches verification input against stored applications.
type Verifier struct {
	store         Store
	limiter       *ratelimit.KeyedLimiter
	clientLimiter *ratelimit.KeyedLimiter
	failureLimit  int
	failureWindow time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClientLimiter limits attempts per Attempt.ClientKey, so a client
// cannot reset its budget by opening new sessions.
func WithClientLimiter(l *ratelimit.KeyedLimiter) Option {
	return func(v *Verifier) { v.clientLimiter = l }
}

// WithFailureBudget refuses all attempts once limit not_found outcomes
// have been audited within window.
func WithFailureBudget(limit int, window time.Duration) Option {
	return func(v *Verifier) {
		if limit > 0 && window > 0 {
			v.failureLimit = limit
			v.failureWindow = window
		}
	}
}

// NewVerifier creates a verifier. limiter is the per-session limiter and
// may be nil to disable it.
func NewVerifier(store Store, limiter *ratelimit.KeyedLimiter, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{
		store:   store,
		limiter: limiter,
		metrics: m,
		logger:  logger.With("module", "identity"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks one attempt. The audit row is written for every outcome;
// an audit failure is returned as an error and no verification is granted.
func (v *Verifier) Verify(ctx context.Context, a Attempt) (*Result, error) {
	normalized := Normalize(a.Input)
	res := &Result{Method: storage.MethodNone}

	limited, retryAfter, err := v.throttle(ctx, a)
	if err != nil {
		return nil, err
	}
	if limited {
		res.Outcome = storage.OutcomeRateLimited
		res.Message = RateLimitedMessage
		res.RetryAfter = retryAfter
	} else {
		apps, err := v.store.ListApplications(ctx)
		if err != nil {
			return nil, fmt.Errorf("load applications: %w", err)
		}
		app, method := Match(normalized, apps)
		if app != nil {
			res.Outcome = storage.OutcomeVerified
			res.Method = method
			res.Application = app
			res.Message = WelcomeMessage(app, method)
		} else {
			res.Outcome = storage.OutcomeNotFound
			res.Message = NotFoundMessage
		}
	}

	row := &storage.VerificationAttempt{
		SessionKey:  a.SessionKey,
		Channel:     a.Channel,
		Method:      res.Method,
		Outcome:     res.Outcome,
		InputDigest: Digest(normalized),
	}
	if res.Application != nil {
		row.ApplicationID = res.Application.ID
	}
	if err := v.store.RecordVerificationAttempt(ctx, row); err != nil {
		return nil, fmt.Errorf("audit verification attempt: %w", err)
	}

	v.metrics.RecordIdentityAttempt(res.Method, res.Outcome)
	v.logger.InfoContext(ctx, "Verification attempt",
		"outcome", res.Outcome,
		"method", res.Method,
		"application_id", row.ApplicationID)
	return res, nil
}

// throttle reports whether a is refused and how long to wait. The session
// limiter is checked first, then the client limiter, then the failure budget.
func (v *Verifier) throttle(ctx context.Context, a Attempt) (bool, time.Duration, error) {
	if v.limiter != nil && !v.limiter.Allow(a.SessionKey) {
		return true, v.limiter.RetryAfter(a.SessionKey), nil
	}
	if v.clientLimiter != nil && a.ClientKey != "" && !v.clientLimiter.Allow(a.ClientKey) {
		v.logger.WarnContext(ctx, "Client verification limit exceeded", "channel", a.Channel)
		return true, v.clientLimiter.RetryAfter(a.ClientKey), nil
	}
	if v.failureLimit > 0 {
		failures, err := v.store.CountVerificationAttempts(ctx, storage.OutcomeNotFound, v.now().Add(-v.failureWindow))
		if err != nil {
			return false, 0, fmt.Errorf("count failed verifications: %w", err)
		}
		if failures >= v.failureLimit {
			v.logger.WarnContext(ctx, "Verification failure budget exhausted",
				"failures", failures,
				"window", v.failureWindow)
			return true, v.failureWindow, nil
		}
	}
	return false, 0, nil
}

// Normalize trims, lowercases and folds diacritics.
func Normalize(input string) string {
	return stringutil.Fold(input)
}

// Digest returns the SHA-256 hex digest of normalized input.
func Digest(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Match finds the application referenced by normalized input. An ID match
// on any application wins over a name and DOB match.
func Match(normalized string, apps []*storage.Application) (*storage.Application, string) {
	if normalized == "" {
		return nil, ""
	}
	for _, app := range apps {
		if strings.Contains(normalized, stringutil.Fold(app.ID)) {
			return app, storage.MethodApplicationID
		}
	}
	for _, app := range apps {
		first := stringutil.Fold(stringutil.FirstName(app.Name))
		if first == "" || !strings.Contains(normalized, first) {
			continue
		}
		for _, dob := range DOBForms(app.DateOfBirth) {
			if strings.Contains(normalized, dob) {
				return app, storage.MethodNameDOB
			}
		}
	}
	return nil, ""
}

// DOBForms returns the accepted spellings of a YYYY-MM-DD date:
// YYYY-MM-DD, YYYY.MM.DD and DD.MM.YYYY.
func DOBForms(dob string) []string {
	forms := []string{dob, strings.ReplaceAll(dob, "-", ".")}
	if t, err := time.Parse(storage.DateLayout, dob); err == nil {
		forms = append(forms, t.Format("02.01.2006"))
	}
	return forms
}

// WelcomeMessage is the reply sent after a successful match.
func WelcomeMessage(app *storage.Application, method string) string {
	greeting := "Welcome"
	if method == storage.MethodApplicationID {
		greeting = "Welcome back"
	}
	return fmt.Sprintf("%s, %s! I found your %s application. How can I help you today?",
		greeting, app.Name, stringutil.Humanize(app.VisaType))
}
