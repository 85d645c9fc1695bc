// Package notify renders letters into the notification outbox and
// delivers them in the background.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/storage"
)

// Sender delivers one notification.
type Sender interface {
	Name() string
	Send(ctx context.Context, n *storage.Notification) error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// LogSender writes letters to the log instead of sending them.
type LogSender struct {
	logger *logger.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log.WithModule("notify")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, n *storage.Notification) error {
	if n.Recipient == "" {
		return Permanent(domerrors.ErrMissingRecipient)
	}
	s.logger.InfoContext(ctx, "Letter delivered to log",
		"notification_id", n.ID,
		"application_id", n.ApplicationID,
		"letter_type", n.LetterType,
		"to", n.Recipient,
		"subject", n.Subject)
	return nil
}

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	key  string
	host string
	from *sgmail.Email
}

// NewSendGridSender creates a sender with the given API key and From header.
func NewSendGridSender(key, fromName, fromAddress string) *SendGridSender {
	return &SendGridSender{
		key:  key,
		host: sendGridHost,
		from: sgmail.NewEmail(fromName, fromAddress),
	}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) Send(ctx context.Context, n *storage.Notification) error {
	if strings.TrimSpace(n.Recipient) == "" {
		return Permanent(domerrors.ErrMissingRecipient)
	}

	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.message(n))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	return classifyStatus(res.StatusCode, res.Body)
}

func (s *SendGridSender) message(n *storage.Notification) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = n.Subject
	p.AddTos(sgmail.NewEmail("", n.Recipient))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", n.Body))
	if n.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", n.HTML))
	}
	return m
}

// classifyStatus turns a SendGrid HTTP status into an error. 4xx other than
// 408 and 429 are permanent.
func classifyStatus(code int, body string) error {
	if code < http.StatusBadRequest {
		return nil
	}
	err := fmt.Errorf("sendgrid: status %d: %s", code, strings.TrimSpace(body))
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return err
	default:
		return Permanent(err)
	}
}
