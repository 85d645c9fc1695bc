// Package letters renders the applicant letters sent by the notification
// service and previewed by staff.
package letters

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"
	"time"

	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/stringutil"
)

// Kind is a letter template.
type Kind string

const (
	StatusUpdate            Kind = "status_update"
	DocumentRequest         Kind = "document_request"
	ApprovalNotification    Kind = "approval_notification"
	AppointmentConfirmation Kind = "appointment_confirmation"
	RejectionNotice         Kind = "rejection_notice"
	ReminderNotice          Kind = "reminder_notice"
)

var kinds = []Kind{
	StatusUpdate,
	DocumentRequest,
	ApprovalNotification,
	AppointmentConfirmation,
	RejectionNotice,
	ReminderNotice,
}

var labels = map[Kind]string{
	StatusUpdate:            "Status Update",
	DocumentRequest:         "Document Request",
	ApprovalNotification:    "Approval Notification",
	AppointmentConfirmation: "Appointment Confirmation",
	RejectionNotice:         "Rejection Notice",
	ReminderNotice:          "Reminder Notice",
}

// Kinds lists every letter kind in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Label is the human-readable name of k.
func (k Kind) Label() string { return labels[k] }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := labels[k]
	return ok
}

// ParseKind validates s as a letter kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", domerrors.ErrUnknownLetterType, s)
	}
	return k, nil
}

// Letter is a rendered letter.
type Letter struct {
	Type    Kind   `json:"type"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html"`
}

const (
	noDeadline     = "As soon as possible"
	noTemplate     = "Available at our website"
	inProgress     = "In Progress"
	pending        = "Pending"
	appointmentIn  = 7 * 24 * time.Hour
	germanDate     = "2.1.2006"
	touristValid   = "90 days"
	nationalValid  = "1 year (renewable)"
	htmlTemplateID = "_letter.gohtml"
)

//go:embed templates/*.txt templates/*.gohtml
var templateFS embed.FS

var funcs = texttmpl.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"deadline": func(d storage.Document) string {
		if d.Deadline == "" {
			return noDeadline
		}
		return d.Deadline
	},
	"docTemplate": func(d storage.Document) string {
		if d.Template == "" {
			return noTemplate
		}
		return d.Template
	},
}

var (
	textTemplates = parseText()
	htmlTemplate  = htmltmpl.Must(htmltmpl.ParseFS(templateFS, "templates/"+htmlTemplateID))
)

func parseText() map[Kind]*texttmpl.Template {
	out := make(map[Kind]*texttmpl.Template, len(kinds))
	for _, k := range kinds {
		name := string(k) + ".txt"
		t := texttmpl.Must(texttmpl.New(name).Funcs(funcs).
			Option("missingkey=error").
			ParseFS(templateFS, "templates/"+name))
		out[k] = t
	}
	return out
}

// data is the view model shared by all text templates.
type data struct {
	ID                 string
	Name               string
	VisaLabel          string
	VisaTitle          string
	Status             string
	StatusTitle        string
	ExpectedCompletion string
	Missing            []storage.Document
	Received           []storage.Document
	Submitted          string
	InitialReview      string
	ExtendedReview     string
	ApprovalDate       string
	Today              string
	ValidUntil         string
	AppointmentDate    string
}

func newData(app *storage.Application, now time.Time) data {
	d := data{
		ID:                 app.ID,
		Name:               app.Name,
		VisaLabel:          stringutil.Humanize(app.VisaType),
		VisaTitle:          stringutil.Title(app.VisaType),
		Status:             app.Status,
		StatusTitle:        stringutil.Title(app.Status),
		ExpectedCompletion: app.ExpectedCompletion,
		Missing:            app.MissingDocuments(),
		Received:           app.ReceivedDocuments(),
		Submitted:          timelineOr(app, storage.StepSubmitted, app.SubmittedDate),
		InitialReview:      timelineOr(app, storage.StepInitialReview, pending),
		ExtendedReview:     timelineOr(app, storage.StepUnderExtendedReview, inProgress),
		ApprovalDate:       app.ApprovalDate,
		Today:              now.Format(storage.DateLayout),
		ValidUntil:         nationalValid,
		AppointmentDate:    now.Add(appointmentIn).Format(germanDate),
	}
	if d.ApprovalDate == "" {
		d.ApprovalDate = d.Today
	}
	if app.VisaType == storage.VisaTourist {
		d.ValidUntil = touristValid
	}
	return d
}

func timelineOr(app *storage.Application, step, fallback string) string {
	if v, ok := app.TimelineDate(step); ok && v != "" {
		return v
	}
	return fallback
}

// Render renders a letter of kind for app. now fixes the dates that depend
// on the sending day.
func Render(kind Kind, app *storage.Application, now time.Time) (*Letter, error) {
	t, ok := textTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domerrors.ErrUnknownLetterType, kind)
	}
	if app == nil {
		return nil, fmt.Errorf("render %s: %w", kind, domerrors.ErrNotFound)
	}

	d := newData(app, now)
	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", d); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := t.ExecuteTemplate(&body, "body", d); err != nil {
		return nil, fmt.Errorf("render %s body: %w", kind, err)
	}

	letter := &Letter{
		Type:    kind,
		To:      app.Email,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}
	html, err := renderHTML(letter.Subject, letter.Body)
	if err != nil {
		return nil, fmt.Errorf("render %s html: %w", kind, err)
	}
	letter.HTML = html
	return letter, nil
}

// Text returns the letter in the "Subject: ..." plain-text form.
func (l *Letter) Text() string {
	return "Subject: " + l.Subject + "\n\n" + l.Body
}
