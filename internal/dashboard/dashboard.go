// Package dashboard assembles the staff overview: headline stats, one card
// per application, the static performance tiles and a recent-activity feed.
package dashboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/visadesk/internal/letters"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/stringutil"
)

const (
	// AutomationRate is a fixed headline figure.
	AutomationRate = "90%"

	// ActivityLimit caps the recent-activity feed.
	ActivityLimit = 10

	cardDocuments  = 2
	docNameLength  = 25
	activityWindow = ActivityLimit * 2
)

// Performance tiles shown on every dashboard.
var Performance = []Tile{
	{Label: "Inquiries Handled Today", Value: "247"},
	{Label: "Average Response Time", Value: "0.8s"},
	{Label: "User Satisfaction", Value: "94.2%"},
	{Label: "Staff Time Saved", Value: "6.2 hrs"},
}

// Stats are the headline counters.
type Stats struct {
	TotalApplications int    `json:"total_applications"`
	Approved          int    `json:"approved"`
	Pending           int    `json:"pending"`
	AutomationRate    string `json:"automation_rate"`
}

// DocumentLine is one shortened document entry on a card.
type DocumentLine struct {
	Name     string `json:"name"`
	Received bool   `json:"received"`
}

// Card summarizes one application.
type Card struct {
	ID                 string         `json:"id"`
	ApplicantName      string         `json:"applicant_name"`
	Status             string         `json:"status"`
	StatusLabel        string         `json:"status_label"`
	VisaType           string         `json:"visa_type"`
	VisaLabel          string         `json:"visa_label"`
	ExpectedCompletion string         `json:"expected_completion"`
	DateOfBirth        string         `json:"date_of_birth"`
	Documents          []DocumentLine `json:"documents,omitempty"`
	MoreDocuments      string         `json:"more_documents,omitempty"`
}

// Tile is a label/value pair.
type Tile struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Activity kinds.
const (
	ActivityVerification = "verification"
	ActivityLetter       = "letter"
)

// Activity is one entry in the recent-activity feed.
type Activity struct {
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Subject       string    `json:"subject"`
	ApplicationID string    `json:"application_id,omitempty"`
	At            time.Time `json:"at"`
}

// Dashboard is the full overview.
type Dashboard struct {
	Stats        Stats      `json:"stats"`
	Applications []Card     `json:"applications"`
	Performance  []Tile     `json:"performance"`
	Activity     []Activity `json:"activity"`
	GeneratedAt  time.Time  `json:"generated_at"`
}

// Source is the store surface the dashboard reads.
type Source interface {
	ListApplications(ctx context.Context) ([]*storage.Application, error)
	ListVerificationAttempts(ctx context.Context, limit int) ([]storage.VerificationAttempt, error)
	ListNotifications(ctx context.Context, appID string, limit int) ([]*storage.Notification, error)
}

// Builder builds dashboards from a Source.
type Builder struct {
	src Source
	now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(src Source) *Builder {
	return &Builder{src: src, now: time.Now}
}

// Build reads the store and assembles a Dashboard. The three reads run
// concurrently.
func (b *Builder) Build(ctx context.Context) (*Dashboard, error) {
	var (
		apps     []*storage.Application
		attempts []storage.VerificationAttempt
		notes    []*storage.Notification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		apps, err = b.src.ListApplications(gctx)
		return err
	})
	g.Go(func() (err error) {
		attempts, err = b.src.ListVerificationAttempts(gctx, activityWindow)
		return err
	})
	g.Go(func() (err error) {
		notes, err = b.src.ListNotifications(gctx, "", activityWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	cards := make([]Card, 0, len(apps))
	for _, app := range apps {
		cards = append(cards, NewCard(app))
	}
	return &Dashboard{
		Stats:        NewStats(apps),
		Applications: cards,
		Performance:  slices.Clone(Performance),
		Activity:     RecentActivity(apps, attempts, notes, ActivityLimit),
		GeneratedAt:  b.now(),
	}, nil
}

// NewStats counts applications. Everything not approved counts as pending.
func NewStats(apps []*storage.Application) Stats {
	s := Stats{TotalApplications: len(apps), AutomationRate: AutomationRate}
	for _, app := range apps {
		if app.Status == storage.StatusApproved {
			s.Approved++
		} else {
			s.Pending++
		}
	}
	return s
}

// NewCard summarizes app: the first two document names cut to 25
// characters, then a "+N more" line.
func NewCard(app *storage.Application) Card {
	c := Card{
		ID:                 app.ID,
		ApplicantName:      app.Name,
		Status:             app.Status,
		StatusLabel:        stringutil.Humanize(app.Status),
		VisaType:           app.VisaType,
		VisaLabel:          stringutil.Title(app.VisaType),
		ExpectedCompletion: app.ExpectedCompletion,
		DateOfBirth:        app.DateOfBirth,
	}
	for i, doc := range app.Documents {
		if i == cardDocuments {
			break
		}
		c.Documents = append(c.Documents, DocumentLine{
			Name:     stringutil.Prefix(doc.Name, docNameLength) + "...",
			Received: doc.Status == storage.DocumentReceived,
		})
	}
	if extra := len(app.Documents) - cardDocuments; extra > 0 {
		c.MoreDocuments = fmt.Sprintf("+%d more", extra)
	}
	return c
}

// RecentActivity merges verification attempts and sent letters, newest
// first, capped at limit.
func RecentActivity(apps []*storage.Application, attempts []storage.VerificationAttempt, notes []*storage.Notification, limit int) []Activity {
	names := make(map[string]string, len(apps))
	for _, app := range apps {
		names[app.ID] = app.Name
	}

	feed := make([]Activity, 0, len(attempts)+len(notes))
	for _, a := range attempts {
		subject := names[a.ApplicationID]
		if subject == "" {
			subject = "Visitor via " + a.Channel
		}
		feed = append(feed, Activity{
			Kind:          ActivityVerification,
			Title:         verificationTitle(a.Outcome),
			Subject:       subject,
			ApplicationID: a.ApplicationID,
			At:            a.CreatedAt,
		})
	}
	for _, n := range notes {
		if n.Status != storage.NotificationSent {
			continue
		}
		feed = append(feed, Activity{
			Kind:          ActivityLetter,
			Title:         letterTitle(n.LetterType),
			Subject:       cmp.Or(names[n.ApplicationID], n.ApplicationID),
			ApplicationID: n.ApplicationID,
			At:            n.SentAt,
		})
	}

	slices.SortStableFunc(feed, func(a, b Activity) int { return b.At.Compare(a.At) })
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed
}

func verificationTitle(outcome string) string {
	switch outcome {
	case storage.OutcomeVerified:
		return "Identity verified"
	case storage.OutcomeRateLimited:
		return "Verification rate limited"
	default:
		return "Verification failed"
	}
}

func letterTitle(letterType string) string {
	if label := letters.Kind(letterType).Label(); label != "" {
		return label + " sent"
	}
	return "Letter sent"
}
