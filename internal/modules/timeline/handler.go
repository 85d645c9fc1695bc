// Package timeline answers processing-time questions.
package timeline

import (
	"context"
	"fmt"

	"github.com/garyellow/visadesk/internal/bot"
	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/stringutil"
)

const (
	ModuleName  = "timeline"
	IntentQuery = "query"

	// Pending stands in for a step that has not happened yet.
	Pending = "Pending"
)

var keywords = bot.Strong("time", "when", "long", "deadline")

// Handler renders the processing timeline.
type Handler struct {
	logger *logger.Logger
}

// NewHandler creates a timeline handler.
func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log.WithModule(ModuleName)}
}

func (h *Handler) Name() string              { return ModuleName }
func (h *Handler) Match(text string) float64 { return keywords.Score(text) }

func (h *Handler) Handle(ctx context.Context, app *storage.Application, _ string) *bot.Reply {
	h.logger.DebugContext(ctx, "Handling timeline query")
	return bot.NewReply(ModuleName, Render(app))
}

// DispatchIntent handles NLU-parsed intents.
func (h *Handler) DispatchIntent(ctx context.Context, app *storage.Application, intent string, _ map[string]string) (*bot.Reply, error) {
	if intent != IntentQuery {
		return nil, fmt.Errorf("%w: %s", domerrors.ErrUnknownIntent, intent)
	}
	return h.Handle(ctx, app, ""), nil
}

// Render builds the timeline text for app.
func Render(app *storage.Application) string {
	vt := stringutil.Humanize(app.VisaType)

	submitted, ok := app.TimelineDate(storage.StepSubmitted)
	if !ok {
		submitted = app.SubmittedDate
	}
	review, ok := app.TimelineDate(storage.StepInitialReview)
	if !ok {
		review = Pending
	}

	return fmt.Sprintf("Processing timeline for your %s application:\n\n"+
		"• Submitted: %s\n• Initial Review: %s\n• Expected Decision: %s\n\n"+
		"Typical processing time for %s applications is 6-8 weeks. Your application is progressing normally.",
		vt, submitted, review, app.ExpectedCompletion, vt)
}
