// Package status answers "where is my application" questions.
package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyellow/visadesk/internal/bot"
	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/stringutil"
)

// ModuleName is the intent and module name.
const ModuleName = "status"

// IntentQuery is the only NLU intent of this module.
const IntentQuery = "query"

// NoDeadline is shown when the first missing document has no deadline.
const NoDeadline = "As soon as possible"

var keywords = bot.Strong("status", "application")

// Handler renders the status reply for the applicant's current status.
type Handler struct {
	logger *logger.Logger
}

// NewHandler creates a status handler.
func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log.WithModule(ModuleName)}
}

// Name returns the module name.
func (h *Handler) Name() string { return ModuleName }

// Match scores text against the status keywords.
func (h *Handler) Match(text string) float64 { return keywords.Score(text) }

// Handle returns the status reply.
func (h *Handler) Handle(ctx context.Context, app *storage.Application, _ string) *bot.Reply {
	h.logger.DebugContext(ctx, "Handling status query", "status", app.Status)
	return bot.NewReply(ModuleName, Render(app))
}

// DispatchIntent handles NLU-parsed intents.
func (h *Handler) DispatchIntent(ctx context.Context, app *storage.Application, intent string, _ map[string]string) (*bot.Reply, error) {
	switch intent {
	case IntentQuery:
		return h.Handle(ctx, app, ""), nil
	default:
		return nil, fmt.Errorf("%w: %s", domerrors.ErrUnknownIntent, intent)
	}
}

// Render builds the status text for app.
func Render(app *storage.Application) string {
	vt := stringutil.Humanize(app.VisaType)

	switch app.Status {
	case storage.StatusDocumentsRequired:
		missing := app.MissingDocuments()
		deadline := NoDeadline
		if len(missing) > 0 && missing[0].Deadline != "" {
			deadline = missing[0].Deadline
		}
		var list strings.Builder
		for i, d := range missing {
			if i > 0 {
				list.WriteByte('\n')
			}
			list.WriteString("• " + d.Name)
		}
		return fmt.Sprintf("Your %s application is currently waiting for additional documents. You need to submit:\n\n%s\n\nDeadline: %s\n\nWould you like me to send you the document templates?",
			vt, list.String(), deadline)

	case storage.StatusUnderReview:
		return fmt.Sprintf("Your %s application is currently under review. We received all required documents and our team is processing your case. Expected completion: %s.\n\nYou don't need to take any action at this time. We'll notify you once a decision is made.",
			vt, app.ExpectedCompletion)

	case storage.StatusApproved:
		return fmt.Sprintf("Great news! Your %s application has been approved on %s. You should receive your visa within 5-7 business days by mail.\n\nIf you have urgent travel needs, you can collect your passport from our office starting tomorrow.",
			vt, approvalDate(app))

	default:
		return fmt.Sprintf("Your %s application status is: %s. Expected completion: %s.",
			vt, app.Status, app.ExpectedCompletion)
	}
}

// approvalDate prefers the stored approval date, then the approved
// timeline step.
func approvalDate(app *storage.Application) string {
	if app.ApprovalDate != "" {
		return app.ApprovalDate
	}
	if d, ok := app.TimelineDate(storage.StepApproved); ok {
		return d
	}
	return app.ExpectedCompletion
}
