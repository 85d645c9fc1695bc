// Package documents answers questions about required documents.
package documents

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

const (
	ModuleName  = "documents"
	IntentQuery = "query"
)

// "need" alone is weak evidence of a documents question.
var keywords = bot.Strong("document", "paper").With(bot.Weak("need"))

// Handler lists missing and received documents.
type Handler struct {
	logger *logger.Logger
}

// NewHandler creates a documents handler.
func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log.WithModule(ModuleName)}
}

func (h *Handler) Name() string              { return ModuleName }
func (h *Handler) Match(text string) float64 { return keywords.Score(text) }

// Handle returns the document status reply.
func (h *Handler) Handle(ctx context.Context, app *storage.Application, _ string) *bot.Reply {
	h.logger.DebugContext(ctx, "Handling documents query",
		"missing", len(app.MissingDocuments()))
	return bot.NewReply(ModuleName, Render(app))
}

// DispatchIntent handles NLU-parsed intents.
func (h *Handler) DispatchIntent(ctx context.Context, app *storage.Application, intent string, _ map[string]string) (*bot.Reply, error) {
	if intent != IntentQuery {
		return nil, fmt.Errorf("%w: %s", domerrors.ErrUnknownIntent, intent)
	}
	return h.Handle(ctx, app, ""), nil
}

// Render builds the document status text for app.
func Render(app *storage.Application) string {
	missing := app.MissingDocuments()
	received := receivedList(app.ReceivedDocuments())

	if len(missing) == 0 {
		return fmt.Sprintf("All required documents have been received for your %s application:\n\n%s",
			stringutil.Humanize(app.VisaType), received)
	}

	needed := make([]string, len(missing))
	for i, d := range missing {
		deadline := d.Deadline
		if deadline == "" {
			deadline = "As soon as possible"
		}
		needed[i] = fmt.Sprintf("• %s (deadline: %s)", d.Name, deadline)
	}
	return "Here's your document status:\n\n**Still needed:**\n" + strings.Join(needed, "\n") +
		"\n\n**Already received:**\n" + received +
		"\n\nWould you like me to email you the templates for missing documents?"
}

func receivedList(docs []storage.Document) string {
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = "✓ " + d.Name
	}
	return strings.Join(lines, "\n")
}
