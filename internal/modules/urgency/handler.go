// Package urgency explains emergency processing.
package urgency

import (
	"context"
	"fmt"

	"github.com/garyellow/visadesk/internal/bot"
	domerrors "github.com/garyellow/visadesk/internal/errors"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/storage"
)

const (
	ModuleName    = "urgency"
	IntentRequest = "request"
)

// Text is the emergency processing reply. It does not depend on the
// application.
const Text = "I understand you need urgent processing. For emergency visa requests:\n\n" +
	"1. Email: emergency-visa@germany.gov with subject \"URGENT PROCESSING REQUEST\"\n" +
	"2. Include medical certificates or official documentation of emergency\n" +
	"3. Pay expedited processing fee (€50)\n" +
	"4. Processing time reduces to 48-72 hours\n\n" +
	"I can escalate your case to our emergency team. Would you like me to create an urgent processing request for you?"

var keywords = bot.Strong("urgent", "emergency", "fast")

type Handler struct {
	logger *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log.WithModule(ModuleName)}
}

func (h *Handler) Name() string              { return ModuleName }
func (h *Handler) Match(text string) float64 { return keywords.Score(text) }

func (h *Handler) Handle(ctx context.Context, app *storage.Application, _ string) *bot.Reply {
	h.logger.InfoContext(ctx, "Urgent processing requested", "application_id", app.ID)
	return bot.NewReply(ModuleName, Text)
}

// DispatchIntent handles NLU-parsed intents.
func (h *Handler) DispatchIntent(ctx context.Context, app *storage.Application, intent string, _ map[string]string) (*bot.Reply, error) {
	if intent != IntentRequest {
		return nil, fmt.Errorf("%w: %s", domerrors.ErrUnknownIntent, intent)
	}
	return h.Handle(ctx, app, ""), nil
}
