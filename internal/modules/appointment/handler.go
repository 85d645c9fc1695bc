// Package appointment answers questions about visiting the office.
package appointment

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
	ModuleName = "appointment"
	IntentInfo = "info"
)

var keywords = bot.Strong("appointment", "visit", "office")

// Handler gives booking channels and walk-in hours.
type Handler struct {
	logger *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{logger: log.WithModule(ModuleName)}
}

func (h *Handler) Name() string              { return ModuleName }
func (h *Handler) Match(text string) float64 { return keywords.Score(text) }

func (h *Handler) Handle(ctx context.Context, app *storage.Application, _ string) *bot.Reply {
	h.logger.DebugContext(ctx, "Handling appointment query")
	return bot.NewReply(ModuleName, Render(app))
}

// DispatchIntent handles NLU-parsed intents.
func (h *Handler) DispatchIntent(ctx context.Context, app *storage.Application, intent string, _ map[string]string) (*bot.Reply, error) {
	if intent != IntentInfo {
		return nil, fmt.Errorf("%w: %s", domerrors.ErrUnknownIntent, intent)
	}
	return h.Handle(ctx, app, ""), nil
}

// Render builds the appointment text for app.
func Render(app *storage.Application) string {
	return "For appointments at the German Foreign Office:\n\n" +
		"• Online booking: www.germany.diplo.de\n" +
		"• Phone: +49 (0) 30 1817 0\n" +
		"• Walk-in hours: Monday-Friday, 8:00-12:00 (limited availability)\n\n" +
		"For your " + stringutil.Humanize(app.VisaType) +
		" application, an appointment is typically not required unless requested by our staff."
}
