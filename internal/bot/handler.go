// Package bot is the channel-neutral dialogue engine. It verifies the
// applicant, routes follow-up questions to intent handlers by keyword score,
// and falls back to the FAQ index, the LLM intent parser and a default reply.
package bot

import (
	"context"

	"github.com/garyellow/visadesk/internal/storage"
)

// Handler answers one intent for a verified applicant.
type Handler interface {
	// Name is the intent name. It doubles as the module name the LLM
	// intent parser routes to.
	Name() string

	// Match scores text. Zero means the handler does not apply.
	Match(text string) float64

	// Handle renders the reply from the current application state.
	Handle(ctx context.Context, app *storage.Application, text string) *Reply
}

// NLUHandler is a Handler that also accepts intents parsed by the LLM.
type NLUHandler interface {
	Handler

	// DispatchIntent answers a parsed intent. Unknown intents return
	// errors.ErrUnknownIntent.
	DispatchIntent(ctx context.Context, app *storage.Application, intent string, params map[string]string) (*Reply, error)
}
