package bot

import (
	"context"
	"math"
	"strings"

	"github.com/garyellow/visadesk/internal/storage"
)

// HandleFunc runs a handler for one message.
type HandleFunc func(ctx context.Context, h Handler, app *storage.Application, text string) *Reply

// Middleware wraps handler execution.
type Middleware func(next HandleFunc) HandleFunc

// Registry holds handlers in registration order.
type Registry struct {
	handlers []Handler
	routes   map[string]string
	chain    HandleFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]string), chain: invoke}
}

func invoke(ctx context.Context, h Handler, app *storage.Application, text string) *Reply {
	return h.Handle(ctx, app, text)
}

// Register appends handlers. Registration order is match precedence.
func (r *Registry) Register(handlers ...Handler) {
	r.handlers = append(r.handlers, handlers...)
}

// Route sends the exact phrase (case and surrounding space ignored) to the
// handler named name, ahead of keyword matching.
func (r *Registry) Route(phrase, name string) {
	r.routes[routeKey(phrase)] = name
}

func routeKey(text string) string { return strings.ToLower(strings.TrimSpace(text)) }

// Use wraps every dispatch with mw. The first middleware is outermost.
func (r *Registry) Use(mw ...Middleware) {
	for i := len(mw) - 1; i >= 0; i-- {
		r.chain = mw[i](r.chain)
	}
}

// Match picks the handler for text: a routed phrase first, then the first
// registered handler whose keywords appear in text. evidence is the keyword
// weight found across all handlers; a routed phrase reports +Inf.
func (r *Registry) Match(text string) (h Handler, evidence float64) {
	if name, ok := r.routes[routeKey(text)]; ok {
		if routed := r.GetHandler(name); routed != nil {
			return routed, math.Inf(1)
		}
	}
	for _, candidate := range r.handlers {
		score := candidate.Match(text)
		if score <= 0 {
			continue
		}
		if h == nil {
			h = candidate
		}
		evidence += score
	}
	return h, evidence
}

// Dispatch runs the matching handler. It returns nil when no handler
// matches.
func (r *Registry) Dispatch(ctx context.Context, app *storage.Application, text string) *Reply {
	h, _ := r.Match(text)
	if h == nil {
		return nil
	}
	return r.Run(ctx, h, app, text)
}

// Run executes h through the middleware chain.
func (r *Registry) Run(ctx context.Context, h Handler, app *storage.Application, text string) *Reply {
	return r.chain(ctx, h, app, text)
}

// GetHandler returns the handler named name, or nil.
func (r *Registry) GetHandler(name string) Handler {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// Handlers returns the registered handlers.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}
