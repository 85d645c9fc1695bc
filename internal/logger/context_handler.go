package logger

import (
	"context"
	"log/slog"

	"github.com/garyellow/visadesk/internal/ctxutil"
)

// ContextHandler wraps another handler and adds tracing values found in the
// context (session key, channel, LINE user/chat IDs, request ID) to every record.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a new ContextHandler that wraps the provided handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds context values as attributes before delegating.
// Long session keys are shortened so raw LINE IDs do not end up in logs.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if key := ctxutil.GetSessionKey(ctx); key != "" {
		r.AddAttrs(slog.String("session_key", Redact(key)))
	}
	if channel := ctxutil.GetChannel(ctx); channel != "" {
		r.AddAttrs(slog.String("channel", channel))
	}
	if userID := ctxutil.GetUserID(ctx); userID != "" {
		r.AddAttrs(slog.String("user_id", Redact(userID)))
	}
	if chatID := ctxutil.GetChatID(ctx); chatID != "" {
		r.AddAttrs(slog.String("chat_id", Redact(chatID)))
	}
	if requestID, ok := ctxutil.GetRequestID(ctx); ok {
		r.AddAttrs(slog.String("request_id", requestID))
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a ContextHandler wrapping handler.WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a ContextHandler wrapping handler.WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// Redact keeps the first 8 characters of an identifier.
func Redact(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
