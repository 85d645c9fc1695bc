package bot

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/storage"
)

// LoggingMiddleware logs handler execution with timing.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, h Handler, app *storage.Application, text string) *Reply {
			start := time.Now()
			reply := next(ctx, h, app, text)
			log.DebugContext(ctx, "Handler completed",
				"module", h.Name(),
				"text_length", len(text),
				"duration_ms", time.Since(start).Milliseconds())
			return reply
		}
	}
}

// RecoveryMiddleware turns a handler panic into an error reply. onPanic,
// when set, receives the recovered value (e.g. for Sentry).
func RecoveryMiddleware(log *logger.Logger, onPanic func(ctx context.Context, recovered any)) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, h Handler, app *storage.Application, text string) (reply *Reply) {
			defer func() {
				if r := recover(); r != nil {
					log.ErrorContext(ctx, "Handler panicked",
						"module", h.Name(),
						"panic", r,
						"stack", string(debug.Stack()))
					if onPanic != nil {
						onPanic(ctx, r)
					}
					reply = NewReply(IntentError, ErrorText)
				}
			}()
			return next(ctx, h, app, text)
		}
	}
}
