package webhook

import (
	"time"

	"github.com/garyellow/visadesk/internal/lineutil"
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithReplier replaces the Messaging API client.
func WithReplier(r Replier) HandlerOption {
	return func(h *Handler) { h.replier = r }
}

// WithTimeout bounds the processing of one event.
func WithTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithMaxEvents caps the events processed per webhook call.
func WithMaxEvents(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxEvents = n
		}
	}
}

// WithSender sets the name and icon shown on replies.
func WithSender(name, iconURL string) HandlerOption {
	return func(h *Handler) { h.sender = lineutil.NewSender(name, iconURL) }
}
