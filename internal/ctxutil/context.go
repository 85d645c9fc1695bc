// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	sessionKeyKey contextKey = "ctxutil.sessionKey"
	channelKey    contextKey = "ctxutil.channel"
	userIDKey     contextKey = "ctxutil.userID"
	chatIDKey     contextKey = "ctxutil.chatID"
	requestIDKey  contextKey = "ctxutil.requestID"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func getString(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithSessionKey adds the chat session key to the context.
// The key identifies one conversation across channels (e.g. "web:<uuid>", "line:<chatID>").
func WithSessionKey(ctx context.Context, key string) context.Context {
	return withString(ctx, sessionKeyKey, key)
}

// GetSessionKey returns the session key, or "" if absent.
func GetSessionKey(ctx context.Context) string {
	return getString(ctx, sessionKeyKey)
}

// MustGetSessionKey returns the session key and panics if it is absent.
func MustGetSessionKey(ctx context.Context) string {
	key := GetSessionKey(ctx)
	if key == "" {
		panic("ctxutil: sessionKey not found")
	}
	return key
}

// WithChannel adds the inbound channel name ("web", "line").
func WithChannel(ctx context.Context, channel string) context.Context {
	return withString(ctx, channelKey, channel)
}

// GetChannel returns the channel name, or "" if absent.
func GetChannel(ctx context.Context) string {
	return getString(ctx, channelKey)
}

// WithUserID adds a LINE user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

// GetUserID returns the LINE user ID, or "" if absent.
func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}

// WithChatID adds a LINE chat ID (user, group, or room) to the context.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return withString(ctx, chatIDKey, chatID)
}

// GetChatID returns the LINE chat ID, or "" if absent.
func GetChatID(ctx context.Context) string {
	return getString(ctx, chatIDKey)
}

// WithRequestID adds a request ID to the context for tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Use for async work that must outlive the request, such as LINE webhook
// processing after the 200 response or notification enqueueing after a
// staff status change.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	for _, key := range []contextKey{sessionKeyKey, channelKey, userIDKey, chatIDKey, requestIDKey} {
		if v := getString(ctx, key); v != "" {
			newCtx = withString(newCtx, key, v)
		}
	}

	return newCtx
}
