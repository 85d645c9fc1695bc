// Package sentry wraps the Sentry SDK for error reporting from HTTP
// handlers and background jobs.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds Sentry settings.
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64 // 0 means 1.0
	Debug       bool
}

// Initialize sets up the global hub. An empty DSN leaves Sentry disabled
// and returns nil.
func Initialize(cfg Config) error {
	if cfg.DSN == "" {
		return nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("sentry: sample rate %v out of range", cfg.SampleRate)
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 1.0
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       rate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits up to timeout for buffered events.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled reports whether a client is bound to the current hub.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException reports err with tags. The hub attached to ctx (set by
// the gin middleware) is preferred over the global one.
func CaptureException(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// CaptureMessage reports a plain message.
func CaptureMessage(ctx context.Context, message string) {
	hubFrom(ctx).CaptureMessage(message)
}

// Recover reports a panic from a background goroutine and stops it from
// crashing the process. Use as: defer sentry.Recover(ctx, "job-name").
func Recover(ctx context.Context, job string) {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	CaptureException(ctx, errors.Join(fmt.Errorf("panic in %s", job), err), map[string]string{"job": job})
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return sentry.CurrentHub()
}
