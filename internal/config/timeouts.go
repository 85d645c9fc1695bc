package config

import "time"

// HTTP server timeouts
const (
	// ChatProcessing bounds a single chat turn, including an optional LLM call.
	ChatProcessing = 20 * time.Second

	// WebhookProcessing bounds one LINE webhook event.
	// LINE shows the loading animation for up to 60s.
	WebhookProcessing = 30 * time.Second

	HTTPRead  = 10 * time.Second
	HTTPWrite = 35 * time.Second
	HTTPIdle  = 120 * time.Second

	// ReadinessCheckTimeout bounds the database ping in /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 10 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of reader connections.
	DatabaseConnMaxLifetime = time.Hour

	// SlowQueryThreshold is the duration above which queries are logged at warn.
	SlowQueryThreshold = 100 * time.Millisecond
)

// Background job intervals
const (
	// RateLimiterCleanupInterval is how often idle per-key limiters are dropped.
	RateLimiterCleanupInterval = 5 * time.Minute

	// MetricsUpdateInterval is how often store gauges are refreshed.
	MetricsUpdateInterval = time.Minute

	// SenderRequest bounds one outbound email API call.
	SenderRequest = 15 * time.Second

	// ArchiveRequest bounds one archive upload.
	ArchiveRequest = 30 * time.Second
)

// Notification retry backoff
const (
	NotifyRetryInitial = 30 * time.Second
	NotifyRetryMax     = time.Hour
)

// GracefulShutdown is the default timeout for graceful server shutdown.
const GracefulShutdown = 30 * time.Second
