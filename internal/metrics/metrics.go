// Package metrics defines the Prometheus metrics exported on /metrics.
// All Record* methods are safe to call on a nil *Metrics.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Chat metrics
	ChatMessagesTotal     *prometheus.CounterVec
	ChatDurationSeconds   *prometheus.HistogramVec
	IdentityAttemptsTotal *prometheus.CounterVec

	// Webhook / HTTP metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPErrorsTotal        *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec

	// LLM metrics
	LLMRequestsTotal *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	LLMFallbackTotal *prometheus.CounterVec

	// Notification metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec
	NotificationBacklog  *prometheus.GaugeVec
	ArchiveUploadsTotal  *prometheus.CounterVec

	// Store metrics
	ApplicationsByStatus *prometheus.GaugeVec
	ActiveSessions       prometheus.Gauge

	// Background jobs
	JobDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		ChatMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_chat_messages_total",
				Help: "Chat messages handled by channel and resolved intent",
			},
			[]string{"channel", "intent"}, // intent: verify, status, documents, ..., faq, nlu, default
		),
		ChatDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visadesk_chat_duration_seconds",
				Help:    "Chat turn processing time by channel",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"channel"},
		),
		IdentityAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_identity_attempts_total",
				Help: "Identity verification attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),

		WebhookDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visadesk_webhook_duration_seconds",
				Help:    "LINE webhook event processing duration by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"event_type"},
		),
		WebhookRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_webhook_requests_total",
				Help: "LINE webhook events by event type and status",
			},
			[]string{"event_type", "status"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "class"}, // class: 2xx, 4xx, 5xx
		),
		HTTPErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_http_errors_total",
				Help: "HTTP errors by type and module",
			},
			[]string{"error_type", "module"},
		),

		RateLimiterDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_rate_limiter_dropped_total",
				Help: "Requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // chat, verify, llm, global
		),

		LLMRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_llm_requests_total",
				Help: "LLM intent parsing requests by provider and status",
			},
			[]string{"provider", "status"},
		),
		LLMDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visadesk_llm_duration_seconds",
				Help:    "LLM intent parsing latency by provider",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"provider"},
		),
		LLMFallbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_llm_fallback_total",
				Help: "Provider fallbacks by source and target provider",
			},
			[]string{"from", "to"},
		),

		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_notifications_total",
				Help: "Notification lifecycle events by letter type and outcome",
			},
			[]string{"letter_type", "outcome"}, // enqueued, duplicate, sent, retry, failed
		),
		NotificationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visadesk_notification_send_seconds",
				Help:    "Notification delivery latency by sender",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"sender"},
		),
		NotificationBacklog: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "visadesk_notification_backlog",
				Help: "Outbox rows by status",
			},
			[]string{"status"},
		),
		ArchiveUploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visadesk_archive_uploads_total",
				Help: "Letter archive uploads by status",
			},
			[]string{"status"},
		),

		ApplicationsByStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "visadesk_applications",
				Help: "Applications in the store by status",
			},
			[]string{"status"},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "visadesk_active_sessions",
				Help: "Verified chat sessions that have not expired",
			},
		),

		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visadesk_job_duration_seconds",
				Help:    "Background job duration by job name",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"job"},
		),
	}
}

// RecordChatMessage increments the chat counter and observes turn latency.
func (m *Metrics) RecordChatMessage(channel, intent string, duration float64) {
	if m == nil {
		return
	}
	m.ChatMessagesTotal.WithLabelValues(channel, intent).Inc()
	m.ChatDurationSeconds.WithLabelValues(channel).Observe(duration)
}

// RecordIdentityAttempt counts a verification attempt.
func (m *Metrics) RecordIdentityAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.IdentityAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordWebhook records a LINE webhook event.
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordHTTPRequest counts an HTTP request by route and status class.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

// RecordHTTPError counts an HTTP-level error.
func (m *Metrics) RecordHTTPError(errorType, module string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop counts a request rejected by a limiter.
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// RecordLLMRequest records one LLM parse attempt.
func (m *Metrics) RecordLLMRequest(provider, status string, duration float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	m.LLMDuration.WithLabelValues(provider).Observe(duration)
}

// RecordLLMFallback records a switch to another provider.
func (m *Metrics) RecordLLMFallback(from, to string) {
	if m == nil {
		return
	}
	m.LLMFallbackTotal.WithLabelValues(from, to).Inc()
}

// RecordNotification counts a notification lifecycle event.
func (m *Metrics) RecordNotification(letterType, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(letterType, outcome).Inc()
}

// RecordNotificationSend observes delivery latency.
func (m *Metrics) RecordNotificationSend(sender string, duration float64) {
	if m == nil {
		return
	}
	m.NotificationDuration.WithLabelValues(sender).Observe(duration)
}

// SetNotificationBacklog sets the outbox gauge for one status.
func (m *Metrics) SetNotificationBacklog(status string, count int) {
	if m == nil {
		return
	}
	m.NotificationBacklog.WithLabelValues(status).Set(float64(count))
}

// RecordArchiveUpload counts an archive upload.
func (m *Metrics) RecordArchiveUpload(status string) {
	if m == nil {
		return
	}
	m.ArchiveUploadsTotal.WithLabelValues(status).Inc()
}

// SetApplications sets the per-status applications gauge.
func (m *Metrics) SetApplications(status string, count int) {
	if m == nil {
		return
	}
	m.ApplicationsByStatus.WithLabelValues(status).Set(float64(count))
}

// SetActiveSessions sets the verified-session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordJob observes a background job run.
func (m *Metrics) RecordJob(job string, duration float64) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job).Observe(duration)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var global atomic.Pointer[Metrics]

// InitGlobal sets the process-wide metrics used by packages that are
// constructed without explicit dependencies (the LLM provider chain).
func InitGlobal(m *Metrics) {
	global.Store(m)
}

// Global returns the metrics set by InitGlobal, or nil.
func Global() *Metrics {
	return global.Load()
}
