// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "VISADESK_PORT"
	EnvLogLevel        = "VISADESK_LOG_LEVEL"
	EnvShutdownTimeout = "VISADESK_SHUTDOWN_TIMEOUT"
	EnvServerName      = "VISADESK_SERVER_NAME"
	EnvInstanceID      = "VISADESK_INSTANCE_ID"

	// Data
	EnvDataDir      = "VISADESK_DATA_DIR"
	EnvSeedOnStart  = "VISADESK_SEED_ON_START"
	EnvSessionTTL   = "VISADESK_SESSION_TTL"
	EnvAuditRetain  = "VISADESK_AUDIT_RETENTION"
	EnvWarmupGrace  = "VISADESK_WARMUP_GRACE_PERIOD"
	EnvCleanupEvery = "VISADESK_CLEANUP_INTERVAL"

	// LINE channel (optional)
	EnvLineChannelAccessToken = "VISADESK_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "VISADESK_LINE_CHANNEL_SECRET"

	// Rate limits
	EnvChatRateBurst    = "VISADESK_CHAT_RATE_BURST"
	EnvChatRateRefill   = "VISADESK_CHAT_RATE_REFILL"
	EnvVerifyRateBurst  = "VISADESK_VERIFY_RATE_BURST"
	EnvVerifyRateRefill = "VISADESK_VERIFY_RATE_REFILL"
	EnvVerifyRateDaily  = "VISADESK_VERIFY_RATE_DAILY"

	EnvVerifyClientBurst   = "VISADESK_VERIFY_CLIENT_BURST"
	EnvVerifyClientRefill  = "VISADESK_VERIFY_CLIENT_REFILL"
	EnvVerifyClientDaily   = "VISADESK_VERIFY_CLIENT_DAILY"
	EnvVerifyFailureLimit  = "VISADESK_VERIFY_FAILURE_LIMIT"
	EnvVerifyFailureWindow = "VISADESK_VERIFY_FAILURE_WINDOW"
	EnvSessionCreateBurst  = "VISADESK_SESSION_CREATE_BURST"
	EnvSessionCreateRefill = "VISADESK_SESSION_CREATE_REFILL"

	EnvLLMRateBurst     = "VISADESK_LLM_RATE_BURST"
	EnvLLMRateRefill    = "VISADESK_LLM_RATE_REFILL"
	EnvLLMRateDaily     = "VISADESK_LLM_RATE_DAILY"
	EnvGlobalRateRPS    = "VISADESK_GLOBAL_RATE_RPS"

	// FAQ
	EnvFAQMinScore = "VISADESK_FAQ_MIN_SCORE"

	// LLM feature
	EnvLLMEnabled         = "VISADESK_LLM_ENABLED"
	EnvLLMProviders       = "VISADESK_LLM_PROVIDERS"
	EnvGeminiAPIKey       = "VISADESK_GEMINI_API_KEY"
	EnvGeminiIntentModels = "VISADESK_GEMINI_INTENT_MODELS"
	EnvOpenAIAPIKey       = "VISADESK_OPENAI_API_KEY"
	EnvOpenAIEndpoint     = "VISADESK_OPENAI_ENDPOINT"
	EnvOpenAIIntentModels = "VISADESK_OPENAI_INTENT_MODELS"

	// Notifications
	EnvSendGridAPIKey         = "VISADESK_SENDGRID_API_KEY"
	EnvMailFromName           = "VISADESK_MAIL_FROM_NAME"
	EnvMailFromAddress        = "VISADESK_MAIL_FROM_ADDRESS"
	EnvNotifyPollInterval     = "VISADESK_NOTIFY_POLL_INTERVAL"
	EnvNotifyWorkers          = "VISADESK_NOTIFY_WORKERS"
	EnvNotifyMaxAttempts      = "VISADESK_NOTIFY_MAX_ATTEMPTS"
	EnvReminderInterval       = "VISADESK_REMINDER_INTERVAL"
	EnvReminderLeadTime       = "VISADESK_REMINDER_LEAD_TIME"
	EnvNotifyOnStatusChange   = "VISADESK_NOTIFY_ON_STATUS_CHANGE"
	EnvNotifyDispatchLockKey  = "VISADESK_NOTIFY_LOCK_KEY"
	EnvNotifyDispatchLockTTL  = "VISADESK_NOTIFY_LOCK_TTL"
	EnvLetterArchivePrefix    = "VISADESK_LETTER_ARCHIVE_PREFIX"
	EnvNotifyDispatchDisabled = "VISADESK_NOTIFY_DISPATCH_DISABLED"

	// R2 / S3 archive feature
	EnvR2Enabled         = "VISADESK_R2_ENABLED"
	EnvR2AccountID       = "VISADESK_R2_ACCOUNT_ID"
	EnvR2Endpoint        = "VISADESK_R2_ENDPOINT"
	EnvR2AccessKeyID     = "VISADESK_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "VISADESK_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "VISADESK_R2_BUCKET_NAME"

	// Sentry feature
	EnvSentryEnabled     = "VISADESK_SENTRY_ENABLED"
	EnvSentryDSN         = "VISADESK_SENTRY_DSN"
	EnvSentryEnvironment = "VISADESK_SENTRY_ENVIRONMENT"
	EnvSentryRelease     = "VISADESK_SENTRY_RELEASE"
	EnvSentrySampleRate  = "VISADESK_SENTRY_SAMPLE_RATE"

	// Better Stack feature
	EnvBetterStackEnabled  = "VISADESK_BETTERSTACK_ENABLED"
	EnvBetterStackToken    = "VISADESK_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "VISADESK_BETTERSTACK_ENDPOINT"

	// Basic auth for /metrics and staff routes
	EnvMetricsAuthEnabled = "VISADESK_METRICS_AUTH_ENABLED"
	EnvMetricsUsername    = "VISADESK_METRICS_USERNAME"
	EnvMetricsPassword    = "VISADESK_METRICS_PASSWORD"
	EnvStaffUsername      = "VISADESK_STAFF_USERNAME"
	EnvStaffPassword      = "VISADESK_STAFF_PASSWORD"

	// Reverse proxies allowed to set X-Forwarded-For
	EnvTrustedProxies = "VISADESK_TRUSTED_PROXIES"
)
