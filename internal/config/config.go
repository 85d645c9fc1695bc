// Package config provides application configuration management.
// It loads settings from environment variables (optionally from a .env file)
// and validates them before the server starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	ServerName      string
	InstanceID      string

	// Data
	DataDir           string
	SeedOnStart       bool
	SessionTTL        time.Duration // Idle time before a verified chat session expires
	AuditRetention    time.Duration // Verification audit rows older than this are purged
	CleanupInterval   time.Duration
	WarmupGracePeriod time.Duration

	// LINE channel (optional, enabled when both values are set)
	LineChannelToken  string
	LineChannelSecret string

	// Rate limits and dialogue tuning
	Chat ChatConfig

	// LLM
	LLMEnabled         bool
	LLMProviders       []string
	GeminiAPIKey       string
	GeminiIntentModels []string
	OpenAIAPIKey       string
	OpenAIEndpoint     string
	OpenAIIntentModels []string

	// Notifications
	Notify NotifyConfig

	// R2 / S3 archive
	R2Enabled         bool
	R2AccountID       string
	R2Endpoint        string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Sentry
	SentryEnabled     bool
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
	SentrySampleRate  float64

	// Better Stack
	BetterStackEnabled  bool
	BetterStackToken    string
	BetterStackEndpoint string

	// Basic auth
	MetricsAuthEnabled bool
	MetricsUsername    string
	MetricsPassword    string
	StaffUsername      string
	StaffPassword      string

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address
	// is the client address.
	TrustedProxies []string
}

// ChatConfig holds dialogue and rate-limit settings.
type ChatConfig struct {
	MaxMessageLength int

	ChatRateBurst  float64 // Messages a session may send in a burst
	ChatRateRefill float64 // Messages refilled per second

	VerifyRateBurst  float64 // Verification attempts in a burst
	VerifyRateRefill float64 // Attempts refilled per second
	VerifyRateDaily  int     // 0 disables the daily cap

	// Per-client limits apply across sessions (web client IP, LINE user).
	VerifyClientBurst  float64
	VerifyClientRefill float64
	VerifyClientDaily  int

	// Failed verifications allowed per window across all clients.
	// 0 disables the budget.
	VerifyFailureLimit  int
	VerifyFailureWindow time.Duration

	SessionCreateBurst  float64 // New web sessions per client in a burst
	SessionCreateRefill float64

	LLMRateBurst  float64
	LLMRateRefill float64 // Tokens refilled per hour
	LLMRateDaily  int

	GlobalRateRPS float64 // LINE reply API budget

	FAQMinScore float64
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	SendGridAPIKey   string
	FromName         string
	FromAddress      string
	PollInterval     time.Duration
	Workers          int
	MaxAttempts      int
	ReminderInterval time.Duration
	ReminderLeadTime time.Duration
	OnStatusChange   bool
	DispatchDisabled bool
	DispatchLockKey  string
	DispatchLockTTL  time.Duration
	ArchivePrefix    string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		ServerName:      getEnv(EnvServerName, "visadesk"),
		InstanceID:      getEnv(EnvInstanceID, ""),

		DataDir:           getEnv(EnvDataDir, getDefaultDataDir()),
		SeedOnStart:       getBoolEnv(EnvSeedOnStart, true),
		SessionTTL:        getDurationEnv(EnvSessionTTL, 30*time.Minute),
		AuditRetention:    getDurationEnv(EnvAuditRetain, 90*24*time.Hour),
		CleanupInterval:   getDurationEnv(EnvCleanupEvery, 10*time.Minute),
		WarmupGracePeriod: getDurationEnv(EnvWarmupGrace, 30*time.Second),

		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		Chat: ChatConfig{
			MaxMessageLength: 2000,
			ChatRateBurst:    getFloatEnv(EnvChatRateBurst, 15),
			ChatRateRefill:   getFloatEnv(EnvChatRateRefill, 0.5),
			VerifyRateBurst:  getFloatEnv(EnvVerifyRateBurst, 5),
			VerifyRateRefill: getFloatEnv(EnvVerifyRateRefill, 1.0/60.0),
			VerifyRateDaily:  getIntEnv(EnvVerifyRateDaily, 20),

			VerifyClientBurst:   getFloatEnv(EnvVerifyClientBurst, 10),
			VerifyClientRefill:  getFloatEnv(EnvVerifyClientRefill, 1.0/60.0),
			VerifyClientDaily:   getIntEnv(EnvVerifyClientDaily, 50),
			VerifyFailureLimit:  getIntEnv(EnvVerifyFailureLimit, 200),
			VerifyFailureWindow: getDurationEnv(EnvVerifyFailureWindow, 15*time.Minute),
			SessionCreateBurst:  getFloatEnv(EnvSessionCreateBurst, 10),
			SessionCreateRefill: getFloatEnv(EnvSessionCreateRefill, 1.0/30.0),

			LLMRateBurst:     getFloatEnv(EnvLLMRateBurst, 20),
			LLMRateRefill:    getFloatEnv(EnvLLMRateRefill, 10),
			LLMRateDaily:     getIntEnv(EnvLLMRateDaily, 50),
			GlobalRateRPS:    getFloatEnv(EnvGlobalRateRPS, 80),
			FAQMinScore:      getFloatEnv(EnvFAQMinScore, 1.2),
		},

		LLMEnabled:         getBoolEnv(EnvLLMEnabled, false),
		LLMProviders:       getListEnv(EnvLLMProviders, []string{"gemini", "openai"}),
		GeminiAPIKey:       getEnv(EnvGeminiAPIKey, ""),
		GeminiIntentModels: getListEnv(EnvGeminiIntentModels, nil),
		OpenAIAPIKey:       getEnv(EnvOpenAIAPIKey, ""),
		OpenAIEndpoint:     getEnv(EnvOpenAIEndpoint, ""),
		OpenAIIntentModels: getListEnv(EnvOpenAIIntentModels, nil),

		Notify: NotifyConfig{
			SendGridAPIKey:   getEnv(EnvSendGridAPIKey, ""),
			FromName:         getEnv(EnvMailFromName, "German Foreign Office - Visa Section"),
			FromAddress:      getEnv(EnvMailFromAddress, "visa-noreply@germany.gov"),
			PollInterval:     getDurationEnv(EnvNotifyPollInterval, 5*time.Second),
			Workers:          getIntEnv(EnvNotifyWorkers, 4),
			MaxAttempts:      getIntEnv(EnvNotifyMaxAttempts, 5),
			ReminderInterval: getDurationEnv(EnvReminderInterval, time.Hour),
			ReminderLeadTime: getDurationEnv(EnvReminderLeadTime, 72*time.Hour),
			OnStatusChange:   getBoolEnv(EnvNotifyOnStatusChange, true),
			DispatchDisabled: getBoolEnv(EnvNotifyDispatchDisabled, false),
			DispatchLockKey:  getEnv(EnvNotifyDispatchLockKey, "locks/notify-dispatcher.lock"),
			DispatchLockTTL:  getDurationEnv(EnvNotifyDispatchLockTTL, 2*time.Minute),
			ArchivePrefix:    getEnv(EnvLetterArchivePrefix, "letters"),
		},

		R2Enabled:         getBoolEnv(EnvR2Enabled, false),
		R2AccountID:       getEnv(EnvR2AccountID, ""),
		R2Endpoint:        getEnv(EnvR2Endpoint, ""),
		R2AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
		R2SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
		R2BucketName:      getEnv(EnvR2BucketName, ""),

		SentryEnabled:     getBoolEnv(EnvSentryEnabled, false),
		SentryDSN:         getEnv(EnvSentryDSN, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentryRelease:     getEnv(EnvSentryRelease, ""),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackEnabled:  getBoolEnv(EnvBetterStackEnabled, false),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		MetricsAuthEnabled: getBoolEnv(EnvMetricsAuthEnabled, false),
		MetricsUsername:    getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:    getEnv(EnvMetricsPassword, ""),
		StaffUsername:      getEnv(EnvStaffUsername, "staff"),
		StaffPassword:      getEnv(EnvStaffPassword, ""),

		TrustedProxies: getListEnv(EnvTrustedProxies, nil),
	}

	if cfg.R2Endpoint == "" && cfg.R2AccountID != "" {
		cfg.R2Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required values are present and ranges are sane.
// All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New(EnvPort+" is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New(EnvDataDir+" is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvSessionTTL, c.SessionTTL))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvShutdownTimeout, c.ShutdownTimeout))
	}
	if (c.LineChannelToken == "") != (c.LineChannelSecret == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
	}
	if c.Chat.ChatRateBurst <= 0 || c.Chat.VerifyRateBurst <= 0 || c.Chat.VerifyClientBurst <= 0 || c.Chat.SessionCreateBurst <= 0 {
		errs = append(errs, errors.New("rate limit bursts must be positive"))
	}
	if c.Chat.VerifyRateDaily < 0 || c.Chat.VerifyClientDaily < 0 || c.Chat.LLMRateDaily < 0 {
		errs = append(errs, errors.New("daily limits cannot be negative"))
	}
	if c.Chat.VerifyFailureLimit < 0 || (c.Chat.VerifyFailureLimit > 0 && c.Chat.VerifyFailureWindow <= 0) {
		errs = append(errs, fmt.Errorf("%s needs a positive %s", EnvVerifyFailureLimit, EnvVerifyFailureWindow))
	}
	if c.LLMEnabled && c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("%s requires %s or %s", EnvLLMEnabled, EnvGeminiAPIKey, EnvOpenAIAPIKey))
	}
	if c.OpenAIAPIKey != "" && c.OpenAIEndpoint == "" {
		errs = append(errs, fmt.Errorf("%s is required with %s", EnvOpenAIEndpoint, EnvOpenAIAPIKey))
	}
	if c.Notify.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvNotifyWorkers, c.Notify.Workers))
	}
	if c.Notify.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvNotifyMaxAttempts, c.Notify.MaxAttempts))
	}
	if c.Notify.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvNotifyPollInterval, c.Notify.PollInterval))
	}
	if c.R2Enabled {
		if c.R2Endpoint == "" {
			errs = append(errs, fmt.Errorf("%s or %s is required when R2 is enabled", EnvR2Endpoint, EnvR2AccountID))
		}
		if c.R2AccessKeyID == "" || c.R2SecretAccessKey == "" {
			errs = append(errs, errors.New("R2 credentials are required when R2 is enabled"))
		}
		if c.R2BucketName == "" {
			errs = append(errs, errors.New(EnvR2BucketName+" is required when R2 is enabled"))
		}
	}
	if c.SentryEnabled && c.SentryDSN == "" {
		errs = append(errs, errors.New(EnvSentryDSN+" is required when Sentry is enabled"))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", EnvSentrySampleRate, c.SentrySampleRate))
	}
	if c.BetterStackEnabled && c.BetterStackToken == "" {
		errs = append(errs, errors.New(EnvBetterStackToken+" is required when Better Stack is enabled"))
	}
	if c.MetricsAuthEnabled && c.MetricsPassword == "" {
		errs = append(errs, errors.New(EnvMetricsPassword+" is required when metrics auth is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SQLitePath returns the full path to the SQLite database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "visadesk.db")
}

// LineEnabled reports whether the LINE channel is configured.
func (c *Config) LineEnabled() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// HasLLMProvider returns true if the LLM fallback is enabled with at least one key.
func (c *Config) HasLLMProvider() bool {
	return c.LLMEnabled && (c.GeminiAPIKey != "" || c.OpenAIAPIKey != "")
}

// StaffAuthEnabled reports whether staff routes require Basic Auth.
func (c *Config) StaffAuthEnabled() bool {
	return c.StaffPassword != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv reads a comma-separated list, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
