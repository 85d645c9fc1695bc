// Package genai provides LLM-backed intent parsing for chat messages that
// the keyword intents and the FAQ index could not answer.
//
// Providers:
//   - Gemini through google.golang.org/genai
//   - any OpenAI-compatible endpoint through github.com/openai/openai-go/v3
//
// Fallback is layered: the same model is retried with full-jitter backoff,
// then the next model in the provider's list, then the next provider.
package genai

import (
	"context"
	"time"
)

// Provider names an LLM provider.
type Provider string

const (
	// ProviderGemini is Google's Gemini API.
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint.
	ProviderOpenAI Provider = "openai"
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// IntentParser classifies free text into one of the assistant's intents.
// Implementations force function calling so every answer is a call.
type IntentParser interface {
	Parse(ctx context.Context, text string) (*ParseResult, error)
	IsEnabled() bool
	Close() error
	Provider() Provider
}

// ParseResult is a classified message.
type ParseResult struct {
	// Module is the handler name: status, documents, timeline, urgency,
	// appointment, or direct_reply.
	Module string

	// Intent is the intent within the module.
	Intent string

	// Params holds string arguments from the call, e.g. "message" for
	// direct_reply.
	Params map[string]string

	// FunctionName is the raw function name the model called.
	FunctionName string
}

// IsDirectReply reports whether the model answered with a clarification
// instead of routing to a module.
func (r *ParseResult) IsDirectReply() bool {
	return r != nil && r.Module == ModuleDirectReply
}

// RetryConfig controls retries against a single model.
type RetryConfig struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ProviderConfig configures one provider.
type ProviderConfig struct {
	APIKey string

	// Endpoint is the base URL. Only used by ProviderOpenAI.
	Endpoint string

	// IntentModels are tried in order.
	IntentModels []string
}

// LLMConfig configures all providers.
type LLMConfig struct {
	// Providers is the fallback order. Providers without an API key are skipped.
	Providers []Provider

	Gemini ProviderConfig
	OpenAI ProviderConfig

	RetryConfig RetryConfig
}

// Default model chains.
var (
	DefaultGeminiIntentModels = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	DefaultOpenAIIntentModels = []string{"gpt-4o-mini"}
	DefaultProviders          = []Provider{ProviderGemini, ProviderOpenAI}
)

// Retry defaults.
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// HasAnyProvider reports whether any provider has an API key.
func (c *LLMConfig) HasAnyProvider() bool {
	return c.Gemini.APIKey != "" || c.OpenAI.APIKey != ""
}

// GetProviderConfig returns the configuration for p, or nil.
func (c *LLMConfig) GetProviderConfig(p Provider) *ProviderConfig {
	switch p {
	case ProviderGemini:
		return &c.Gemini
	case ProviderOpenAI:
		return &c.OpenAI
	default:
		return nil
	}
}

// ConfiguredProviders returns the providers with API keys, in c.Providers
// order, without duplicates.
func (c *LLMConfig) ConfiguredProviders() []Provider {
	seen := make(map[Provider]bool, len(c.Providers))
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		pc := c.GetProviderConfig(p)
		if pc == nil || pc.APIKey == "" || seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}

// DefaultLLMConfig returns the default chains. API keys are set by the caller.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers:   DefaultProviders,
		Gemini:      ProviderConfig{IntentModels: DefaultGeminiIntentModels},
		OpenAI:      ProviderConfig{IntentModels: DefaultOpenAIIntentModels},
		RetryConfig: DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}
