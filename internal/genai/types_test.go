package genai

import (
	"slices"
	"testing"
)

func TestConfiguredProviders(t *testing.T) {
	t.Parallel()
	cfg := DefaultLLMConfig()
	if cfg.HasAnyProvider() {
		t.Fatal("default config should have no keys")
	}
	if got := cfg.ConfiguredProviders(); len(got) != 0 {
		t.Errorf("ConfiguredProviders() = %v, want none", got)
	}

	cfg.OpenAI.APIKey = "k"
	cfg.Providers = []Provider{ProviderOpenAI, ProviderGemini, ProviderOpenAI, "unknown"}
	if got := cfg.ConfiguredProviders(); !slices.Equal(got, []Provider{ProviderOpenAI}) {
		t.Errorf("ConfiguredProviders() = %v", got)
	}

	cfg.Gemini.APIKey = "g"
	if got := cfg.ConfiguredProviders(); !slices.Equal(got, []Provider{ProviderOpenAI, ProviderGemini}) {
		t.Errorf("ConfiguredProviders() = %v", got)
	}
	if cfg.GetProviderConfig("unknown") != nil {
		t.Error("unknown provider should have no config")
	}
}

func TestParseResultIsDirectReply(t *testing.T) {
	t.Parallel()
	var nilResult *ParseResult
	if nilResult.IsDirectReply() {
		t.Error("nil result is not a direct reply")
	}
	if (&ParseResult{Module: "status"}).IsDirectReply() {
		t.Error("status result is not a direct reply")
	}
	if !(&ParseResult{Module: ModuleDirectReply}).IsDirectReply() {
		t.Error("direct_reply module should report true")
	}
}
