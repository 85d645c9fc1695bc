package genai

import (
	"context"
	"log/slog"

	"github.com/garyellow/visadesk/internal/metrics"
)

// CreateIntentParser builds the fallback chain from cfg: every model of the
// first configured provider, then every model of the next one.
// It returns nil, nil when no provider has an API key.
func CreateIntentParser(ctx context.Context, cfg LLMConfig, m *metrics.Metrics) (IntentParser, error) {
	var parsers []IntentParser

	for _, provider := range cfg.ConfiguredProviders() {
		pc := cfg.GetProviderConfig(provider)
		models := pc.IntentModels
		if len(models) == 0 {
			switch provider {
			case ProviderGemini:
				models = DefaultGeminiIntentModels
			case ProviderOpenAI:
				models = DefaultOpenAIIntentModels
			}
		}

		for _, model := range models {
			var (
				p   IntentParser
				err error
			)
			switch provider {
			case ProviderGemini:
				var gp *geminiIntentParser
				gp, err = newGeminiIntentParser(ctx, pc.APIKey, model)
				if gp != nil {
					p = gp
				}
			case ProviderOpenAI:
				var op *openaiIntentParser
				op, err = newOpenAIIntentParser(ctx, pc.APIKey, model, pc.Endpoint)
				if op != nil {
					p = op
				}
			}
			if err != nil {
				slog.WarnContext(ctx, "Failed to create intent parser",
					"provider", provider,
					"model", model,
					"error", err)
				continue
			}
			if p != nil {
				parsers = append(parsers, p)
			}
		}
	}

	if len(parsers) == 0 {
		slog.InfoContext(ctx, "No LLM provider configured for intent parsing")
		return nil, nil //nolint:nilnil // NLU disabled
	}

	slog.InfoContext(ctx, "Intent parser configured",
		"primary", parsers[0].Provider(),
		"chain_size", len(parsers))
	return NewFallbackIntentParser(cfg.RetryConfig, m, parsers...), nil
}
