package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// geminiIntentParser parses intents with Gemini function calling.
type geminiIntentParser struct {
	client     *genai.Client
	model      string
	tools      []*genai.Tool
	systemInst string
}

// newGeminiIntentParser returns nil, nil when apiKey is empty.
func newGeminiIntentParser(ctx context.Context, apiKey, model string) (*geminiIntentParser, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // NLU disabled without a key
	}
	if model == "" {
		model = DefaultGeminiIntentModels[0]
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiIntentParser{
		client:     client,
		model:      model,
		tools:      []*genai.Tool{{FunctionDeclarations: BuildIntentFunctions()}},
		systemInst: IntentParserSystemPrompt,
	}, nil
}

// Parse classifies text. ANY mode forces a function call.
func (p *geminiIntentParser) Parse(ctx context.Context, text string) (*ParseResult, error) {
	if p == nil {
		return nil, errors.New("intent parser is nil")
	}

	config := &genai.GenerateContentConfig{
		Tools:             p.tools,
		SystemInstruction: genai.NewContentFromText(p.systemInst, genai.RoleUser),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 256,
	}

	start := time.Now()
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(text), config)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "Intent parsing API call failed",
			"provider", ProviderGemini,
			"model", p.model,
			"input_length", len(text),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("generate content failed: %w", err)
	}

	parsed, err := p.parseResult(result)
	if err != nil {
		return nil, err
	}
	if result.UsageMetadata != nil {
		slog.DebugContext(ctx, "Intent parsing completed",
			"provider", ProviderGemini,
			"model", p.model,
			"total_tokens", result.UsageMetadata.TotalTokenCount,
			"duration_ms", duration.Milliseconds(),
			"function_name", parsed.FunctionName)
	}
	return parsed, nil
}

func (p *geminiIntentParser) parseResult(result *genai.GenerateContentResponse) (*ParseResult, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, errors.New("empty response from model")
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, errors.New("no content in response")
	}
	for _, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			return resultFromCall(part.FunctionCall.Name, part.FunctionCall.Args)
		}
	}
	return nil, errors.New("no function call in response (expected with ANY mode)")
}

// IsEnabled reports whether the parser has a client.
func (p *geminiIntentParser) IsEnabled() bool {
	return p != nil && p.client != nil
}

// Provider returns ProviderGemini.
func (p *geminiIntentParser) Provider() Provider {
	return ProviderGemini
}

// Close is a no-op; genai.Client holds no resources.
func (p *geminiIntentParser) Close() error {
	return nil
}

// resultFromCall maps a function call to a ParseResult. Declared string
// parameters must be strings; a missing direct_reply message is an error.
func resultFromCall(funcName string, args map[string]any) (*ParseResult, error) {
	moduleIntent, ok := IntentModuleMap[funcName]
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", funcName)
	}

	params := make(map[string]string)
	for _, key := range ParamKeysMap[funcName] {
		value, exists := args[key]
		if !exists {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q for function %q is not a string (got %T)", key, funcName, value)
		}
		params[key] = s
	}
	if moduleIntent[0] == ModuleDirectReply && params["message"] == "" {
		return nil, fmt.Errorf("missing required parameter %q for function %q", "message", funcName)
	}

	return &ParseResult{
		Module:       moduleIntent[0],
		Intent:       moduleIntent[1],
		Params:       params,
		FunctionName: funcName,
	}, nil
}
