package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiIntentParser parses intents through any OpenAI-compatible
// chat completions endpoint.
type openaiIntentParser struct {
	client     openai.Client
	model      string
	tools      []openai.ChatCompletionToolUnionParam
	systemInst string
}

// newOpenAIIntentParser returns nil, nil when apiKey is empty. endpoint and
// model are required otherwise.
func newOpenAIIntentParser(_ context.Context, apiKey, model, endpoint string) (*openaiIntentParser, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // NLU disabled without a key
	}
	if endpoint == "" {
		return nil, errors.New("endpoint is required for OpenAI-compatible provider")
	}
	if model == "" {
		return nil, errors.New("model is required for OpenAI-compatible provider")
	}

	client := openai.NewClient(
		option.WithBaseURL(endpoint),
		option.WithAPIKey(apiKey),
	)

	return &openaiIntentParser{
		client:     client,
		model:      model,
		tools:      buildOpenAITools(),
		systemInst: IntentParserSystemPrompt,
	}, nil
}

// buildOpenAITools converts the genai declarations to OpenAI tools.
// JSON Schema types are lowercase.
func buildOpenAITools() []openai.ChatCompletionToolUnionParam {
	decls := BuildIntentFunctions()
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(decls))

	for _, fd := range decls {
		properties := make(map[string]any, len(fd.Parameters.Properties))
		for name, schema := range fd.Parameters.Properties {
			properties[name] = map[string]string{
				"type":        strings.ToLower(string(schema.Type)),
				"description": schema.Description,
			}
		}
		required := fd.Parameters.Required
		if required == nil {
			required = []string{}
		}

		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        fd.Name,
			Description: openai.String(fd.Description),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}))
	}
	return tools
}

// Parse classifies text. Tool choice "required" forces a call.
func (p *openaiIntentParser) Parse(ctx context.Context, text string) (*ParseResult, error) {
	if p == nil {
		return nil, errors.New("intent parser is nil")
	}

	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.systemInst),
			openai.UserMessage(text),
		},
		Tools: p.tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(256),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "Intent parsing API call failed",
			"provider", ProviderOpenAI,
			"model", p.model,
			"input_length", len(text),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	parsed, err := p.parseResult(resp)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Intent parsing completed",
		"provider", ProviderOpenAI,
		"model", p.model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", duration.Milliseconds(),
		"function_name", parsed.FunctionName)
	return parsed, nil
}

func (p *openaiIntentParser) parseResult(resp *openai.ChatCompletion) (*ParseResult, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("empty response from model")
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, errors.New("no tool call in response (expected with required mode)")
	}
	return parseToolCall(calls[0])
}

func parseToolCall(tc openai.ChatCompletionMessageToolCallUnion) (*ParseResult, error) {
	if tc.Type != "function" {
		return nil, fmt.Errorf("unexpected tool type: %s", tc.Type)
	}
	var args map[string]any
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse function arguments: %w", err)
		}
	}
	return resultFromCall(tc.Function.Name, args)
}

// IsEnabled reports whether the parser exists.
func (p *openaiIntentParser) IsEnabled() bool {
	return p != nil
}

// Provider returns ProviderOpenAI.
func (p *openaiIntentParser) Provider() Provider {
	return ProviderOpenAI
}

// Close is a no-op.
func (p *openaiIntentParser) Close() error {
	return nil
}
