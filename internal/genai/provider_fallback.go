package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garyellow/visadesk/internal/backoff"
	"github.com/garyellow/visadesk/internal/metrics"
)

// FallbackIntentParser tries a chain of parsers in order. Each parser is
// retried on transient errors before the chain moves on.
type FallbackIntentParser struct {
	parsers     []IntentParser
	retryConfig RetryConfig
	metrics     *metrics.Metrics
}

// NewFallbackIntentParser builds a chain. Nil parsers are skipped.
func NewFallbackIntentParser(cfg RetryConfig, m *metrics.Metrics, parsers ...IntentParser) *FallbackIntentParser {
	chain := make([]IntentParser, 0, len(parsers))
	for _, p := range parsers {
		if p != nil && p.IsEnabled() {
			chain = append(chain, p)
		}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &FallbackIntentParser{parsers: chain, retryConfig: cfg, metrics: m}
}

// Parse returns the first successful result. A permanent error stops the
// chain at once.
func (f *FallbackIntentParser) Parse(ctx context.Context, text string) (*ParseResult, error) {
	if f == nil || len(f.parsers) == 0 {
		return nil, errors.New("intent parser not configured")
	}

	var lastErr error
	for i, parser := range f.parsers {
		start := time.Now()
		result, err := f.parseWithRetry(ctx, parser, text)
		f.metrics.RecordLLMRequest(parser.Provider().String(), errorLabel(err), time.Since(start).Seconds())
		if err == nil {
			if i > 0 {
				f.metrics.RecordLLMFallback(f.parsers[0].Provider().String(), parser.Provider().String())
			}
			return result, nil
		}
		lastErr = err

		action := ClassifyError(err)
		slog.WarnContext(ctx, "Intent parser failed",
			"provider", parser.Provider(),
			"position", i,
			"action", action,
			"error", err)
		if action == ActionFail {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (f *FallbackIntentParser) parseWithRetry(ctx context.Context, parser IntentParser, text string) (*ParseResult, error) {
	var lastErr error
	for attempt := range f.retryConfig.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := parser.Parse(ctx, text)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ClassifyError(err) != ActionRetry || attempt == f.retryConfig.MaxAttempts-1 {
			return nil, err
		}

		delay := backoff.FullJitter(attempt+1, f.retryConfig.InitialDelay, f.retryConfig.MaxDelay)
		if !backoff.HasBudget(ctx, delay) {
			return nil, fmt.Errorf("timeout during retry: %w", lastErr)
		}
		slog.DebugContext(ctx, "Retrying intent parse",
			"provider", parser.Provider(),
			"attempt", attempt+1,
			"backoff", delay,
			"error", err)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// IsEnabled reports whether the chain has at least one parser.
func (f *FallbackIntentParser) IsEnabled() bool {
	return f != nil && len(f.parsers) > 0
}

// Provider returns the first provider in the chain.
func (f *FallbackIntentParser) Provider() Provider {
	if f == nil || len(f.parsers) == 0 {
		return ""
	}
	return f.parsers[0].Provider()
}

// Len returns the chain length.
func (f *FallbackIntentParser) Len() int {
	if f == nil {
		return 0
	}
	return len(f.parsers)
}

// Close closes every parser in the chain.
func (f *FallbackIntentParser) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.parsers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
