package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrorAction is what the fallback chain does after a failure.
type ErrorAction int

const (
	// ActionRetry retries the same model after a backoff.
	ActionRetry ErrorAction = iota
	// ActionFallback moves on to the next parser in the chain.
	ActionFallback
	// ActionFail stops the chain.
	ActionFail
)

// String returns the action name used in logs.
func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// LLMError carries the provider and HTTP status of a failed call.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   Provider
}

// Error implements error.
func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return e.Err.Error() + " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// WrapError attaches provider and status to err.
func WrapError(err error, provider Provider, statusCode int) error {
	if err == nil {
		return nil
	}
	return &LLMError{Err: err, StatusCode: statusCode, Provider: provider}
}

// Message patterns, checked in order. Quota exhaustion comes before rate
// limiting because both mention 429 on some providers.
var errorPatterns = []struct {
	action   ErrorAction
	patterns []string
}{
	{ActionFallback, []string{"quota", "daily limit", "monthly limit", "billing"}},
	{ActionRetry, []string{"rate limit", "too many requests", "resource_exhausted", "429"}},
	{ActionRetry, []string{"unavailable", "overloaded", "capacity", "internal server error",
		"bad gateway", "gateway timeout", "500", "502", "503", "504"}},
	{ActionRetry, []string{"timeout", "deadline", "connection", "408", "409"}},
	{ActionFail, []string{"invalid api key", "unauthorized", "unauthenticated", "401",
		"forbidden", "permission denied", "403"}},
	{ActionFail, []string{"bad request", "invalid", "malformed", "400", "not found", "404",
		"unprocessable", "422"}},
}

// ClassifyError decides how the chain reacts to err.
//   - transient failures (429, 5xx, timeouts, network) retry
//   - quota exhaustion falls back to the next parser
//   - client errors (400, 401, 403, 404, 422) and cancellation fail
//   - responses the parser could not interpret fall back
func ClassifyError(err error) ErrorAction {
	if err == nil || errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}
	if code := statusCode(err); code > 0 {
		return classifyStatusCode(code)
	}

	msg := strings.ToLower(err.Error())
	for _, group := range errorPatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.action
			}
		}
	}
	if strings.Contains(msg, "function") || strings.Contains(msg, "response") {
		return ActionFallback
	}
	return ActionRetry
}

// statusCode extracts an HTTP status from provider SDK errors.
func statusCode(err error) int {
	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return llmErr.StatusCode
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

func classifyStatusCode(code int) ErrorAction {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code >= 500 && code < 600:
		return ActionRetry
	case code >= 400 && code < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// errorLabel maps err to a metric status label.
func errorLabel(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return "rate_limit"
	case code >= 500:
		return "server_error"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth_error"
	case code == http.StatusBadRequest:
		return "invalid_request"
	}
	switch ClassifyError(err) {
	case ActionFallback:
		return "fallback"
	case ActionRetry:
		return "transient_error"
	default:
		return "error"
	}
}
