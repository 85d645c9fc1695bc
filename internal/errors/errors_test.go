package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{
			name:     "ErrNotFound is recognized",
			err:      ErrNotFound,
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Wrapped ErrNotFound is recognized",
			err:      fmt.Errorf("application WP-1: %w", ErrNotFound),
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Different error is not ErrNotFound",
			err:      ErrRateLimited,
			checkFn:  IsNotFound,
			expected: false,
		},
		{
			name:     "ErrRateLimited is recognized",
			err:      ErrRateLimited,
			checkFn:  IsRateLimited,
			expected: true,
		},
		{
			name:     "ValidationError counts as invalid input",
			err:      NewValidationError("status", "required"),
			checkFn:  IsInvalidInput,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.checkFn(tt.err)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("email", "invalid format")

	expected := "validation failed on email: invalid format"
	if err.Error() != expected {
		t.Errorf("expected error '%s', got '%s'", expected, err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewValidationError("type", "required"), http.StatusBadRequest},
		{fmt.Errorf("set: %w", ErrInvalidStatus), http.StatusBadRequest},
		{ErrUnknownLetterType, http.StatusBadRequest},
		{fmt.Errorf("notify: %w", ErrMissingRecipient), http.StatusBadRequest},
		{fmt.Errorf("get: %w", ErrNotFound), http.StatusNotFound},
		{ErrStatusUnchanged, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestGetUserMessage(t *testing.T) {
	wrapper := NewWrapper("storage", "update_status")

	if got := wrapper.Wrap(nil, "ignored"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}

	base := errors.New("database is locked")
	wrapped := fmt.Errorf("handler: %w", wrapper.Wrapf(base, "could not update %s", "WP-2024-1234"))

	if got := GetUserMessage(wrapped); got != "could not update WP-2024-1234" {
		t.Errorf("GetUserMessage() = %q", got)
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to base error")
	}
	if got := GetUserMessage(base); got != base.Error() {
		t.Errorf("GetUserMessage(plain) = %q, want %q", got, base.Error())
	}
}
