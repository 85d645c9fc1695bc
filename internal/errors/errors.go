// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidStatus indicates an application status outside the known set.
	ErrInvalidStatus = errors.New("invalid application status")

	// ErrStatusUnchanged indicates a status transition into the current status.
	ErrStatusUnchanged = errors.New("status unchanged")

	// ErrRateLimited indicates a rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownIntent indicates an unknown intent was received from NLU.
	ErrUnknownIntent = errors.New("unknown intent")

	// ErrUnknownLetterType indicates a letter template that does not exist.
	ErrUnknownLetterType = errors.New("unknown letter type")

	// ErrMissingRecipient indicates a notification without a deliverable address.
	ErrMissingRecipient = errors.New("missing recipient")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRateLimited reports whether err is or wraps ErrRateLimited.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsInvalidInput reports whether err is or wraps ErrInvalidInput or is a ValidationError.
func IsInvalidInput(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrInvalidInput) || errors.As(err, &ve)
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// HTTPStatus maps an error to the HTTP status code used by the JSON API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidInput(err), errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrUnknownLetterType),
		errors.Is(err, ErrMissingRecipient):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrStatusUnchanged):
		return http.StatusConflict
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
