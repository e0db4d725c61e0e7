// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTaskStatus is returned when a task status is not one of the
	// known lifecycle states.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidRecommendedAction is returned when an outcome report names an
	// action outside the supported vocabulary.
	ErrInvalidRecommendedAction = errors.New("invalid recommended action")

	// ErrUnsupportedContractVersion is returned when an outcome payload
	// declares a contract version this server does not speak.
	ErrUnsupportedContractVersion = errors.New("unsupported contract version")

	// ErrMissingFollowUpPrompt is returned when a requeue outcome omits the
	// prompt the next run would need.
	ErrMissingFollowUpPrompt = errors.New("follow-up prompt required for requeue")
)

// ValidationError carries the field that failed validation along with the
// underlying sentinel, so callers can both errors.Is and present a message.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError for the given field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
