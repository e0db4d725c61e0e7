package api

import (
	"errors"
	"net/http"

	"github.com/skritek/overseer/internal/auth"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/outcome"
	"github.com/skritek/overseer/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error types
// or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrLeaseNotFound),
		errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound

	// Contract version mismatch
	case errors.Is(err, domain.ErrUnsupportedContractVersion):
		return http.StatusUnprocessableEntity

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrMissingFollowUpPrompt),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrUnsupportedContractVersion):
		return "Unsupported outcome contract version"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrMissingFollowUpPrompt):
		// Validation errors carry field-level messages that are safe to
		// surface to workers.
		var ve *outcome.ValidationError
		if errors.As(err, &ve) {
			return ve.Error()
		}
		return "Invalid outcome payload"

	default:
		return "An internal error occurred"
	}
}
