package outcome

import (
	"errors"
	"fmt"

	"github.com/skritek/overseer/internal/store"
)

// ErrTaskNotFound is returned when an outcome report names a task that does
// not exist.
var ErrTaskNotFound = store.ErrTaskNotFound

// ValidationError is returned for any outcome report the contract rejects.
// Validation happens before any mutation; a caller receiving one can retry
// with a corrected payload.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid outcome report: %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid outcome report: %s: %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
