package document

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned when a fiscal document is not found
	ErrDocumentNotFound = errors.New("fiscal document not found")

	// ErrInvalidStatusTransition is returned when a lifecycle transition is not legal
	ErrInvalidStatusTransition = errors.New("invalid document status transition")

	// ErrMissingAccessKey is returned when an operation requires the access key
	// and the document does not carry one
	ErrMissingAccessKey = errors.New("document has no access key")
)

// ValidationError represents an error that occurs during document validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}
