package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound          = New(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists     = New(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation        = New(ErrCodeValidation, "validation error")
	ErrInvalidOperation  = New(ErrCodeInvalidOperation, "invalid operation")
	ErrCertificate       = New(ErrCodeCertificate, "invalid or missing certificate")
	ErrAuthorityRejected = New(ErrCodeAuthorityRejected, "rejected by the tax authority")
	ErrCodec             = New(ErrCodeCodec, "payload encoding error")
	ErrTransport         = New(ErrCodeTransport, "communication failure with the tax authority")
	ErrHTTPClient        = New(ErrCodeHTTPClient, "http client error")
	ErrDatabase          = New(ErrCodeDatabase, "database error")
	ErrSystem            = New(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:          http.StatusNotFound,
		ErrAlreadyExists:     http.StatusConflict,
		ErrValidation:        http.StatusBadRequest,
		ErrInvalidOperation:  http.StatusBadRequest,
		ErrCertificate:       http.StatusBadRequest,
		ErrAuthorityRejected: http.StatusUnprocessableEntity,
		ErrCodec:             http.StatusInternalServerError,
		ErrTransport:         http.StatusBadGateway,
		ErrHTTPClient:        http.StatusInternalServerError,
		ErrDatabase:          http.StatusInternalServerError,
		ErrSystem:            http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound          = "not_found"
	ErrCodeAlreadyExists     = "already_exists"
	ErrCodeValidation        = "validation_error"
	ErrCodeInvalidOperation  = "invalid_operation"
	ErrCodeCertificate       = "certificate_error"
	ErrCodeAuthorityRejected = "authority_rejected"
	ErrCodeCodec             = "codec_error"
	ErrCodeTransport         = "transport_error"
	ErrCodeHTTPClient        = "http_client_error"
	ErrCodeDatabase          = "database_error"
	ErrCodeSystemError       = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func New(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsAuthorityRejected checks if an error carries business errors from the authority
func IsAuthorityRejected(err error) bool {
	return errors.Is(err, ErrAuthorityRejected)
}

// IsTransport checks if an error is a communication failure; these are safe to
// retry because no persisted state is mutated before the outcome is known
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsCodec checks if an error is a payload encoding error
func IsCodec(err error) bool {
	return errors.Is(err, ErrCodec)
}

// IsHTTPClient checks if an error is an http client error
func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
