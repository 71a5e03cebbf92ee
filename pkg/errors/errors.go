package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternal           = errors.New("internal server error")
	ErrValidation         = errors.New("validation error")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyTerminal    = errors.New("already in a terminal state")
	ErrConsentRequired    = errors.New("consent required")
	ErrExpired            = errors.New("expired")
	ErrViewLimitExceeded  = errors.New("view limit exceeded")
	ErrSessionNotFound    = errors.New("signing session not found")
	ErrProvider           = errors.New("provider error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// Validation reports every violated field, not just the first one.
// The details map is keyed by field name.
func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// PreconditionFailed signals an operation attempted out of order, such as
// publishing a template before approval or hard-deleting one still in use.
func PreconditionFailed(message string) *AppError {
	return &AppError{
		Err:        ErrPreconditionFailed,
		Code:       "PRECONDITION_FAILED",
		Message:    message,
		StatusCode: http.StatusPreconditionFailed,
	}
}

// AlreadyTerminal signals a mutation against a signer or contract that has
// reached a terminal state.
func AlreadyTerminal(message string) *AppError {
	return &AppError{
		Err:        ErrAlreadyTerminal,
		Code:       "ALREADY_TERMINAL",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// ConsentRequired names the specific consent that is missing.
func ConsentRequired(consentID string) *AppError {
	return &AppError{
		Err:        ErrConsentRequired,
		Code:       "CONSENT_REQUIRED",
		Message:    fmt.Sprintf("required consent %q has not been accepted", consentID),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{"consent_id": consentID},
	}
}

func Expired(resource string) *AppError {
	return &AppError{
		Err:        ErrExpired,
		Code:       "EXPIRED",
		Message:    fmt.Sprintf("%s has expired", resource),
		StatusCode: http.StatusGone,
	}
}

func ViewLimitExceeded() *AppError {
	return &AppError{
		Err:        ErrViewLimitExceeded,
		Code:       "VIEW_LIMIT_EXCEEDED",
		Message:    "maximum number of views reached for this contract",
		StatusCode: http.StatusTooManyRequests,
	}
}

func SessionNotFound() *AppError {
	return &AppError{
		Err:        ErrSessionNotFound,
		Code:       "SESSION_NOT_FOUND",
		Message:    "no signing session has been started for this signer",
		StatusCode: http.StatusNotFound,
	}
}

// Provider wraps a vendor failure. The provider name is always attached so
// the failure is never surfaced anonymously.
func Provider(provider string, err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrProvider, err),
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("provider %s request failed", provider),
		StatusCode: http.StatusBadGateway,
		Details:    map[string]string{"provider": provider},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
