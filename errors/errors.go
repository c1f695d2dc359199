// Package errors provides the application-level error type shared by
// PhotoFlow packages: coded errors with retryable classification,
// structured details and cause chains.
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the coded error type classified failures come back as.
type AppError struct {
	Code      ErrorCode      `json:"code"`      // machine-readable classification
	Message   string         `json:"message"`   // human-readable description
	Retryable bool           `json:"retryable"` // whether another attempt can help
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

// New builds an AppError for code. Retryable follows the code's
// classification.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Retryable: IsRetryableCode(code)}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause records the underlying error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) ensureDetails() map[string]any {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	return e.Details
}

// WithDetail attaches one detail entry and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	e.ensureDetails()[key] = value
	return e
}

// WithDetails merges details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	m := e.ensureDetails()
	for k, v := range details {
		m[k] = v
	}
	return e
}

// --- constructors ---

// Timeout classifies an operation that ran out of time.
func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, "operation timed out").WithDetail("operation", operation)
}

// NotFound classifies a missing resource. An empty id is left out of
// the details.
func NotFound(resource, id string) *AppError {
	err := New(ErrCodeNotFound, resource+" not found").WithDetail("resource", resource)
	if id != "" {
		err.WithDetail("id", id)
	}
	return err
}

// InvalidInput classifies rejected input, naming the field when known.
func InvalidInput(field, reason string) *AppError {
	err := New(ErrCodeInvalidInput, "invalid input: "+reason)
	if field != "" {
		err.WithDetail("field", field)
	}
	return err
}

// Validation classifies rejected input with a caller-built message.
func Validation(message string) *AppError {
	return New(ErrCodeInvalidInput, message)
}

// MissingField classifies a required field left empty.
func MissingField(field string) *AppError {
	return New(ErrCodeMissingField, "missing required field: "+field).
		WithDetail("field", field)
}

// InvalidFormat classifies a field that failed format checks.
func InvalidFormat(field, expected string) *AppError {
	return New(ErrCodeInvalidFormat, fmt.Sprintf("invalid format for %s, expected %s", field, expected)).
		WithDetail("field", field).
		WithDetail("expected_format", expected)
}

// Internal classifies an unexpected failure, keeping the original as
// cause.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "unexpected internal error").WithCause(cause)
}

// --- inspection ---

// AsAppError extracts an AppError from err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// IsValidation reports whether err carries a validation error code,
// however deeply wrapped. Callers use it to distinguish rejected input
// from operational failures.
func IsValidation(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && IsValidationCode(appErr.Code)
}

// Wrap converts any error into an AppError. Existing AppErrors, wrapped
// or not, pass through with their classification intact; other errors
// become Internal errors with the original as cause.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}
