// Package errors provides domain-specific error types for the keen-dns application.
//
// Errors carry a code so callers (the API layer, the CLI) can decide how to
// report a failure without string matching.
package errors

import "fmt"

// ErrorCode represents a category of error that can occur in the application.
type ErrorCode string

const (
	// ErrCodeConfig indicates a configuration-related error.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeStorage indicates a failure of the query store (open, transaction, decode).
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// ErrCodeRedirect indicates a failure while installing or removing redirection rules.
	ErrCodeRedirect ErrorCode = "REDIRECT_ERROR"

	// ErrCodeProxy indicates a failure of the local DNS proxy (listen, upstream).
	ErrCodeProxy ErrorCode = "PROXY_ERROR"

	// ErrCodeValidation indicates a validation error.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error represents a domain-specific error with an error code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new domain error with the specified code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeInternal
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, cause error) *Error {
	return Wrap(ErrCodeConfig, message, cause)
}

// NewStorageError creates a new query store error.
func NewStorageError(message string, cause error) *Error {
	return Wrap(ErrCodeStorage, message, cause)
}

// NewRedirectError creates a new traffic redirection error.
func NewRedirectError(message string, cause error) *Error {
	return Wrap(ErrCodeRedirect, message, cause)
}

// NewProxyError creates a new DNS proxy error.
func NewProxyError(message string, cause error) *Error {
	return Wrap(ErrCodeProxy, message, cause)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, cause error) *Error {
	return Wrap(ErrCodeValidation, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCodeInternal, message, cause)
}
