package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "VALIDATION"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyLinked    ErrorType = "ALREADY_LINKED"
	ErrorTypePermissionDenied ErrorType = "PERMISSION_DENIED"
	ErrorTypeTimeout          ErrorType = "TIMEOUT"
	ErrorTypeInternal         ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error

	// RequiredScope is set on permission errors so callers can tell
	// the client which scope would have allowed the call.
	RequiredScope string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewValidationf creates a validation error with formatting
func NewValidationf(format string, args ...interface{}) error {
	return &AppError{Type: ErrorTypeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewNotFoundf creates a not found error with formatting
func NewNotFoundf(format string, args ...interface{}) error {
	return &AppError{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewAlreadyLinked creates an error signalling a duplicate link.
// Batch link writers treat this as success-equivalent and skip the pair.
func NewAlreadyLinked(message string) error {
	return &AppError{Type: ErrorTypeAlreadyLinked, Message: message}
}

// NewPermissionDenied creates a permission error carrying the scope that
// would have allowed the operation.
func NewPermissionDenied(message, requiredScope string) error {
	return &AppError{Type: ErrorTypePermissionDenied, Message: message, RequiredScope: requiredScope}
}

// NewTimeout creates a timeout/cancellation error
func NewTimeout(message string, err error) error {
	return &AppError{Type: ErrorTypeTimeout, Message: message, Err: err}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:          appErr.Type,
			Message:       fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:           appErr.Err,
			RequiredScope: appErr.RequiredScope,
		}
	}

	// Otherwise, create an internal error
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsAlreadyLinked checks if an error is a duplicate-link error
func IsAlreadyLinked(err error) bool { return isType(err, ErrorTypeAlreadyLinked) }

// IsPermissionDenied checks if an error is a permission error
func IsPermissionDenied(err error) bool { return isType(err, ErrorTypePermissionDenied) }

// IsTimeout checks if an error is a timeout or cancellation error
func IsTimeout(err error) bool { return isType(err, ErrorTypeTimeout) }

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool { return isType(err, ErrorTypeInternal) }

// Message returns the client-safe message of an error: the AppError message
// without the wrapped cause, or the plain Error() string otherwise.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// RequiredScope extracts the scope attached to a permission error, if any.
func RequiredScope(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RequiredScope
	}
	return ""
}
