// Package errors provides the error taxonomy shared by the offline access layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure that callers branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"

	// Storage errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrMigration        ErrorCode = "MIGRATION_FAILED"

	// Transport and API errors
	ErrNetworkFailure        ErrorCode = "NETWORK_FAILURE"
	ErrAuthenticationFailure ErrorCode = "AUTHENTICATION_FAILURE"
	ErrAuthorizationFailure  ErrorCode = "AUTHORIZATION_FAILURE"
	ErrValidationFailure     ErrorCode = "VALIDATION_FAILURE"
	ErrHTTP                  ErrorCode = "HTTP_ERROR"

	// Session errors
	ErrSessionCorrupt ErrorCode = "SESSION_CORRUPT"

	// Sync errors
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Coder is implemented by errors that carry an ErrorCode without being an
// *AppError, such as the API client's response errors.
type Coder interface {
	ErrorCode() ErrorCode
}

// CodeOf returns the first error code found in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		switch e := err.(type) {
		case *AppError:
			return e.Code
		case Coder:
			return e.ErrorCode()
		}
		err = stderrors.Unwrap(err)
	}
	return ""
}

// Is checks if an error, or anything it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
