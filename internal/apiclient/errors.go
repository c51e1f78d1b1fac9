package apiclient

import (
	"fmt"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
)

// APIError is returned for every response outside the 2xx range. The original
// status and body are kept for callers that need to inspect them.
type APIError struct {
	Code    apperrors.ErrorCode
	Method  string
	Path    string
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%s] %s %s: status %d", e.Code, e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("[%s] %s %s: status %d: %s", e.Code, e.Method, e.Path, e.Status, e.Message)
}

// ErrorCode implements errors.Coder.
func (e *APIError) ErrorCode() apperrors.ErrorCode {
	return e.Code
}
