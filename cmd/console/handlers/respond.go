// Package handlers provides the REST handlers of the local control surface.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/logging"
)

// errorResponse is the body written for every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// writeError maps the error's code onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", string(code), err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(code)})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidationFailure:
		return http.StatusBadRequest
	case apperrors.ErrAuthenticationFailure:
		return http.StatusUnauthorized
	case apperrors.ErrAuthorizationFailure:
		return http.StatusForbidden
	case apperrors.ErrSyncInProgress:
		return http.StatusConflict
	case apperrors.ErrNetworkFailure, apperrors.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrHTTP:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Code: string(apperrors.ErrInvalid)})
}
