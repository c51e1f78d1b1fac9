// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"fmt"
	"testing"
)

type codedErr struct{ code ErrorCode }

func (c codedErr) Error() string        { return string(c.code) }
func (c codedErr) ErrorCode() ErrorCode { return c.code }

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrStoreUnavailable, Message: "open store", Err: errors.New("disk full")},
			want:     "[STORE_UNAVAILABLE] open store: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appError.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestWrap_Unwrap verifies the wrapped error stays reachable.
func TestWrap_Unwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(ErrNetworkFailure, "dispatch", base)

	if !errors.Is(err, base) {
		t.Error("errors.Is should find the wrapped error")
	}
	if err.Unwrap() != base {
		t.Error("Unwrap() should return the original error")
	}
}

// TestIs verifies code matching through wrapping layers.
func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"nil error", nil, ErrInternal, false},
		{"plain error", errors.New("x"), ErrInternal, false},
		{"direct match", New(ErrInvalid, "bad"), ErrInvalid, true},
		{"direct mismatch", New(ErrInvalid, "bad"), ErrInternal, false},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(ErrSyncInProgress, "busy")), ErrSyncInProgress, true},
		{"coder implementation", codedErr{ErrAuthorizationFailure}, ErrAuthorizationFailure, true},
		{"coder wrapped", fmt.Errorf("call: %w", codedErr{ErrNetworkFailure}), ErrNetworkFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCodeOf_outermostWins verifies the outermost code is reported.
func TestCodeOf_outermostWins(t *testing.T) {
	inner := New(ErrNetworkFailure, "dial")
	outer := Wrap(ErrSyncFailed, "replay", inner)

	if got := CodeOf(outer); got != ErrSyncFailed {
		t.Errorf("CodeOf() = %s, want %s", got, ErrSyncFailed)
	}
}
