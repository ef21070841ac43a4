package model

import (
	"errors"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "Run 'run_123' not found"}
	want := "NOT_FOUND: Run 'run_123' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Run", "run_abc")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "Run 'run_abc' not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("invalid limit %q", "abc")
	if err.Code != ErrValidation || err.Message != `invalid limit "abc"` {
		t.Errorf("err = %+v", err)
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	for code, want := range map[ErrorCode]int{
		ErrValidation:      http.StatusBadRequest,
		ErrNotFound:        http.StatusNotFound,
		ErrUnavailable:     http.StatusServiceUnavailable,
		ErrInternal:        http.StatusInternalServerError,
		ErrorCode("BOGUS"): http.StatusInternalServerError,
	} {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
	if err := NewInternalError(errors.New("disk full")); err.Code != ErrInternal || err.Message != "disk full" {
		t.Errorf("NewInternalError = %+v", err)
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{ID: "run_123", From: RunStateCompleted, To: RunStateFailed}
	want := "invalid run state transition: COMPLETED → FAILED (run run_123)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
