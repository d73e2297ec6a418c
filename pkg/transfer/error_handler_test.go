package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rescp17/bdx/pkg/bdx"
	"github.com/stretchr/testify/assert"
)

func TestErrorCategory_String(t *testing.T) {
	assert.Equal(t, "recoverable", ErrorCategoryRecoverable.String())
	assert.Equal(t, "non_recoverable", ErrorCategoryNonRecoverable.String())
	assert.Equal(t, "system", ErrorCategorySystem.String())
	assert.Equal(t, "unknown", ErrorCategory(42).String())
}

func TestErrorAction_String(t *testing.T) {
	tests := []struct {
		action   ErrorAction
		expected string
	}{
		{ErrorActionRetry, "retry"},
		{ErrorActionFail, "fail"},
		{ErrorActionPause, "pause"},
		{ErrorActionCancel, "cancel"},
		{ErrorAction(999), "unknown"},
	}

	for _, test := range tests {
		if got := test.action.String(); got != test.expected {
			t.Errorf("ErrorAction(%d).String() = %q, want %q", test.action, got, test.expected)
		}
	}
}

func TestDefaultErrorHandler_CategorizeError(t *testing.T) {
	handler := NewDefaultErrorHandler(nil)

	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"timeout", &AbortError{Reason: ReasonTimeout}, ErrorCategoryRecoverable},
		{"transport", &AbortError{Reason: ReasonTransport}, ErrorCategoryRecoverable},
		{"local resource", &AbortError{Reason: ReasonLocalResource}, ErrorCategorySystem},
		{"peer busy", &AbortError{Reason: ReasonPeerStatus, Status: bdx.StatusResponderBusy}, ErrorCategoryRecoverable},
		{"peer unknown error", &AbortError{Reason: ReasonPeerStatus, Status: bdx.StatusTransferFailedUnknownError}, ErrorCategoryRecoverable},
		{"peer unknown designator", &AbortError{Reason: ReasonPeerStatus, Status: bdx.StatusFileDesignatorUnknown}, ErrorCategoryNonRecoverable},
		{"malformed", &AbortError{Reason: ReasonMalformedMessage, Status: bdx.StatusBadMessageContents}, ErrorCategoryNonRecoverable},
		{"protocol violation", &AbortError{Reason: ReasonProtocolViolation, Status: bdx.StatusBadBlockCounter}, ErrorCategoryNonRecoverable},
		{"designator sentinel", fmt.Errorf("open: %w", ErrDesignatorUnknown), ErrorCategoryNonRecoverable},
		{"busy sentinel", ErrResponderBusy, ErrorCategoryRecoverable},
		{"bad config", ErrInvalidConfiguration, ErrorCategorySystem},
		{"permission denied", errors.New("open /x: permission denied"), ErrorCategoryNonRecoverable},
		{"disk full", errors.New("write: no space left on device"), ErrorCategorySystem},
		{"unknown", errors.New("something odd"), ErrorCategoryRecoverable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, handler.CategorizeError(tt.err))
		})
	}
}

func TestDefaultErrorHandler_PolicyPatterns(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.RetryableErrors = append(policy.RetryableErrors, "Permission Denied")
	handler := NewDefaultErrorHandler(policy)

	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"policy pattern beats built-in", errors.New("open /x: permission denied"), ErrorCategoryRecoverable},
		{"default pattern", errors.New("dial: connection reset by peer"), ErrorCategoryRecoverable},
		{"aborts ignore patterns", &AbortError{Reason: ReasonProtocolViolation, Err: errors.New("permission denied")}, ErrorCategoryNonRecoverable},
		{"other message", errors.New("write: no space left on device"), ErrorCategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, handler.CategorizeError(tt.err))
		})
	}
}

func TestDefaultErrorHandler_HandleError(t *testing.T) {
	handler := NewDefaultErrorHandler(&RetryPolicy{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Second,
	})
	timeout := &AbortError{Reason: ReasonTimeout, Err: errors.New("no reply")}

	tests := []struct {
		name       string
		err        error
		retryCount int
		expected   ErrorAction
	}{
		{"nil error", nil, 0, ErrorActionFail},
		{"context cancelled", context.Canceled, 0, ErrorActionCancel},
		{"cancelled sentinel", ErrTransferCancelled, 0, ErrorActionCancel},
		{"cancel abort", &AbortError{Reason: ReasonCancelled}, 0, ErrorActionCancel},
		{"recoverable first", timeout, 0, ErrorActionRetry},
		{"recoverable under limit", timeout, 1, ErrorActionRetry},
		{"recoverable at limit", timeout, 2, ErrorActionFail},
		{"system first", &AbortError{Reason: ReasonLocalResource}, 0, ErrorActionRetry},
		{"system again", &AbortError{Reason: ReasonLocalResource}, 1, ErrorActionPause},
		{"non recoverable", &AbortError{Reason: ReasonProtocolViolation}, 0, ErrorActionFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, handler.HandleError("t1", tt.err, tt.retryCount))
		})
	}
}

func TestDefaultErrorHandler_GetRetryDelay(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: 10 * time.Millisecond, BackoffFactor: 3, MaxDelay: time.Second}
	handler := NewDefaultErrorHandler(policy)

	assert.Equal(t, 10*time.Millisecond, handler.GetRetryDelay(0))
	assert.Equal(t, 30*time.Millisecond, handler.GetRetryDelay(1))
	assert.Equal(t, 90*time.Millisecond, handler.GetRetryDelay(2))
}

func TestErrorContext_GetErrorPattern(t *testing.T) {
	errA := errors.New("timeout")
	errB := errors.New("reset")

	tests := []struct {
		name     string
		history  []error
		expected string
	}{
		{"empty", nil, "no_errors"},
		{"single", []error{errA}, "single_error"},
		{"two same", []error{errA, errA}, "mixed_errors"},
		{"three same", []error{errA, errA, errA}, "repeated_error"},
		{"alternating", []error{errA, errB, errA}, "mixed_errors"},
		{"repeat at end", []error{errB, errA, errA, errA}, "repeated_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := &ErrorContext{ErrorHistory: tt.history}
			assert.Equal(t, tt.expected, ec.GetErrorPattern())
		})
	}
}

func TestErrorContext_AddErrorKeepsLastTen(t *testing.T) {
	ec := &ErrorContext{}
	for i := 0; i < 15; i++ {
		ec.AddError(fmt.Errorf("error %d", i))
	}

	assert.Len(t, ec.ErrorHistory, 10)
	assert.EqualError(t, ec.ErrorHistory[0], "error 5")
	assert.False(t, ec.LastAttempt.IsZero())
}

func TestErrorContext_ShouldEscalate(t *testing.T) {
	errA := errors.New("timeout")

	repeated := &ErrorContext{ErrorHistory: []error{errA, errA, errA}, RetryCount: 2, MaxRetries: 5}
	assert.True(t, repeated.ShouldEscalate())

	early := &ErrorContext{ErrorHistory: []error{errA, errA, errA}, RetryCount: 1, MaxRetries: 5}
	assert.False(t, early.ShouldEscalate())

	mixed := &ErrorContext{ErrorHistory: []error{errA, errors.New("reset")}, RetryCount: 3, MaxRetries: 3}
	assert.True(t, mixed.ShouldEscalate())

	single := &ErrorContext{ErrorHistory: []error{errA}, RetryCount: 10, MaxRetries: 3}
	assert.False(t, single.ShouldEscalate())
}
