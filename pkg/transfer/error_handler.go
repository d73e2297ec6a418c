package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rescp17/bdx/pkg/bdx"
)

// ErrorCategory represents the category of an error for handling purposes
type ErrorCategory int

const (
	// ErrorCategoryRecoverable indicates errors that a fresh transfer may get past
	ErrorCategoryRecoverable ErrorCategory = iota
	// ErrorCategoryNonRecoverable indicates errors that will repeat on every attempt
	ErrorCategoryNonRecoverable
	// ErrorCategorySystem indicates local system errors that may need intervention
	ErrorCategorySystem
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryRecoverable:
		return "recoverable"
	case ErrorCategoryNonRecoverable:
		return "non_recoverable"
	case ErrorCategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// ErrorAction represents the action to take when an error occurs
type ErrorAction int

const (
	// ErrorActionRetry indicates a new transfer should be attempted
	ErrorActionRetry ErrorAction = iota
	// ErrorActionFail indicates the transfer should be marked as failed
	ErrorActionFail
	// ErrorActionPause indicates the transfer should wait for manual intervention
	ErrorActionPause
	// ErrorActionCancel indicates the transfer was cancelled and must stop
	ErrorActionCancel
)

// String returns a string representation of ErrorAction
func (ea ErrorAction) String() string {
	switch ea {
	case ErrorActionRetry:
		return "retry"
	case ErrorActionFail:
		return "fail"
	case ErrorActionPause:
		return "pause"
	case ErrorActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ErrorHandler decides what happens after a transfer fails
type ErrorHandler interface {
	// HandleError determines what action to take for a given error
	HandleError(transferID string, err error, retryCount int) ErrorAction

	// CategorizeError determines the category of an error
	CategorizeError(err error) ErrorCategory

	// GetRetryDelay calculates the delay before the next retry attempt
	GetRetryDelay(retryCount int) time.Duration

	// LogError logs an error with appropriate context
	LogError(transferID string, err error, action ErrorAction, retryCount int)
}

// DefaultErrorHandler provides a default implementation of ErrorHandler
type DefaultErrorHandler struct {
	retryPolicy *RetryPolicy
	logger      *slog.Logger
}

// NewDefaultErrorHandler creates a new DefaultErrorHandler with the given retry policy
func NewDefaultErrorHandler(retryPolicy *RetryPolicy) *DefaultErrorHandler {
	if retryPolicy == nil {
		retryPolicy = DefaultRetryPolicy()
	}
	return &DefaultErrorHandler{
		retryPolicy: retryPolicy,
		logger:      slog.Default(),
	}
}

// HandleError determines what action to take for a given error
func (h *DefaultErrorHandler) HandleError(transferID string, err error, retryCount int) ErrorAction {
	if err == nil {
		return ErrorActionFail
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTransferCancelled) {
		return ErrorActionCancel
	}
	if ae, ok := AsAbortError(err); ok && ae.Reason == ReasonCancelled {
		return ErrorActionCancel
	}

	switch h.CategorizeError(err) {
	case ErrorCategoryRecoverable:
		if retryCount < h.retryPolicy.MaxRetries {
			return ErrorActionRetry
		}
		return ErrorActionFail

	case ErrorCategorySystem:
		if retryCount == 0 {
			return ErrorActionRetry
		}
		return ErrorActionPause

	default:
		return ErrorActionFail
	}
}

// CategorizeError determines the category of an error. Session aborts are
// classified by reason and status; anything else by its message, where the
// retry policy's RetryableErrors patterns win.
func (h *DefaultErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryRecoverable
	}

	if ae, ok := AsAbortError(err); ok {
		return categorizeAbort(ae)
	}

	switch {
	case errors.Is(err, ErrDesignatorUnknown):
		return ErrorCategoryNonRecoverable
	case errors.Is(err, ErrResponderBusy):
		return ErrorCategoryRecoverable
	case errors.Is(err, ErrInvalidConfiguration):
		return ErrorCategorySystem
	}

	errMsg := strings.ToLower(err.Error())

	for _, pattern := range h.retryPolicy.RetryableErrors {
		if strings.Contains(errMsg, strings.ToLower(pattern)) {
			return ErrorCategoryRecoverable
		}
	}

	nonRecoverablePatterns := []string{
		"file not found",
		"no such file",
		"permission denied",
		"access denied",
		"invalid checksum",
		"corrupted",
	}
	for _, pattern := range nonRecoverablePatterns {
		if strings.Contains(errMsg, pattern) {
			return ErrorCategoryNonRecoverable
		}
	}

	systemErrorPatterns := []string{
		"disk full",
		"no space left",
		"out of memory",
		"too many open files",
	}
	for _, pattern := range systemErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return ErrorCategorySystem
		}
	}

	// Unknown errors are treated as transient
	return ErrorCategoryRecoverable
}

func categorizeAbort(ae *AbortError) ErrorCategory {
	switch ae.Reason {
	case ReasonTimeout, ReasonTransport:
		return ErrorCategoryRecoverable
	case ReasonLocalResource:
		return ErrorCategorySystem
	case ReasonPeerStatus:
		switch ae.Status {
		case bdx.StatusResponderBusy, bdx.StatusTransferFailedUnknownError:
			return ErrorCategoryRecoverable
		}
		return ErrorCategoryNonRecoverable
	default:
		// A peer that sent garbage or broke sequencing will do it again.
		return ErrorCategoryNonRecoverable
	}
}

// GetRetryDelay calculates the delay before the next retry attempt
func (h *DefaultErrorHandler) GetRetryDelay(retryCount int) time.Duration {
	return h.retryPolicy.GetRetryDelay(retryCount)
}

// LogError logs an error with appropriate context
func (h *DefaultErrorHandler) LogError(transferID string, err error, action ErrorAction, retryCount int) {
	logFields := []any{
		"transfer_id", transferID,
		"error", err,
		"action", action.String(),
		"retry_count", retryCount,
		"category", h.CategorizeError(err).String(),
	}
	if ae, ok := AsAbortError(err); ok {
		logFields = append(logFields, "reason", ae.Reason.String(), "status", ae.Status.String())
	}

	switch action {
	case ErrorActionRetry:
		h.logger.Warn("Transfer error, will retry", logFields...)
	case ErrorActionPause:
		h.logger.Warn("Transfer paused due to error", logFields...)
	case ErrorActionCancel:
		h.logger.Info("Transfer cancelled", logFields...)
	default:
		h.logger.Error("Transfer failed", logFields...)
	}
}

// ErrorContext keeps the recent failures of one transfer across retries
type ErrorContext struct {
	TransferID   string
	RetryCount   int
	MaxRetries   int
	LastAttempt  time.Time
	ErrorHistory []error
}

// AddError adds an error to the error history
func (ec *ErrorContext) AddError(err error) {
	ec.ErrorHistory = append(ec.ErrorHistory, err)
	ec.LastAttempt = time.Now()

	// Keep only the last 10 errors
	if len(ec.ErrorHistory) > 10 {
		ec.ErrorHistory = ec.ErrorHistory[len(ec.ErrorHistory)-10:]
	}
}

// GetErrorPattern analyzes the error history to detect patterns
func (ec *ErrorContext) GetErrorPattern() string {
	if len(ec.ErrorHistory) == 0 {
		return "no_errors"
	}

	if len(ec.ErrorHistory) == 1 {
		return "single_error"
	}

	lastError := ec.ErrorHistory[len(ec.ErrorHistory)-1].Error()
	sameErrorCount := 1

	for i := len(ec.ErrorHistory) - 2; i >= 0 && sameErrorCount < 3; i-- {
		if ec.ErrorHistory[i].Error() == lastError {
			sameErrorCount++
		} else {
			break
		}
	}

	if sameErrorCount >= 3 {
		return "repeated_error"
	}

	return "mixed_errors"
}

// ShouldEscalate determines if retrying should stop early based on patterns
func (ec *ErrorContext) ShouldEscalate() bool {
	switch ec.GetErrorPattern() {
	case "repeated_error":
		return ec.RetryCount >= 2
	case "mixed_errors":
		return ec.RetryCount >= ec.MaxRetries
	default:
		return false
	}
}
