package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AttemptFunc runs one attempt of a transfer. retryCount is zero for the
// first attempt.
type AttemptFunc func(ctx context.Context, retryCount int) error

// RetryScheduler re-runs failed transfer attempts with backoff for as long
// as the ErrorHandler says the failure is worth retrying.
type RetryScheduler struct {
	mu           sync.RWMutex
	retryQueue   map[string]*RetryTask
	errorHandler ErrorHandler
	retryPolicy  *RetryPolicy
	logger       *slog.Logger
}

// RetryTask describes a transfer waiting for its next attempt
type RetryTask struct {
	TransferID   string
	RetryCount   int
	NextAttempt  time.Time
	LastError    error
	ErrorContext *ErrorContext

	cancel context.CancelFunc
}

// NewRetryScheduler creates a scheduler. A nil policy uses DefaultRetryPolicy.
func NewRetryScheduler(errorHandler ErrorHandler, retryPolicy *RetryPolicy) *RetryScheduler {
	if retryPolicy == nil {
		retryPolicy = DefaultRetryPolicy()
	}
	if errorHandler == nil {
		errorHandler = NewDefaultErrorHandler(retryPolicy)
	}
	return &RetryScheduler{
		retryQueue:   make(map[string]*RetryTask),
		errorHandler: errorHandler,
		retryPolicy:  retryPolicy,
		logger:       slog.Default(),
	}
}

// Run calls attempt until it succeeds, the error is not retryable, the error
// pattern calls for escalation or ctx is done. It returns the last error.
func (rs *RetryScheduler) Run(ctx context.Context, transferID string, attempt AttemptFunc) error {
	errCtx := &ErrorContext{
		TransferID: transferID,
		MaxRetries: rs.retryPolicy.MaxRetries,
	}

	for retryCount := 0; ; retryCount++ {
		err := attempt(ctx, retryCount)
		if err == nil {
			if retryCount > 0 {
				rs.logger.Info("Retry successful", "transfer_id", transferID, "retry_count", retryCount)
			}
			return nil
		}

		action := rs.errorHandler.HandleError(transferID, err, retryCount)
		rs.errorHandler.LogError(transferID, err, action, retryCount)
		if action != ErrorActionRetry {
			return err
		}

		// Only add error if it differs from the last one
		if n := len(errCtx.ErrorHistory); n == 0 || errCtx.ErrorHistory[n-1].Error() != err.Error() {
			errCtx.AddError(err)
		}
		errCtx.RetryCount = retryCount
		if errCtx.ShouldEscalate() {
			rs.logger.Warn("Escalating instead of retrying",
				"transfer_id", transferID,
				"pattern", errCtx.GetErrorPattern(),
				"retry_count", retryCount)
			return err
		}

		if werr := rs.wait(ctx, transferID, retryCount, err, errCtx); werr != nil {
			return fmt.Errorf("%w (last error: %w)", werr, err)
		}
	}
}

// wait parks the transfer in the retry queue until its next attempt is due.
func (rs *RetryScheduler) wait(ctx context.Context, transferID string, retryCount int, lastErr error, errCtx *ErrorContext) error {
	delay := rs.errorHandler.GetRetryDelay(retryCount)
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	task := &RetryTask{
		TransferID:   transferID,
		RetryCount:   retryCount,
		NextAttempt:  time.Now().Add(delay),
		LastError:    lastErr,
		ErrorContext: errCtx,
		cancel:       cancel,
	}
	rs.mu.Lock()
	rs.retryQueue[transferID] = task
	rs.mu.Unlock()
	defer func() {
		rs.mu.Lock()
		delete(rs.retryQueue, transferID)
		rs.mu.Unlock()
	}()

	rs.logger.Info("Scheduled retry",
		"transfer_id", transferID,
		"retry_count", retryCount,
		"delay", delay,
		"next_attempt", task.NextAttempt)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-wctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTransferCancelled
	}
}

// CancelRetry stops a transfer waiting for its next attempt; its Run returns
// ErrTransferCancelled.
func (rs *RetryScheduler) CancelRetry(transferID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	task, exists := rs.retryQueue[transferID]
	if !exists {
		return false
	}
	task.cancel()
	delete(rs.retryQueue, transferID)
	rs.logger.Info("Cancelled retry", "transfer_id", transferID)
	return true
}

// GetRetryStatus returns the retry status for a transfer
func (rs *RetryScheduler) GetRetryStatus(transferID string) (*RetryTask, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	task, exists := rs.retryQueue[transferID]
	if !exists {
		return nil, false
	}

	// Return a copy to avoid race conditions
	taskCopy := *task
	taskCopy.cancel = nil
	return &taskCopy, true
}

// GetRetryStatistics returns statistics about the transfers waiting to retry
func (rs *RetryScheduler) GetRetryStatistics() RetryStatistics {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	stats := RetryStatistics{
		TotalScheduled: len(rs.retryQueue),
	}

	now := time.Now()
	for _, task := range rs.retryQueue {
		if task.NextAttempt.After(now) {
			stats.PendingRetries++
		} else {
			stats.OverdueRetries++
		}

		if task.RetryCount > stats.MaxRetryCount {
			stats.MaxRetryCount = task.RetryCount
		}

		stats.TotalRetryCount += task.RetryCount
	}

	if len(rs.retryQueue) > 0 {
		stats.AverageRetryCount = float64(stats.TotalRetryCount) / float64(len(rs.retryQueue))
	}

	return stats
}

// RetryStatistics provides statistics about retry operations
type RetryStatistics struct {
	TotalScheduled    int     `json:"total_scheduled"`
	PendingRetries    int     `json:"pending_retries"`
	OverdueRetries    int     `json:"overdue_retries"`
	MaxRetryCount     int     `json:"max_retry_count"`
	TotalRetryCount   int     `json:"total_retry_count"`
	AverageRetryCount float64 `json:"average_retry_count"`
}
