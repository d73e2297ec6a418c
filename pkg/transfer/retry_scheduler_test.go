package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rescp17/bdx/pkg/bdx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 1,
		MaxDelay:      time.Millisecond,
	}
}

func TestRetryScheduler_SucceedsFirstTime(t *testing.T) {
	rs := NewRetryScheduler(nil, fastRetryPolicy(3))

	calls := 0
	err := rs.Run(context.Background(), "t1", func(ctx context.Context, retryCount int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryScheduler_RetriesRecoverable(t *testing.T) {
	rs := NewRetryScheduler(nil, fastRetryPolicy(3))

	var counts []int
	err := rs.Run(context.Background(), "t1", func(ctx context.Context, retryCount int) error {
		counts = append(counts, retryCount)
		if retryCount < 2 {
			return &AbortError{Reason: ReasonTransport, Err: fmt.Errorf("reset %d", retryCount)}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, counts)
	assert.Equal(t, 0, rs.GetRetryStatistics().TotalScheduled)
}

func TestRetryScheduler_StopsOnNonRecoverable(t *testing.T) {
	rs := NewRetryScheduler(nil, fastRetryPolicy(3))
	unknown := &AbortError{Reason: ReasonPeerStatus, Status: bdx.StatusFileDesignatorUnknown}

	calls := 0
	err := rs.Run(context.Background(), "t1", func(ctx context.Context, retryCount int) error {
		calls++
		return unknown
	})

	assert.Same(t, unknown, err)
	assert.Equal(t, 1, calls)
}

func TestRetryScheduler_GivesUpAtMaxRetries(t *testing.T) {
	rs := NewRetryScheduler(nil, fastRetryPolicy(2))

	calls := 0
	err := rs.Run(context.Background(), "t1", func(ctx context.Context, retryCount int) error {
		calls++
		return &AbortError{Reason: ReasonTimeout, Err: fmt.Errorf("attempt %d", retryCount)}
	})

	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ReasonTimeout, ae.Reason)
	assert.Equal(t, 3, calls)
}

func TestRetryScheduler_IdenticalErrorsRunToLimit(t *testing.T) {
	rs := NewRetryScheduler(nil, fastRetryPolicy(10))
	same := &AbortError{Reason: ReasonTimeout, Err: errors.New("no reply")}

	calls := 0
	err := rs.Run(context.Background(), "t1", func(ctx context.Context, retryCount int) error {
		calls++
		return same
	})

	require.Error(t, err)
	// Identical errors are recorded once, so the history never repeats and
	// the attempts run up to the retry limit.
	assert.Equal(t, 11, calls)
}

func TestRetryScheduler_ContextCancelledWhileWaiting(t *testing.T) {
	rs := NewRetryScheduler(nil, &RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Hour,
		BackoffFactor: 1,
		MaxDelay:      time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- rs.Run(ctx, "t1", func(ctx context.Context, retryCount int) error {
			return &AbortError{Reason: ReasonTransport, Err: errors.New("reset")}
		})
	}()

	require.Eventually(t, func() bool {
		_, waiting := rs.GetRetryStatus("t1")
		return waiting
	}, time.Second, time.Millisecond)

	task, _ := rs.GetRetryStatus("t1")
	assert.Equal(t, "t1", task.TransferID)
	assert.Equal(t, 1, rs.GetRetryStatistics().PendingRetries)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	var ae *AbortError
	assert.ErrorAs(t, err, &ae, "the last attempt's error is kept")
}

func TestRetryScheduler_CancelRetry(t *testing.T) {
	rs := NewRetryScheduler(nil, &RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Hour,
		BackoffFactor: 1,
		MaxDelay:      time.Hour,
	})

	done := make(chan error, 1)
	go func() {
		done <- rs.Run(context.Background(), "t1", func(ctx context.Context, retryCount int) error {
			return &AbortError{Reason: ReasonTimeout}
		})
	}()

	require.Eventually(t, func() bool {
		_, waiting := rs.GetRetryStatus("t1")
		return waiting
	}, time.Second, time.Millisecond)

	assert.True(t, rs.CancelRetry("t1"))
	assert.False(t, rs.CancelRetry("t1"))
	assert.ErrorIs(t, <-done, ErrTransferCancelled)
}
