package transfer

import (
	"errors"
	"fmt"
	"time"
)

// This file defines the bookkeeping view of a transfer, kept by the
// StatusRegistry and served by the API. It is separate from SessionState:
//
// SessionState (state.go):   protocol layer - where the BDX exchange is
// TransferState (status.go): status layer - what the application reports
//
// The runner maps one onto the other:
// 1. Session enters Transferring  → TransferStateActive
// 2. Block sent or received       → TransferStatus.BytesTransferred
// 3. Session reaches Done / Error → TransferStateCompleted / TransferStateFailed

// TransferState represents the current state of a transfer as reported to users
type TransferState int

const (
	// TransferStatePending indicates the transfer is negotiating
	TransferStatePending TransferState = iota
	// TransferStateActive indicates blocks are being exchanged
	TransferStateActive
	// TransferStateCompleted indicates BlockEOF was acknowledged
	TransferStateCompleted
	// TransferStateFailed indicates the session aborted
	TransferStateFailed
	// TransferStateCancelled indicates the local application cancelled it
	TransferStateCancelled
)

// String returns a human-readable string representation of the transfer state
func (ts TransferState) String() string {
	switch ts {
	case TransferStatePending:
		return "pending"
	case TransferStateActive:
		return "active"
	case TransferStateCompleted:
		return "completed"
	case TransferStateFailed:
		return "failed"
	case TransferStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear by name in JSON.
func (ts TransferState) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

// UnmarshalText reads a state written by MarshalText.
func (ts *TransferState) UnmarshalText(text []byte) error {
	for s := TransferStatePending; s <= TransferStateCancelled; s++ {
		if s.String() == string(text) {
			*ts = s
			return nil
		}
	}
	return fmt.Errorf("unknown transfer state %q", text)
}

// IsTerminal returns true if the transfer state is final (completed, failed, or cancelled)
func (ts TransferState) IsTerminal() bool {
	return ts == TransferStateCompleted || ts == TransferStateFailed || ts == TransferStateCancelled
}

// CanTransitionTo checks if a state transition is valid
func (ts TransferState) CanTransitionTo(newState TransferState) bool {
	if ts.IsTerminal() {
		return false
	}

	switch ts {
	case TransferStatePending:
		return newState == TransferStateActive || newState == TransferStateFailed ||
			newState == TransferStateCancelled
	case TransferStateActive:
		return newState == TransferStateCompleted || newState == TransferStateFailed ||
			newState == TransferStateCancelled
	default:
		return false
	}
}

// TransferStatus represents the current status and progress of one BDX transfer
type TransferStatus struct {
	// Basic identification
	ID             string        `json:"id"`
	FileDesignator string        `json:"file_designator"`
	Role           string        `json:"role"`
	Mode           string        `json:"mode,omitempty"`
	Peer           string        `json:"peer,omitempty"`
	State          TransferState `json:"state"`

	// Progress information
	BytesTransferred  uint64 `json:"bytes_transferred"`
	TotalBytes        uint64 `json:"total_bytes"`
	BlocksTransferred uint32 `json:"blocks_transferred"`

	// Performance metrics
	TransferRate float64       `json:"transfer_rate"` // bytes per second
	ETA          time.Duration `json:"eta"`

	// Lifecycle timestamps
	StartTime      time.Time  `json:"start_time"`
	LastUpdateTime time.Time  `json:"last_update_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`

	// Error handling
	LastError   string `json:"last_error,omitempty"`
	AbortReason string `json:"abort_reason,omitempty"`
	RetryCount  int    `json:"retry_count"`
}

// GetProgressPercentage calculates the completion percentage (0-100)
func (ts *TransferStatus) GetProgressPercentage() float64 {
	if ts.TotalBytes == 0 {
		return 0.0
	}
	return float64(ts.BytesTransferred) / float64(ts.TotalBytes) * 100.0
}

// GetRemainingBytes returns the number of bytes left to transfer
func (ts *TransferStatus) GetRemainingBytes() uint64 {
	if ts.BytesTransferred >= ts.TotalBytes {
		return 0
	}
	return ts.TotalBytes - ts.BytesTransferred
}

// UpdateProgress updates the transfer progress and recalculates metrics
func (ts *TransferStatus) UpdateProgress(bytes uint64, blocks uint32) {
	ts.BytesTransferred = bytes
	ts.BlocksTransferred = blocks
	ts.LastUpdateTime = time.Now()

	ts.calculateMetrics()
}

// calculateMetrics recalculates transfer rate and ETA based on current progress
func (ts *TransferStatus) calculateMetrics() {
	if ts.State != TransferStateActive {
		return
	}

	elapsed := time.Since(ts.StartTime)
	if elapsed.Seconds() > 0 {
		ts.TransferRate = float64(ts.BytesTransferred) / elapsed.Seconds()

		if ts.TransferRate > 0 && ts.TotalBytes > 0 {
			ts.ETA = time.Duration(float64(ts.GetRemainingBytes()) / ts.TransferRate * float64(time.Second))
		}
	}
}

// RetryPolicy defines how a failed transfer is retried as a fresh session
type RetryPolicy struct {
	MaxRetries      int           `json:"max_retries"`
	InitialDelay    time.Duration `json:"initial_delay"`
	BackoffFactor   float64       `json:"backoff_factor"`
	MaxDelay        time.Duration `json:"max_delay"`
	RetryableErrors []string      `json:"retryable_errors"` // Message patterns always retried
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      30 * time.Second,
		RetryableErrors: []string{
			"connection timeout",
			"temporary failure",
			"network unreachable",
			"connection reset",
		},
	}
}

// GetRetryDelay calculates the delay before the next retry attempt
func (rp *RetryPolicy) GetRetryDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return rp.InitialDelay
	}

	delay := rp.InitialDelay
	for i := 0; i < retryCount; i++ {
		delay = time.Duration(float64(delay) * rp.BackoffFactor)
		if delay > rp.MaxDelay {
			return rp.MaxDelay
		}
	}
	return delay
}

// Error types for transfer status management
var (
	// ErrTransferNotFound is returned when a requested transfer doesn't exist
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrInvalidStateTransition is returned when an invalid state transition is attempted
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrTransferAlreadyExists is returned when trying to register a transfer that already exists
	ErrTransferAlreadyExists = errors.New("transfer already exists")

	// ErrInvalidConfiguration is returned when configuration validation fails
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrTransferCancelled is returned when a transfer is cancelled
	ErrTransferCancelled = errors.New("transfer cancelled")
)
