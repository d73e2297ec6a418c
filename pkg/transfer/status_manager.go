package transfer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// StatusRegistry tracks the status of every transfer the process runs.
// It is safe for concurrent use and hands out copies only.
type StatusRegistry struct {
	// transfers maps transfer IDs to their current status
	transfers map[string]*TransferStatus

	// mu provides thread-safe access to the transfers map
	mu sync.RWMutex
}

// OverallProgress represents aggregated progress across all transfers
type OverallProgress struct {
	TotalTransfers     int `json:"total_transfers"`
	ActiveTransfers    int `json:"active_transfers"`
	CompletedTransfers int `json:"completed_transfers"`
	FailedTransfers    int `json:"failed_transfers"`
	CancelledTransfers int `json:"cancelled_transfers"`

	TotalBytes       uint64  `json:"total_bytes"`
	BytesTransferred uint64  `json:"bytes_transferred"`
	AverageRate      float64 `json:"average_rate"` // bytes per second over active transfers
}

// NewStatusRegistry creates an empty registry
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		transfers: make(map[string]*TransferStatus),
	}
}

// Register starts tracking a transfer in the pending state. Registering the
// ID of a finished transfer again counts as a retry.
func (r *StatusRegistry) Register(status TransferStatus) error {
	if status.ID == "" {
		return errors.New("transfer id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.transfers[status.ID]; exists {
		if !prev.State.IsTerminal() {
			return ErrTransferAlreadyExists
		}
		status.RetryCount = prev.RetryCount + 1
	}

	now := time.Now()
	status.State = TransferStatePending
	status.StartTime = now
	status.LastUpdateTime = now
	r.transfers[status.ID] = &status
	return nil
}

// Activate moves a pending transfer to active once negotiation finished
func (r *StatusRegistry) Activate(id, mode string, totalBytes uint64) error {
	return r.update(id, func(s *TransferStatus) error {
		if err := transition(s, TransferStateActive); err != nil {
			return err
		}
		s.Mode = mode
		s.TotalBytes = totalBytes
		return nil
	})
}

// UpdateProgress records the bytes and blocks moved so far
func (r *StatusRegistry) UpdateProgress(id string, bytes uint64, blocks uint32) error {
	return r.update(id, func(s *TransferStatus) error {
		if bytes < s.BytesTransferred {
			return fmt.Errorf("bytes transferred cannot decrease from %d to %d", s.BytesTransferred, bytes)
		}
		s.UpdateProgress(bytes, blocks)
		return nil
	})
}

// Complete marks a transfer as completed
func (r *StatusRegistry) Complete(id string) error {
	return r.update(id, func(s *TransferStatus) error {
		return transition(s, TransferStateCompleted)
	})
}

// Fail marks a transfer as failed with the given error
func (r *StatusRegistry) Fail(id string, transferError error) error {
	return r.update(id, func(s *TransferStatus) error {
		if err := transition(s, TransferStateFailed); err != nil {
			return err
		}
		if transferError != nil {
			s.LastError = transferError.Error()
		}
		if ae, ok := AsAbortError(transferError); ok {
			s.AbortReason = ae.Reason.String()
		}
		return nil
	})
}

// Cancel marks a transfer as cancelled
func (r *StatusRegistry) Cancel(id string) error {
	return r.update(id, func(s *TransferStatus) error {
		if err := transition(s, TransferStateCancelled); err != nil {
			return err
		}
		s.LastError = ErrTransferCancelled.Error()
		return nil
	})
}

// SetRetryCount records how many retries preceded the current attempt
func (r *StatusRegistry) SetRetryCount(id string, count int) error {
	return r.update(id, func(s *TransferStatus) error {
		s.RetryCount = count
		return nil
	})
}

// Get retrieves a copy of the status of a transfer
func (r *StatusRegistry) Get(id string) (*TransferStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, exists := r.transfers[id]
	if !exists {
		return nil, ErrTransferNotFound
	}
	statusCopy := *status
	return &statusCopy, nil
}

// List returns copies of all statuses, oldest first
func (r *StatusRegistry) List() []*TransferStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transfers := make([]*TransferStatus, 0, len(r.transfers))
	for _, status := range r.transfers {
		statusCopy := *status
		transfers = append(transfers, &statusCopy)
	}
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].StartTime.Equal(transfers[j].StartTime) {
			return transfers[i].ID < transfers[j].ID
		}
		return transfers[i].StartTime.Before(transfers[j].StartTime)
	})
	return transfers
}

// Remove stops tracking a finished transfer
func (r *StatusRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.transfers[id]
	if !exists {
		return ErrTransferNotFound
	}
	if !status.State.IsTerminal() {
		return fmt.Errorf("cannot remove %s transfer", status.State)
	}
	delete(r.transfers, id)
	return nil
}

// Overall aggregates progress across all tracked transfers
func (r *StatusRegistry) Overall() OverallProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var progress OverallProgress
	var totalRate float64
	for _, status := range r.transfers {
		progress.TotalTransfers++
		progress.TotalBytes += status.TotalBytes
		progress.BytesTransferred += status.BytesTransferred

		switch status.State {
		case TransferStateActive:
			progress.ActiveTransfers++
			totalRate += status.TransferRate
		case TransferStateCompleted:
			progress.CompletedTransfers++
		case TransferStateFailed:
			progress.FailedTransfers++
		case TransferStateCancelled:
			progress.CancelledTransfers++
		}
	}
	if progress.ActiveTransfers > 0 {
		progress.AverageRate = totalRate / float64(progress.ActiveTransfers)
	}
	return progress
}

// ActiveCount returns the number of transfers not yet finished
func (r *StatusRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, status := range r.transfers {
		if !status.State.IsTerminal() {
			count++
		}
	}
	return count
}

func (r *StatusRegistry) update(id string, fn func(*TransferStatus) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.transfers[id]
	if !exists {
		return ErrTransferNotFound
	}
	if err := fn(status); err != nil {
		return err
	}
	status.LastUpdateTime = time.Now()
	return nil
}

func transition(s *TransferStatus, next TransferState) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			ErrInvalidStateTransition, s.State, next)
	}
	s.State = next
	if next.IsTerminal() {
		now := time.Now()
		s.CompletionTime = &now
	}
	return nil
}
