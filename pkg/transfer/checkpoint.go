package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoCheckpoint is returned by Load when nothing was saved for a key
var ErrNoCheckpoint = errors.New("no checkpoint")

// Checkpoint records how far a receive got, so a later attempt can resume
// with a StartOffset instead of starting over.
type Checkpoint struct {
	Peer           string    `json:"peer"`
	FileDesignator string    `json:"file_designator"`
	BytesCommitted uint64    `json:"bytes_committed"` // absolute offset of the first missing byte
	Length         uint64    `json:"length,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CheckpointStore keeps one JSON file per peer and designator under a
// directory.
type CheckpointStore struct {
	dir string
	mu  sync.Mutex
}

// NewCheckpointStore creates dir if needed.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

// Save replaces the checkpoint for cp.Peer and cp.FileDesignator.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(cp.Peer, cp.FileDesignator)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint for peer and designator, or ErrNoCheckpoint.
func (s *CheckpointStore) Load(peer, designator string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(peer, designator))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint; a missing one is not an error.
func (s *CheckpointStore) Delete(peer, designator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(peer, designator)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Designators are arbitrary bytes, so file names are derived from a hash.
func (s *CheckpointStore) path(peer, designator string) string {
	sum := sha256.Sum256([]byte(peer + "\x00" + designator))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json")
}
