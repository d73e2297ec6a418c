package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rescp17/bdx/pkg/bdx"
)

// TransferConfig holds all configuration for BDX transfers
type TransferConfig struct {
	// Protocol negotiation
	Version uint8 `json:"version"`
	// Modes lists the transfer modes this side proposes or accepts
	Modes []string `json:"modes"`

	// Block size configuration
	BlockSize    uint16 `json:"block_size"`     // Proposed block size
	MaxBlockSize uint16 `json:"max_block_size"` // Largest block size accepted from a peer
	MinBlockSize uint16 `json:"min_block_size"` // Smallest block size worth proposing

	// Timeouts
	MessageTimeout  time.Duration `json:"message_timeout"`  // Wait for any single peer message
	TransferTimeout time.Duration `json:"transfer_timeout"` // Whole transfer, zero for none

	// Concurrency limits
	MaxConcurrentTransfers int `json:"max_concurrent_transfers"`

	// Retry policy
	DefaultRetryPolicy *RetryPolicy `json:"default_retry_policy"`

	// CheckpointDir stores resume records; empty disables checkpoints
	CheckpointDir string `json:"checkpoint_dir"`
}

// Block size constants
const (
	DefaultBlockSize = 1024
	MaxBlockSize     = 8192
	MinBlockSize     = 64
)

// DefaultTransferConfig returns a configuration with sensible defaults
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		Version: 0,
		Modes:   []string{"sender-drive", "receiver-drive"},

		BlockSize:    DefaultBlockSize,
		MaxBlockSize: MaxBlockSize,
		MinBlockSize: MinBlockSize,

		MessageTimeout:  30 * time.Second,
		TransferTimeout: 0,

		MaxConcurrentTransfers: 4,

		DefaultRetryPolicy: DefaultRetryPolicy(),
	}
}

// LoadTransferConfig reads a JSON config file over the defaults. Fields the
// file leaves out keep their default values.
func LoadTransferConfig(path string) (*TransferConfig, error) {
	cfg := DefaultTransferConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return cfg, nil
}

// Validate checks if the configuration values are valid
func (tc *TransferConfig) Validate() error {
	if tc.Version > bdx.MaxVersion {
		return fmt.Errorf("version must be at most %d", bdx.MaxVersion)
	}
	if _, err := tc.TransferModes(); err != nil {
		return err
	}

	// Validate block size settings
	if tc.BlockSize == 0 {
		return errors.New("block_size must be positive")
	}
	if tc.MinBlockSize == 0 {
		return errors.New("min_block_size must be positive")
	}
	if tc.MaxBlockSize == 0 {
		return errors.New("max_block_size must be positive")
	}
	if tc.MinBlockSize > tc.MaxBlockSize {
		return errors.New("min_block_size cannot be greater than max_block_size")
	}
	if !tc.IsValidBlockSize(tc.BlockSize) {
		return fmt.Errorf("block_size must be between %d and %d", tc.MinBlockSize, tc.MaxBlockSize)
	}

	// Validate timeouts
	if tc.MessageTimeout <= 0 {
		return errors.New("message_timeout must be positive")
	}
	if tc.TransferTimeout < 0 {
		return errors.New("transfer_timeout cannot be negative")
	}

	// Validate concurrency settings
	if tc.MaxConcurrentTransfers <= 0 {
		return errors.New("max_concurrent_transfers must be positive")
	}

	// Validate retry policy
	if tc.DefaultRetryPolicy == nil {
		return errors.New("default_retry_policy cannot be nil")
	}

	return nil
}

// TransferModes converts Modes into control flags.
func (tc *TransferConfig) TransferModes() (bdx.TransferControlFlags, error) {
	var flags bdx.TransferControlFlags
	for _, m := range tc.Modes {
		switch m {
		case "sender-drive":
			flags |= bdx.SenderDrive
		case "receiver-drive":
			flags |= bdx.ReceiverDrive
		default:
			return 0, fmt.Errorf("unknown transfer mode %q", m)
		}
	}
	if flags == 0 {
		return 0, errors.New("modes cannot be empty")
	}
	return flags, nil
}

// GetBlockSizeForLength returns the block size to propose for a transfer of
// length bytes; zero length means unknown.
func (tc *TransferConfig) GetBlockSizeForLength(length uint64) uint16 {
	if length > 0 && length < uint64(tc.BlockSize) {
		if length < uint64(tc.MinBlockSize) {
			return tc.MinBlockSize
		}
		return uint16(length)
	}
	return tc.BlockSize
}

// IsValidBlockSize checks if a block size is within acceptable bounds
func (tc *TransferConfig) IsValidBlockSize(blockSize uint16) bool {
	return blockSize >= tc.MinBlockSize && blockSize <= tc.MaxBlockSize
}
