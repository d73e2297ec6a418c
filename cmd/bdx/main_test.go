package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bdx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"block_size": 512, "modes": ["receiver-drive"]}`), 0o644))

	opts := &options{
		configPath:     path,
		blockSize:      2048,
		messageTimeout: 5 * time.Second,
		checkpointDir:  "cp",
	}
	cfg, err := opts.transferConfig()
	require.NoError(t, err)

	assert.Equal(t, uint16(2048), cfg.BlockSize)
	assert.Equal(t, []string{"receiver-drive"}, cfg.Modes)
	assert.Equal(t, 5*time.Second, cfg.MessageTimeout)
	assert.Equal(t, "cp", cfg.CheckpointDir)
}

func TestTransferConfig_Invalid(t *testing.T) {
	opts := &options{blockSize: 1}
	_, err := opts.transferConfig()
	assert.Error(t, err)

	opts = &options{configPath: filepath.Join(t.TempDir(), "missing.json")}
	_, err = opts.transferConfig()
	assert.Error(t, err)
}

func TestNewRunner_Checkpoints(t *testing.T) {
	cfg, err := (&options{checkpointDir: filepath.Join(t.TempDir(), "checkpoints")}).transferConfig()
	require.NoError(t, err)

	runner, err := newRunner(cfg)
	require.NoError(t, err)
	assert.Same(t, cfg, runner.Config())
}
