package receiver

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fw.bin")
	require.NoError(t, os.WriteFile(path, []byte("firmware image"), 0o644))

	src, err := OpenFileSource(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, uint64(14), src.Size())
	_, err = src.Seek(9, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "image", string(rest))
}

func TestOpenFileSource_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenFileSource(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, transfer.ErrDesignatorUnknown)

	_, err = OpenFileSource(dir)
	assert.ErrorIs(t, err, transfer.ErrDesignatorUnknown)
}
