package fileInfo

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySHA256(t *testing.T) {
	data := []byte("Hello, World! This is test file content.")
	path := writeTestFile(t, "file.txt", data)

	ok, err := VerifySHA256(path, hexSum(data))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySHA256(path, strings.ToUpper(hexSum(data)))
	require.NoError(t, err)
	assert.True(t, ok, "hex case does not matter")

	ok, err = VerifySHA256(path, "incorrect_hash_value")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifySHA256(filepath.Join(t.TempDir(), "missing"), hexSum(data))
	assert.Error(t, err)
}

func TestHashingReader(t *testing.T) {
	data := strings.Repeat("block data ", 1000)
	hr := NewHashingReader(strings.NewReader(data))

	n, err := io.Copy(io.Discard, hr)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, hexSum([]byte(data)), hr.Sum())
}

func TestCheckSum(t *testing.T) {
	assert.NoError(t, CheckSum("ABCD", "abcd"))
	assert.ErrorIs(t, CheckSum("abcd", "abce"), ErrChecksumMismatch)
}
