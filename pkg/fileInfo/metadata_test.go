package fileInfo

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func hexSum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDescribe(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name     string
		file     string
		data     []byte
		wantMime string
	}{
		{"text", "notes.txt", []byte("hello, world\n"), "text/plain; charset=utf-8"},
		{"png", "image.png", png, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, tt.file, tt.data)
			meta, err := Describe(path)
			require.NoError(t, err)
			assert.Equal(t, tt.file, meta.Name)
			assert.Equal(t, uint64(len(tt.data)), meta.Size)
			assert.Equal(t, tt.wantMime, meta.MimeType)
			assert.Equal(t, hexSum(tt.data), meta.Checksum)
		})
	}
}

func TestDescribe_EmptyFile(t *testing.T) {
	meta, err := Describe(writeTestFile(t, "empty.bin", nil))
	require.NoError(t, err)
	assert.Zero(t, meta.Size)
	assert.NotEmpty(t, meta.MimeType)
	assert.Equal(t, hexSum(nil), meta.Checksum)
}

func TestDescribe_HashesPastSniffWindow(t *testing.T) {
	data := make([]byte, 20000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	meta, err := Describe(writeTestFile(t, "large.bin", data))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), meta.Size)
	assert.Equal(t, hexSum(data), meta.Checksum)

	sum, err := SHA256File(writeTestFile(t, "copy.bin", data))
	require.NoError(t, err)
	assert.Equal(t, sum, meta.Checksum)
}

func TestDescribe_Errors(t *testing.T) {
	_, err := Describe(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Describe(t.TempDir())
	assert.Error(t, err)
}

func TestMetadata_EncodeDecode(t *testing.T) {
	meta := Metadata{Name: "fw.bin", Size: 1000, MimeType: "application/octet-stream", Checksum: "ab12"}
	data, err := meta.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"fw.bin","size":1000,"mime_type":"application/octet-stream","checksum":"ab12"}`, string(data))

	decoded, err := DecodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, meta, decoded)
}

func TestDecodeMetadata(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantName string
		wantErr  bool
	}{
		{"empty", "", "", false},
		{"plain name", `{"name":"a.txt"}`, "a.txt", false},
		{"traversal", `{"name":"../../etc/passwd"}`, "passwd", false},
		{"absolute", `{"name":"/tmp/x.bin"}`, "x.bin", false},
		{"root only", `{"name":"/"}`, "", false},
		{"not json", "v1.2.3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := DecodeMetadata([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMetadata)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, meta.Name)
		})
	}
}
