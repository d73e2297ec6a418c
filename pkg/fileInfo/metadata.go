// Package fileInfo describes files for the metadata field of a TransferInit:
// name, size, MIME type and SHA-256, encoded as JSON.
package fileInfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrChecksumMismatch means received data does not hash to the announced value
	ErrChecksumMismatch = errors.New("file hash mismatch - file may be corrupted during transmission")
	// ErrInvalidMetadata means the metadata field is not a metadata document
	ErrInvalidMetadata = errors.New("invalid file metadata")
)

const defaultMimeType = "application/octet-stream"

// Metadata is what a sender announces about the file it transfers.
type Metadata struct {
	Name     string `json:"name"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Checksum string `json:"checksum,omitempty"` // hex SHA-256 of the whole file
}

// Describe stats, types and hashes a regular file in a single read.
func Describe(path string) (Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Metadata{}, err
	}
	if info.IsDir() {
		return Metadata{}, fmt.Errorf("%s is a directory", path)
	}

	hr := NewHashingReader(file)
	meta := Metadata{
		Name:     info.Name(),
		Size:     uint64(info.Size()),
		MimeType: detectMimeType(hr),
	}
	// The sniffed header already went through the hash.
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return Metadata{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	meta.Checksum = hr.Sum()
	return meta, nil
}

// detectMimeType sniffs the start of r, falling back to
// application/octet-stream.
func detectMimeType(r io.Reader) string {
	mime, err := mimetype.DetectReader(r)
	if err != nil {
		return defaultMimeType
	}
	return mime.String()
}

// Encode returns the metadata as JSON for a TransferInit.
func (m Metadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMetadata parses TransferInit metadata. Empty metadata decodes to the
// zero value; peers are free to send none.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	m.Name = filepath.Base(filepath.Clean("/" + m.Name))
	if m.Name == "/" {
		m.Name = ""
	}
	return m, nil
}
