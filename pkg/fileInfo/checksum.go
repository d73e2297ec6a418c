package fileInfo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SHA256File returns the hex SHA-256 of the file at filePath.
func SHA256File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("fail to close file", "error", err.Error())
		}
	}()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 reports whether the file at filePath hashes to
// expectedChecksum. Hex case is ignored.
func VerifySHA256(filePath, expectedChecksum string) (bool, error) {
	actual, err := SHA256File(filePath)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expectedChecksum), nil
}

// HashingReader hashes everything read through it.
type HashingReader struct {
	r io.Reader
	h hash.Hash
}

func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	hr.h.Write(p[:n])
	return n, err
}

// Sum returns the hex SHA-256 of the bytes read so far.
func (hr *HashingReader) Sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// CheckSum compares a computed hex digest against the expected one.
func CheckSum(actual, expected string) error {
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, actual, expected)
	}
	return nil
}
