package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rescp17/bdx/internal/util"
	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/transfer"
)

// PartSuffix marks a file that is still being received.
const PartSuffix = ".part"

// ErrSinkClosed is returned for writes after Commit or Abort
var ErrSinkClosed = errors.New("sink already closed")

// FileSinkOptions controls how a FileSink treats existing data.
type FileSinkOptions struct {
	// ExpectedSHA256 is checked against the whole file on Commit
	ExpectedSHA256 string
	// Resume keeps the bytes already in the partial file
	Resume bool
	// KeepPartial leaves the partial file behind on Abort so a later
	// transfer can resume it
	KeepPartial bool
}

// FileSink writes received blocks at their offsets into path+PartSuffix and
// renames it to path once the transfer commits.
type FileSink struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	partPath string
	opts     FileSinkOptions
	end      uint64 // end of the valid data
	written  uint64
	closed   bool
}

var _ transfer.BlockSink = (*FileSink)(nil)

// NewFileSink opens the partial file for path, creating parent directories.
func NewFileSink(path string, opts FileSinkOptions) (*FileSink, error) {
	if err := util.EnsureDirectory(filepath.Dir(path)); err != nil {
		return nil, err
	}

	partPath := path + PartSuffix
	flags := os.O_CREATE | os.O_RDWR
	if !opts.Resume {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", partPath, err)
	}

	s := &FileSink{file: file, path: path, partPath: partPath, opts: opts}
	if opts.Resume {
		if info, err := file.Stat(); err == nil {
			s.end = uint64(info.Size())
		}
	}
	slog.Info("Started receiving file", "path", path, "resume", opts.Resume, "existing", s.end)
	return s, nil
}

// Path returns the final path of the file.
func (s *FileSink) Path() string { return s.path }

// Written returns the number of bytes written by this sink.
func (s *FileSink) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *FileSink) WriteBlock(offset uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if offset > math.MaxInt64-uint64(len(data)) {
		return fmt.Errorf("offset %d out of range", offset)
	}
	if len(data) == 0 {
		return nil
	}

	n, err := s.file.WriteAt(data, int64(offset))
	if err != nil {
		return fmt.Errorf("failed to write %d bytes at offset %d: %w", len(data), offset, err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: expected %d bytes, wrote %d bytes", len(data), n)
	}

	if s.written == 0 {
		// Resumed data past the first write is stale.
		s.end = offset
	}
	s.written += uint64(n)
	s.end = max(s.end, offset+uint64(n))
	return nil
}

// Commit syncs the data, verifies it when a checksum is expected and moves
// the file into place. A file that fails verification is removed.
func (s *FileSink) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true

	// A resumed file may be longer than what this transfer wrote.
	if err := s.file.Truncate(int64(s.end)); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to truncate file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		slog.Warn("Failed to sync file to disk", "error", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if s.opts.ExpectedSHA256 != "" {
		slog.Info("Starting file integrity verification", "path", s.path, "expectedHash", s.opts.ExpectedSHA256)
		actual, err := fileInfo.SHA256File(s.partPath)
		if err != nil {
			return fmt.Errorf("failed to calculate file hash: %w", err)
		}
		if err := fileInfo.CheckSum(actual, s.opts.ExpectedSHA256); err != nil {
			s.cleanup()
			slog.Error("File integrity verification failed", "path", s.path, "error", err)
			return fmt.Errorf("file integrity verification failed for %s: %w", filepath.Base(s.path), err)
		}
		slog.Info("File integrity verification successful", "path", s.path)
	}

	if err := os.Rename(s.partPath, s.path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	slog.Info("File reception completed", "path", s.path, "size", s.end)
	return nil
}

// Abort closes the file and removes it unless partial files are kept.
func (s *FileSink) Abort(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		slog.Warn("Failed to close aborted file", "error", err)
	}
	if s.opts.KeepPartial {
		slog.Info("Keeping partial file for resume", "path", s.partPath, "size", s.end, "cause", cause)
		return nil
	}
	return s.cleanup()
}

func (s *FileSink) cleanup() error {
	slog.Info("Cleaning up partial file", "path", s.partPath)
	if err := os.Remove(s.partPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial file %s: %w", s.partPath, err)
	}
	return nil
}
