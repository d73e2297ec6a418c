package receiver

import (
	"errors"
	"fmt"
	"os"

	"github.com/rescp17/bdx/pkg/transfer"
)

// FileSource serves a file for a transfer. It seeks rather than reads when a
// transfer starts at an offset or skips.
type FileSource struct {
	*os.File
	size uint64
}

var _ transfer.BlockSource = (*FileSource)(nil)

// OpenFileSource opens a regular file. A missing file or a directory is
// reported as transfer.ErrDesignatorUnknown.
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", transfer.ErrDesignatorUnknown, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", transfer.ErrDesignatorUnknown, path)
	}
	return &FileSource{File: file, size: uint64(info.Size())}, nil
}

func (s *FileSource) Size() uint64 { return s.size }
