package receiver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/transfer"
)

// Store answers incoming transfers from local directories: files pushed with
// a SendInit land in InboxDir, or in an S3 bucket when Objects is set, and
// files asked for with a ReceiveInit are served from ServeDir.
type Store struct {
	InboxDir string
	ServeDir string

	Objects ObjectPutter
	Bucket  string
	Prefix  string

	// KeepPartial keeps partial inbox files of failed transfers so the
	// sender can resume them with a StartOffset.
	KeepPartial bool

	Logger *slog.Logger
}

var _ transfer.Responder = (*Store)(nil)

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Store) OpenSink(ctx context.Context, in *transfer.IncomingTransfer) (transfer.BlockSink, error) {
	meta, err := fileInfo.DecodeMetadata(in.Metadata)
	if err != nil {
		s.logger().Warn("Ignoring peer metadata", "transfer_id", in.ID, "error", err)
		meta = fileInfo.Metadata{}
	}

	if s.Objects != nil {
		if in.StartOffset > 0 {
			return nil, fmt.Errorf("%w: objects are uploaded whole", transfer.ErrStartOffsetUnsupported)
		}
		key, err := ObjectKey(s.Prefix, in.FileDesignator)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(s.Objects, s.Bucket, key, meta), nil
	}

	if s.InboxDir == "" {
		return nil, fmt.Errorf("%w: receiving is disabled", transfer.ErrDesignatorUnknown)
	}
	path, err := ResolvePath(s.InboxDir, in.FileDesignator)
	if err != nil {
		return nil, err
	}
	return NewFileSink(path, FileSinkOptions{
		ExpectedSHA256: meta.Checksum,
		Resume:         in.StartOffset > 0,
		KeepPartial:    s.KeepPartial,
	})
}

func (s *Store) OpenSource(ctx context.Context, in *transfer.IncomingTransfer) (transfer.BlockSource, error) {
	if s.ServeDir == "" {
		return nil, fmt.Errorf("%w: serving is disabled", transfer.ErrDesignatorUnknown)
	}
	path, err := ResolvePath(s.ServeDir, in.FileDesignator)
	if err != nil {
		return nil, err
	}
	return OpenFileSource(path)
}
