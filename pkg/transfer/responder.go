package transfer

import (
	"context"
	"errors"
	"io"

	"github.com/rescp17/bdx/pkg/bdx"
)

// BlockSource supplies the data a sender transfers.
type BlockSource interface {
	io.Reader
	io.Closer
	// Size is the total number of bytes, or zero when unknown.
	Size() uint64
}

// BlockSink stores the data a receiver accepts. Blocks arrive in order, but
// offsets jump forward when the transfer resumes or skips.
type BlockSink interface {
	WriteBlock(offset uint64, data []byte) error
	// Commit finalizes the data once BlockEOF arrived and before it is
	// acknowledged; an error aborts the transfer instead.
	Commit(ctx context.Context) error
	// Abort discards what was written for a failed transfer.
	Abort(cause error) error
}

// IncomingTransfer describes an Init received by a responder.
type IncomingTransfer struct {
	ID             string
	Role           Role // the responder's role
	Peer           string
	FileDesignator string
	StartOffset    uint64
	MaxLength      uint64
	Metadata       []byte
}

// Responder opens local storage for transfers proposed by peers. Errors
// wrapping ErrDesignatorUnknown or ErrResponderBusy are reported to the peer
// with the matching status code.
type Responder interface {
	// OpenSink is called for a SendInit: the peer wants to send.
	OpenSink(ctx context.Context, in *IncomingTransfer) (BlockSink, error)
	// OpenSource is called for a ReceiveInit: the peer wants to receive.
	OpenSource(ctx context.Context, in *IncomingTransfer) (BlockSource, error)
}

// rejectStatus picks the status code reported when a responder cannot serve
// a transfer.
func rejectStatus(err error) bdx.StatusCode {
	switch {
	case errors.Is(err, ErrDesignatorUnknown):
		return bdx.StatusFileDesignatorUnknown
	case errors.Is(err, ErrResponderBusy):
		return bdx.StatusResponderBusy
	case errors.Is(err, ErrNoCommonMode):
		return bdx.StatusTransferMethodNotSupported
	case errors.Is(err, ErrStartOffsetUnsupported):
		return bdx.StatusStartOffsetNotSupported
	case errors.Is(err, ErrLengthRequired):
		return bdx.StatusLengthRequired
	default:
		return bdx.StatusTransferFailedUnknownError
	}
}

// ErrStartOffsetUnsupported means the requested start offset is past the end
// of the source.
var ErrStartOffsetUnsupported = errors.New("start offset not supported")
