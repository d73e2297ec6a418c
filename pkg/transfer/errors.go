package transfer

import (
	"errors"
	"fmt"

	"github.com/rescp17/bdx/pkg/bdx"
)

// AbortReason classifies why a transfer ended in the Error state. The
// application uses it to decide whether a fresh attempt is worthwhile.
type AbortReason int

const (
	// ReasonMalformedMessage means a peer message failed to parse
	ReasonMalformedMessage AbortReason = iota + 1
	// ReasonProtocolViolation means a well-formed message broke the session rules
	ReasonProtocolViolation
	// ReasonPeerStatus means the peer ended the transfer with a StatusReport
	ReasonPeerStatus
	// ReasonTimeout means the peer did not answer in time
	ReasonTimeout
	// ReasonTransport means the underlying connection failed
	ReasonTransport
	// ReasonLocalResource means a local source or sink failed
	ReasonLocalResource
	// ReasonCancelled means the local application ended the transfer
	ReasonCancelled
)

// String returns a human-readable string representation of the reason
func (r AbortReason) String() string {
	switch r {
	case ReasonMalformedMessage:
		return "malformed_message"
	case ReasonProtocolViolation:
		return "protocol_violation"
	case ReasonPeerStatus:
		return "peer_status"
	case ReasonTimeout:
		return "timeout"
	case ReasonTransport:
		return "transport"
	case ReasonLocalResource:
		return "local_resource"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AbortError is the terminal error of a session. Status is the BDX code
// reported to (or received from) the peer.
type AbortError struct {
	Reason AbortReason
	Status bdx.StatusCode
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transfer aborted (%s, %s): %v", e.Reason, e.Status, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// AsAbortError extracts the AbortError from err's chain.
func AsAbortError(err error) (*AbortError, bool) {
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Session errors
var (
	// ErrWrongState is returned when an operation is not valid in the
	// session's current state. The session is left unchanged.
	ErrWrongState = errors.New("operation not valid in current session state")
	// ErrSessionClosed is returned for any operation on a finished session
	ErrSessionClosed = errors.New("session already finished")

	ErrUnexpectedMessage    = errors.New("unexpected message")
	ErrBadBlockCounter      = errors.New("bad block counter")
	ErrModeNotProposed      = errors.New("accepted transfer mode was not proposed")
	ErrVersionNotProposed   = errors.New("accepted version is newer than proposed")
	ErrBlockSizeNotProposed = errors.New("accepted block size is zero or larger than proposed")
	ErrStartNotProposed     = errors.New("accepted start offset is before the proposed one")
	ErrLengthRequired       = errors.New("definite length required by the proposed maximum")
	ErrUnsupportedMode      = errors.New("transfer mode not supported")
	ErrNoCommonMode         = errors.New("no transfer mode in common with peer")
	ErrBlockTooLarge        = errors.New("block larger than negotiated block size")
	ErrEmptyBlock           = errors.New("empty block before end of file")
	ErrLengthExceeded       = errors.New("data exceeds negotiated length")
	ErrLengthShort          = errors.New("transfer ended short of negotiated length")
	ErrPeerStatus           = errors.New("peer reported failure")
	ErrTransferRejected     = errors.New("transfer rejected")
)

// Responder errors. Responder implementations wrap these so the session can
// report the matching status code to the initiator.
var (
	// ErrDesignatorUnknown means the requested file designator does not exist
	ErrDesignatorUnknown = errors.New("file designator unknown")
	// ErrResponderBusy means the responder cannot take another transfer now
	ErrResponderBusy = errors.New("responder busy")
)
