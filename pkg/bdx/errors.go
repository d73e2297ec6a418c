package bdx

import "errors"

var (
	// ErrMalformedMessage wraps every Parse failure. The wrapped chain also
	// carries wire.ErrMessageIncomplete when a field ran past the end.
	ErrMalformedMessage   = errors.New("bdx: malformed message")
	ErrUnknownMessageType = errors.New("bdx: unknown message type")
	ErrEmptyFrame         = errors.New("bdx: empty frame")

	ErrInvalidVersion        = errors.New("bdx: version does not fit the control byte")
	ErrNoTransferMode        = errors.New("bdx: no transfer mode set")
	ErrMultipleTransferModes = errors.New("bdx: accept must choose exactly one transfer mode")
	ErrUnknownTransferMode   = errors.New("bdx: undefined transfer mode bits")
	ErrFileDesignatorTooLong = errors.New("bdx: file designator longer than 65535 bytes")
)
