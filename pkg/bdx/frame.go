package bdx

import (
	"fmt"

	"github.com/rescp17/bdx/pkg/wire"
)

// FrameHeaderSize is the one-byte message type that precedes each payload.
const FrameHeaderSize = 1

// EncodeFrame serializes m behind its message type, ready to hand to a
// transport that preserves message boundaries.
func EncodeFrame(t MessageType, m Message) ([]byte, error) {
	buf := make([]byte, FrameHeaderSize+m.MessageSize())
	w := wire.NewWriter(buf).Put8(uint8(t))
	if err := m.WriteToBuffer(w).Err(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return w.Bytes(), nil
}

// DecodeFrame splits a frame into its message type and payload. The payload
// aliases frame.
func DecodeFrame(frame []byte) (MessageType, []byte, error) {
	if len(frame) < FrameHeaderSize {
		return 0, nil, ErrEmptyFrame
	}
	return MessageType(frame[0]), frame[FrameHeaderSize:], nil
}
