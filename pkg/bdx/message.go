// Package bdx implements the Bulk Data Exchange message layer: one type per
// message, each able to size itself, serialize into a fixed buffer and parse
// from a received payload.
//
// Parsed messages own the payload they were parsed from. Variable-length
// fields (FileDesignator, Metadata, Data) are sub-slices of that payload, so
// the caller must not reuse the buffer while the message is alive; Release
// drops the reference once the message has been consumed.
package bdx

import "github.com/rescp17/bdx/pkg/wire"

// Message is implemented by every BDX message.
type Message interface {
	// WriteToBuffer serializes the message. It never stops early, so running
	// it against a counting writer always yields the exact encoded size.
	WriteToBuffer(w *wire.Writer) *wire.Writer
	// Parse replaces the receiver with the message decoded from buf. On
	// failure the receiver is left untouched.
	Parse(buf []byte) error
	// MessageSize returns the encoded length in bytes.
	MessageSize() int
}

// Encode serializes m into a freshly allocated slice of exactly
// m.MessageSize() bytes.
func Encode(m Message) ([]byte, error) {
	buf := make([]byte, m.MessageSize())
	w := m.WriteToBuffer(wire.NewWriter(buf))
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func messageSize(m Message) int {
	return m.WriteToBuffer(wire.NewCountingWriter()).Needed()
}

// owned holds the payload a message was parsed from.
type owned struct {
	backing []byte
}

// Backing returns the buffer the message was parsed from, or nil.
func (o *owned) Backing() []byte {
	return o.backing
}

// view normalizes an empty field to nil so parsed and constructed messages
// compare the same.
func view(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func readRangeField(r *wire.Reader, wide bool, v *uint64) {
	if wide {
		r.Read64(v)
		return
	}
	var narrow uint32
	if r.Read32(&narrow).IsSuccess() {
		*v = uint64(narrow)
	}
}

func writeRangeField(w *wire.Writer, wide bool, v uint64) {
	if wide {
		w.Put64(v)
		return
	}
	w.Put32(uint32(v))
}
