// Package wire provides little-endian cursor readers and writers over fixed
// byte buffers. Both are chainable: a writer keeps counting after it runs out
// of room, and a reader turns into a no-op after its first failure, so a call
// site can chain a whole message and check the outcome once.
package wire

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrBufferTooSmall is reported by a writer whose output did not fit.
	ErrBufferTooSmall = errors.New("wire: buffer too small")
	// ErrMessageIncomplete is reported by a reader asked for more bytes than remain.
	ErrMessageIncomplete = errors.New("wire: message incomplete")
)

// Writer appends little-endian values to a fixed buffer.
//
// A Writer built over a nil or zero-capacity buffer is a counting writer: it
// never stores anything and only accumulates the number of bytes a real write
// would need. Message encoders rely on this to compute their size with the
// same code path that serializes them.
type Writer struct {
	buf     []byte
	needed  int
	written int
}

// NewWriter returns a writer over buf[:cap(buf)].
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:cap(buf)]}
}

// NewCountingWriter returns a dry-run writer.
func NewCountingWriter() *Writer {
	return &Writer{}
}

// IsCounting reports whether the writer only counts.
func (w *Writer) IsCounting() bool {
	return len(w.buf) == 0
}

func (w *Writer) reserve(n int) []byte {
	start := w.needed
	w.needed += n
	if w.needed > len(w.buf) || start != w.written {
		return nil
	}
	w.written = w.needed
	return w.buf[start:w.needed]
}

// Put8 appends one byte.
func (w *Writer) Put8(v uint8) *Writer {
	if b := w.reserve(1); b != nil {
		b[0] = v
	}
	return w
}

// Put16 appends a little-endian uint16.
func (w *Writer) Put16(v uint16) *Writer {
	if b := w.reserve(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
	return w
}

// Put32 appends a little-endian uint32.
func (w *Writer) Put32(v uint32) *Writer {
	if b := w.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
	return w
}

// Put64 appends a little-endian uint64.
func (w *Writer) Put64(v uint64) *Writer {
	if b := w.reserve(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
	return w
}

// Put appends raw bytes.
func (w *Writer) Put(p []byte) *Writer {
	if b := w.reserve(len(p)); b != nil {
		copy(b, p)
	}
	return w
}

// Needed returns the number of bytes the writes so far required.
func (w *Writer) Needed() int {
	return w.needed
}

// Written returns the number of bytes actually stored in the buffer.
func (w *Writer) Written() int {
	return w.written
}

// Size returns the capacity of the underlying buffer.
func (w *Writer) Size() int {
	return len(w.buf)
}

// Fit reports whether everything written so far fit in the buffer.
func (w *Writer) Fit() bool {
	return w.needed <= len(w.buf) && w.written == w.needed
}

// Bytes returns the stored prefix of the buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.written]
}

// Err returns ErrBufferTooSmall if the writes did not fit.
func (w *Writer) Err() error {
	if !w.Fit() {
		return ErrBufferTooSmall
	}
	return nil
}
