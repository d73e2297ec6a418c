package wire

import (
	"encoding/binary"
	"fmt"
)

// Reader consumes little-endian values from a byte slice.
//
// The first failed read sets a sticky error; every later call on the same
// reader is a no-op that leaves its destination untouched.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("%w: %s needs %d bytes, %d remain", ErrMessageIncomplete, field, n, r.Remaining())
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Read8 reads one byte into v.
func (r *Reader) Read8(v *uint8) *Reader {
	if b := r.take(1, "uint8"); b != nil {
		*v = b[0]
	}
	return r
}

// Read16 reads a little-endian uint16 into v.
func (r *Reader) Read16(v *uint16) *Reader {
	if b := r.take(2, "uint16"); b != nil {
		*v = binary.LittleEndian.Uint16(b)
	}
	return r
}

// Read32 reads a little-endian uint32 into v.
func (r *Reader) Read32(v *uint32) *Reader {
	if b := r.take(4, "uint32"); b != nil {
		*v = binary.LittleEndian.Uint32(b)
	}
	return r
}

// Read64 reads a little-endian uint64 into v.
func (r *Reader) Read64(v *uint64) *Reader {
	if b := r.take(8, "uint64"); b != nil {
		*v = binary.LittleEndian.Uint64(b)
	}
	return r
}

// ReadBytes sets *v to a view of the next n bytes. The view aliases the
// reader's buffer and its capacity is capped at n, so appending to it never
// overwrites the bytes that follow.
func (r *Reader) ReadBytes(n int, v *[]byte) *Reader {
	start := r.pos
	if b := r.take(n, "bytes"); b != nil {
		*v = r.buf[start : start+n : start+n]
	}
	return r
}

// ReadRest sets *v to a view of every remaining byte.
func (r *Reader) ReadRest(v *[]byte) *Reader {
	return r.ReadBytes(r.Remaining(), v)
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) *Reader {
	r.take(n, "skip")
	return r
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// OctetsRead returns the number of bytes consumed so far.
func (r *Reader) OctetsRead() int {
	return r.pos
}

// HasAtLeast reports whether n more bytes can be read.
func (r *Reader) HasAtLeast(n int) bool {
	return r.err == nil && r.Remaining() >= n
}

// IsSuccess reports whether every read so far succeeded.
func (r *Reader) IsSuccess() bool {
	return r.err == nil
}

// Err returns the sticky error, if any.
func (r *Reader) Err() error {
	return r.err
}
