package transfer

import (
	"errors"
	"fmt"
	"io"
)

// Chunk is one block worth of source data.
type Chunk struct {
	Offset uint64 // Position in the source, counting skipped bytes
	Data   []byte
	IsLast bool
}

// Chunker splits a reader into blocks of at most blockSize bytes. It reads
// one byte ahead so the final block is known to be final when it is handed
// out, which is what BlockEOF needs.
type Chunker struct {
	r         io.Reader
	blockSize int
	offset    uint64
	lookahead []byte
	peek      [1]byte
	done      bool
}

var ErrInvalidBlockSize = errors.New("block size must be positive")

func NewChunker(r io.Reader, blockSize int) (*Chunker, error) {
	if blockSize <= 0 {
		return nil, ErrInvalidBlockSize
	}
	return &Chunker{r: r, blockSize: blockSize}, nil
}

// Next returns the next block. After the block marked IsLast it returns
// io.EOF. An empty source yields a single empty last block.
func (c *Chunker) Next() (*Chunk, error) {
	if c.done {
		return nil, io.EOF
	}

	buf := make([]byte, c.blockSize)
	n := copy(buf, c.lookahead)
	c.lookahead = nil

	m, err := io.ReadFull(c.r, buf[n:])
	n += m

	last := false
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		last = true
	case err != nil:
		return nil, fmt.Errorf("read block: %w", err)
	default:
		k, perr := io.ReadFull(c.r, c.peek[:])
		switch {
		case k == 1:
			c.lookahead = c.peek[:]
		case errors.Is(perr, io.EOF):
			last = true
		default:
			return nil, fmt.Errorf("read block: %w", perr)
		}
	}

	chunk := &Chunk{Offset: c.offset, Data: buf[:n], IsLast: last}
	c.offset += uint64(n)
	c.done = last
	return chunk, nil
}

// Skip advances the source by n bytes. Seekable sources seek; others are
// read and discarded. Skipping past the end leaves an empty last block.
func (c *Chunker) Skip(n uint64) error {
	if n == 0 || c.done {
		return nil
	}
	c.offset += n

	if len(c.lookahead) > 0 {
		c.lookahead = nil
		n--
	}
	if n == 0 {
		return nil
	}

	return discard(c.r, n)
}

// discard advances r by n bytes. Seekable readers seek; others are read and
// discarded. Running out of data is not an error.
func discard(r io.Reader, n uint64) error {
	if s, ok := r.(io.Seeker); ok {
		if _, err := s.Seek(int64(n), io.SeekCurrent); err != nil {
			return fmt.Errorf("skip %d bytes: %w", n, err)
		}
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("skip %d bytes: %w", n, err)
	}
	return nil
}

// Offset returns the position of the next block.
func (c *Chunker) Offset() uint64 {
	return c.offset
}
