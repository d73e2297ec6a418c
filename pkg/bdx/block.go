package bdx

import (
	"bytes"
	"fmt"

	"github.com/rescp17/bdx/pkg/wire"
)

// CounterMessage is the body of BlockQuery, BlockAck and BlockAckEOF.
type CounterMessage struct {
	BlockCounter uint32
}

var _ Message = (*CounterMessage)(nil)

// WriteToBuffer implements Message.
func (m *CounterMessage) WriteToBuffer(w *wire.Writer) *wire.Writer {
	return w.Put32(m.BlockCounter)
}

// Parse implements Message.
func (m *CounterMessage) Parse(buf []byte) error {
	var counter uint32
	if err := wire.NewReader(buf).Read32(&counter).Err(); err != nil {
		return fmt.Errorf("%w: counter message: %w", ErrMalformedMessage, err)
	}
	m.BlockCounter = counter
	return nil
}

// MessageSize implements Message.
func (m *CounterMessage) MessageSize() int {
	return messageSize(m)
}

// Equal compares the block counters.
func (m *CounterMessage) Equal(o *CounterMessage) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.BlockCounter == o.BlockCounter
}

// DataBlock is the body of Block and BlockEOF. Data is every byte after the
// counter; whether this is the final block is decided by the message type.
type DataBlock struct {
	owned

	BlockCounter uint32
	Data         []byte
}

var _ Message = (*DataBlock)(nil)

// WriteToBuffer implements Message.
func (m *DataBlock) WriteToBuffer(w *wire.Writer) *wire.Writer {
	return w.Put32(m.BlockCounter).Put(m.Data)
}

// Parse implements Message.
func (m *DataBlock) Parse(buf []byte) error {
	var msg DataBlock
	r := wire.NewReader(buf)
	if err := r.Read32(&msg.BlockCounter).ReadRest(&msg.Data).Err(); err != nil {
		return fmt.Errorf("%w: data block: %w", ErrMalformedMessage, err)
	}
	msg.Data = view(msg.Data)
	msg.backing = buf
	*m = msg
	return nil
}

// MessageSize implements Message.
func (m *DataBlock) MessageSize() int {
	return messageSize(m)
}

// Equal compares counters and Data content.
func (m *DataBlock) Equal(o *DataBlock) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.BlockCounter == o.BlockCounter && bytes.Equal(m.Data, o.Data)
}

// Release drops the parsed payload and clears the message.
func (m *DataBlock) Release() {
	*m = DataBlock{}
}

// BlockQueryWithSkip asks the sender for block BlockCounter after advancing
// its read position by BytesToSkip.
type BlockQueryWithSkip struct {
	BlockCounter uint32
	BytesToSkip  uint64
}

var _ Message = (*BlockQueryWithSkip)(nil)

// WriteToBuffer implements Message.
func (m *BlockQueryWithSkip) WriteToBuffer(w *wire.Writer) *wire.Writer {
	return w.Put32(m.BlockCounter).Put64(m.BytesToSkip)
}

// Parse implements Message.
func (m *BlockQueryWithSkip) Parse(buf []byte) error {
	var msg BlockQueryWithSkip
	if err := wire.NewReader(buf).Read32(&msg.BlockCounter).Read64(&msg.BytesToSkip).Err(); err != nil {
		return fmt.Errorf("%w: block query with skip: %w", ErrMalformedMessage, err)
	}
	*m = msg
	return nil
}

// MessageSize implements Message.
func (m *BlockQueryWithSkip) MessageSize() int {
	return messageSize(m)
}

// Equal compares both fields.
func (m *BlockQueryWithSkip) Equal(o *BlockQueryWithSkip) bool {
	if m == nil || o == nil {
		return m == o
	}
	return *m == *o
}
