package bdx

import (
	"bytes"
	"fmt"

	"github.com/rescp17/bdx/pkg/wire"
)

// SendAccept answers a SendInit. TransferCtlFlags holds the single mode the
// receiver picked from the proposal.
type SendAccept struct {
	owned

	Version          uint8
	TransferCtlFlags TransferControlFlags
	MaxBlockSize     uint16
	Metadata         []byte
}

var _ Message = (*SendAccept)(nil)

// WriteToBuffer implements Message.
func (m *SendAccept) WriteToBuffer(w *wire.Writer) *wire.Writer {
	return w.Put8(controlByte(m.Version, m.TransferCtlFlags)).
		Put16(m.MaxBlockSize).
		Put(m.Metadata)
}

// Parse implements Message.
func (m *SendAccept) Parse(buf []byte) error {
	var (
		msg SendAccept
		ctl uint8
	)
	r := wire.NewReader(buf)
	r.Read8(&ctl).Read16(&msg.MaxBlockSize).ReadRest(&msg.Metadata)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: send accept: %w", ErrMalformedMessage, err)
	}

	msg.Version, msg.TransferCtlFlags = splitControlByte(ctl)
	msg.Metadata = view(msg.Metadata)
	msg.backing = buf
	*m = msg
	return nil
}

// MessageSize implements Message.
func (m *SendAccept) MessageSize() int {
	return messageSize(m)
}

// Validate checks that exactly one defined mode was chosen.
func (m *SendAccept) Validate() error {
	return validateChosenMode(m.Version, m.TransferCtlFlags)
}

// Equal compares field by field, Metadata by content.
func (m *SendAccept) Equal(o *SendAccept) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Version == o.Version &&
		m.TransferCtlFlags == o.TransferCtlFlags &&
		m.MaxBlockSize == o.MaxBlockSize &&
		bytes.Equal(m.Metadata, o.Metadata)
}

// Release drops the parsed payload and clears the message.
func (m *SendAccept) Release() {
	*m = SendAccept{}
}

// ReceiveAccept answers a ReceiveInit. Besides the chosen mode it may narrow
// the range the initiator asked for. As in TransferInit, zero StartOffset and
// Length mean "not specified".
type ReceiveAccept struct {
	owned

	Version          uint8
	TransferCtlFlags TransferControlFlags
	StartOffset      uint64
	Length           uint64
	MaxBlockSize     uint16
	Metadata         []byte
}

var _ Message = (*ReceiveAccept)(nil)

// WriteToBuffer implements Message.
func (m *ReceiveAccept) WriteToBuffer(w *wire.Writer) *wire.Writer {
	rangeCtl := rangeControlFor(m.StartOffset, m.Length)
	wide := rangeCtl.Has(RangeWiderange)

	w.Put8(controlByte(m.Version, m.TransferCtlFlags)).
		Put8(uint8(rangeCtl)).
		Put16(m.MaxBlockSize)
	if rangeCtl.Has(RangeStartOffset) {
		writeRangeField(w, wide, m.StartOffset)
	}
	if rangeCtl.Has(RangeDefLen) {
		writeRangeField(w, wide, m.Length)
	}
	return w.Put(m.Metadata)
}

// Parse implements Message.
func (m *ReceiveAccept) Parse(buf []byte) error {
	var (
		msg     ReceiveAccept
		ctl, rc uint8
	)
	r := wire.NewReader(buf)
	r.Read8(&ctl).Read8(&rc).Read16(&msg.MaxBlockSize)
	rangeCtl := RangeControlFlags(rc)
	wide := rangeCtl.Has(RangeWiderange)
	if rangeCtl.Has(RangeStartOffset) {
		readRangeField(r, wide, &msg.StartOffset)
	}
	if rangeCtl.Has(RangeDefLen) {
		readRangeField(r, wide, &msg.Length)
	}
	r.ReadRest(&msg.Metadata)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: receive accept: %w", ErrMalformedMessage, err)
	}

	msg.Version, msg.TransferCtlFlags = splitControlByte(ctl)
	msg.Metadata = view(msg.Metadata)
	msg.backing = buf
	*m = msg
	return nil
}

// MessageSize implements Message.
func (m *ReceiveAccept) MessageSize() int {
	return messageSize(m)
}

// Validate checks that exactly one defined mode was chosen.
func (m *ReceiveAccept) Validate() error {
	return validateChosenMode(m.Version, m.TransferCtlFlags)
}

// Equal compares field by field, Metadata by content.
func (m *ReceiveAccept) Equal(o *ReceiveAccept) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Version == o.Version &&
		m.TransferCtlFlags == o.TransferCtlFlags &&
		m.StartOffset == o.StartOffset &&
		m.Length == o.Length &&
		m.MaxBlockSize == o.MaxBlockSize &&
		bytes.Equal(m.Metadata, o.Metadata)
}

// Release drops the parsed payload and clears the message.
func (m *ReceiveAccept) Release() {
	*m = ReceiveAccept{}
}

func validateChosenMode(version uint8, flags TransferControlFlags) error {
	switch {
	case version > MaxVersion:
		return ErrInvalidVersion
	case !flags.Valid():
		return ErrUnknownTransferMode
	case flags.Count() == 0:
		return ErrNoTransferMode
	case flags.Count() > 1:
		return ErrMultipleTransferModes
	}
	return nil
}
