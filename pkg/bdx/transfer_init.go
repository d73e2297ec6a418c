package bdx

import (
	"bytes"
	"fmt"
	"math"

	"github.com/rescp17/bdx/pkg/wire"
)

// TransferInit is the body of both SendInit and ReceiveInit. The message type
// in the frame header tells which side proposes to send.
//
// StartOffset and MaxLength use zero for "not specified": a zero value is
// never written, so a peer cannot propose an explicit length of zero.
type TransferInit struct {
	owned

	Version            uint8
	TransferCtlOptions TransferControlFlags
	StartOffset        uint64
	MaxLength          uint64
	MaxBlockSize       uint16
	FileDesignator     []byte
	// Metadata runs to the end of the message.
	Metadata []byte
}

var _ Message = (*TransferInit)(nil)

// WriteToBuffer implements Message.
func (m *TransferInit) WriteToBuffer(w *wire.Writer) *wire.Writer {
	rangeCtl := rangeControlFor(m.StartOffset, m.MaxLength)
	wide := rangeCtl.Has(RangeWiderange)

	w.Put8(controlByte(m.Version, m.TransferCtlOptions)).
		Put8(uint8(rangeCtl)).
		Put16(m.MaxBlockSize)
	if rangeCtl.Has(RangeStartOffset) {
		writeRangeField(w, wide, m.StartOffset)
	}
	if rangeCtl.Has(RangeDefLen) {
		writeRangeField(w, wide, m.MaxLength)
	}
	return w.Put16(uint16(len(m.FileDesignator))).
		Put(m.FileDesignator).
		Put(m.Metadata)
}

// Parse implements Message.
func (m *TransferInit) Parse(buf []byte) error {
	var (
		msg        TransferInit
		ctl, rc    uint8
		fileDesLen uint16
	)
	r := wire.NewReader(buf)
	r.Read8(&ctl).Read8(&rc).Read16(&msg.MaxBlockSize)
	rangeCtl := RangeControlFlags(rc)
	wide := rangeCtl.Has(RangeWiderange)
	if rangeCtl.Has(RangeStartOffset) {
		readRangeField(r, wide, &msg.StartOffset)
	}
	if rangeCtl.Has(RangeDefLen) {
		readRangeField(r, wide, &msg.MaxLength)
	}
	r.Read16(&fileDesLen).ReadBytes(int(fileDesLen), &msg.FileDesignator)
	r.ReadRest(&msg.Metadata)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: transfer init: %w", ErrMalformedMessage, err)
	}

	msg.Version, msg.TransferCtlOptions = splitControlByte(ctl)
	msg.FileDesignator = view(msg.FileDesignator)
	msg.Metadata = view(msg.Metadata)
	msg.backing = buf
	*m = msg
	return nil
}

// MessageSize implements Message.
func (m *TransferInit) MessageSize() int {
	return messageSize(m)
}

// Validate reports proposals that encode but cannot be honored by a peer.
func (m *TransferInit) Validate() error {
	if m.Version > MaxVersion {
		return ErrInvalidVersion
	}
	if !m.TransferCtlOptions.Valid() {
		return ErrUnknownTransferMode
	}
	if m.TransferCtlOptions.Count() == 0 {
		return ErrNoTransferMode
	}
	if len(m.FileDesignator) > math.MaxUint16 {
		return ErrFileDesignatorTooLong
	}
	return nil
}

// Equal compares field by field, byte fields by content.
func (m *TransferInit) Equal(o *TransferInit) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Version == o.Version &&
		m.TransferCtlOptions == o.TransferCtlOptions &&
		m.StartOffset == o.StartOffset &&
		m.MaxLength == o.MaxLength &&
		m.MaxBlockSize == o.MaxBlockSize &&
		bytes.Equal(m.FileDesignator, o.FileDesignator) &&
		bytes.Equal(m.Metadata, o.Metadata)
}

// Release drops the parsed payload and clears the message.
func (m *TransferInit) Release() {
	*m = TransferInit{}
}
