package bdx

import (
	"bytes"
	"fmt"

	"github.com/rescp17/bdx/pkg/wire"
)

// StatusCode is the BDX-specific protocol code carried in a StatusReport.
type StatusCode uint16

const (
	StatusLengthTooLarge             StatusCode = 0x0012
	StatusLengthTooShort             StatusCode = 0x0013
	StatusLengthMismatch             StatusCode = 0x0014
	StatusLengthRequired             StatusCode = 0x0015
	StatusBadMessageContents         StatusCode = 0x0016
	StatusBadBlockCounter            StatusCode = 0x0017
	StatusUnexpectedMessage          StatusCode = 0x0018
	StatusResponderBusy              StatusCode = 0x0019
	StatusTransferFailedUnknownError StatusCode = 0x001F
	StatusTransferMethodNotSupported StatusCode = 0x0050
	StatusFileDesignatorUnknown      StatusCode = 0x0051
	StatusStartOffsetNotSupported    StatusCode = 0x0052
	StatusVersionNotSupported        StatusCode = 0x0053
	StatusUnknown                    StatusCode = 0x005F
)

func (c StatusCode) String() string {
	switch c {
	case StatusLengthTooLarge:
		return "LengthTooLarge"
	case StatusLengthTooShort:
		return "LengthTooShort"
	case StatusLengthMismatch:
		return "LengthMismatch"
	case StatusLengthRequired:
		return "LengthRequired"
	case StatusBadMessageContents:
		return "BadMessageContents"
	case StatusBadBlockCounter:
		return "BadBlockCounter"
	case StatusUnexpectedMessage:
		return "UnexpectedMessage"
	case StatusResponderBusy:
		return "ResponderBusy"
	case StatusTransferFailedUnknownError:
		return "TransferFailedUnknownError"
	case StatusTransferMethodNotSupported:
		return "TransferMethodNotSupported"
	case StatusFileDesignatorUnknown:
		return "FileDesignatorUnknown"
	case StatusStartOffsetNotSupported:
		return "StartOffsetNotSupported"
	case StatusVersionNotSupported:
		return "VersionNotSupported"
	case StatusUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("StatusCode(0x%04X)", uint16(c))
	}
}

// GeneralCode is the protocol-independent part of a status report.
type GeneralCode uint16

const (
	GeneralSuccess           GeneralCode = 0
	GeneralFailure           GeneralCode = 1
	GeneralBadRequest        GeneralCode = 4
	GeneralUnsupported       GeneralCode = 5
	GeneralUnexpected        GeneralCode = 6
	GeneralResourceExhausted GeneralCode = 7
	GeneralBusy              GeneralCode = 8
	GeneralTimeout           GeneralCode = 9
	GeneralAborted           GeneralCode = 11
)

// StatusReport tells the peer why a transfer is being terminated.
type StatusReport struct {
	owned

	GeneralCode  GeneralCode
	ProtocolID   uint32
	ProtocolCode StatusCode
	ProtocolData []byte
}

var _ Message = (*StatusReport)(nil)

// NewStatusReport builds a failure report for a BDX status code.
func NewStatusReport(code StatusCode) *StatusReport {
	general := GeneralFailure
	if code == StatusResponderBusy {
		general = GeneralBusy
	}
	return &StatusReport{
		GeneralCode:  general,
		ProtocolID:   ProtocolID,
		ProtocolCode: code,
	}
}

// WriteToBuffer implements Message.
func (m *StatusReport) WriteToBuffer(w *wire.Writer) *wire.Writer {
	return w.Put16(uint16(m.GeneralCode)).
		Put32(m.ProtocolID).
		Put16(uint16(m.ProtocolCode)).
		Put(m.ProtocolData)
}

// Parse implements Message.
func (m *StatusReport) Parse(buf []byte) error {
	var (
		msg           StatusReport
		general, code uint16
	)
	r := wire.NewReader(buf)
	r.Read16(&general).Read32(&msg.ProtocolID).Read16(&code).ReadRest(&msg.ProtocolData)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: status report: %w", ErrMalformedMessage, err)
	}
	msg.GeneralCode = GeneralCode(general)
	msg.ProtocolCode = StatusCode(code)
	msg.ProtocolData = view(msg.ProtocolData)
	msg.backing = buf
	*m = msg
	return nil
}

// MessageSize implements Message.
func (m *StatusReport) MessageSize() int {
	return messageSize(m)
}

// Equal compares field by field, ProtocolData by content.
func (m *StatusReport) Equal(o *StatusReport) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.GeneralCode == o.GeneralCode &&
		m.ProtocolID == o.ProtocolID &&
		m.ProtocolCode == o.ProtocolCode &&
		bytes.Equal(m.ProtocolData, o.ProtocolData)
}
