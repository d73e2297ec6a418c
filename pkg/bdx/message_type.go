package bdx

import "fmt"

// ProtocolID identifies BDX in status reports.
const ProtocolID uint32 = 0x0002

// MessageType is the BDX message type carried in each frame header.
type MessageType uint8

const (
	TypeSendInit           MessageType = 0x01
	TypeSendAccept         MessageType = 0x02
	TypeReceiveInit        MessageType = 0x04
	TypeReceiveAccept      MessageType = 0x05
	TypeBlockQuery         MessageType = 0x10
	TypeBlock              MessageType = 0x11
	TypeBlockEOF           MessageType = 0x12
	TypeBlockAck           MessageType = 0x13
	TypeBlockAckEOF        MessageType = 0x14
	TypeBlockQueryWithSkip MessageType = 0x15
	TypeStatusReport       MessageType = 0x40
)

func (t MessageType) String() string {
	switch t {
	case TypeSendInit:
		return "SendInit"
	case TypeSendAccept:
		return "SendAccept"
	case TypeReceiveInit:
		return "ReceiveInit"
	case TypeReceiveAccept:
		return "ReceiveAccept"
	case TypeBlockQuery:
		return "BlockQuery"
	case TypeBlock:
		return "Block"
	case TypeBlockEOF:
		return "BlockEOF"
	case TypeBlockAck:
		return "BlockAck"
	case TypeBlockAckEOF:
		return "BlockAckEOF"
	case TypeBlockQueryWithSkip:
		return "BlockQueryWithSkip"
	case TypeStatusReport:
		return "StatusReport"
	default:
		return fmt.Sprintf("MessageType(0x%02X)", uint8(t))
	}
}

// NewMessage returns an empty message value able to parse payloads of type t.
func NewMessage(t MessageType) (Message, error) {
	switch t {
	case TypeSendInit, TypeReceiveInit:
		return &TransferInit{}, nil
	case TypeSendAccept:
		return &SendAccept{}, nil
	case TypeReceiveAccept:
		return &ReceiveAccept{}, nil
	case TypeBlockQuery, TypeBlockAck, TypeBlockAckEOF:
		return &CounterMessage{}, nil
	case TypeBlock, TypeBlockEOF:
		return &DataBlock{}, nil
	case TypeBlockQueryWithSkip:
		return &BlockQueryWithSkip{}, nil
	case TypeStatusReport:
		return &StatusReport{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}
}

// ParseMessage parses payload as a message of type t.
func ParseMessage(t MessageType, payload []byte) (Message, error) {
	m, err := NewMessage(t)
	if err != nil {
		return nil, err
	}
	if err := m.Parse(payload); err != nil {
		return nil, err
	}
	return m, nil
}
