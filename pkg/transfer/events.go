package transfer

import "github.com/rescp17/bdx/pkg/bdx"

// EventType tells the application what a received message meant.
type EventType int

const (
	EventNone EventType = iota
	EventInitReceived
	EventAcceptReceived
	EventQueryReceived
	EventQueryWithSkipReceived
	EventBlockReceived
	EventAckReceived
	EventAckEOFReceived
	EventStatusReceived
)

func (t EventType) String() string {
	switch t {
	case EventInitReceived:
		return "init_received"
	case EventAcceptReceived:
		return "accept_received"
	case EventQueryReceived:
		return "query_received"
	case EventQueryWithSkipReceived:
		return "query_with_skip_received"
	case EventBlockReceived:
		return "block_received"
	case EventAckReceived:
		return "ack_received"
	case EventAckEOFReceived:
		return "ack_eof_received"
	case EventStatusReceived:
		return "status_received"
	default:
		return "none"
	}
}

// Event is the result of Session.HandleMessage. Only the fields relevant to
// Type are set. Data aliases the received payload.
type Event struct {
	Type         EventType
	BlockCounter uint32
	BytesToSkip  uint64
	Data         []byte
	EOF          bool
	Init         *bdx.TransferInit
	Status       *bdx.StatusReport
}

// OutgoingMessage is a message the session produced for the peer.
type OutgoingMessage struct {
	Type    bdx.MessageType
	Message bdx.Message
}

// Encode frames the message for the transport.
func (o OutgoingMessage) Encode() ([]byte, error) {
	return bdx.EncodeFrame(o.Type, o.Message)
}
