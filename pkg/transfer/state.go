package transfer

// SessionState is the protocol state of a single BDX session.
type SessionState int

const (
	// StateIdle is a new session before either side spoke
	StateIdle SessionState = iota
	// StateAwaitInit is a responder listening for a SendInit or ReceiveInit
	StateAwaitInit
	// StateAwaitAccept is an initiator that sent its Init
	StateAwaitAccept
	// StateNegotiating is a responder holding an Init the application has to
	// accept or reject
	StateNegotiating
	// StateTransferring is the block loop
	StateTransferring
	// StateDone means BlockEOF was acknowledged
	StateDone
	// StateError means the session aborted; see Session.Err
	StateError
)

// String returns a human-readable string representation of the state
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitInit:
		return "await_init"
	case StateAwaitAccept:
		return "await_accept"
	case StateNegotiating:
		return "negotiating"
	case StateTransferring:
		return "transferring"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Done and Error
func (s SessionState) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// CanTransitionTo checks if a state transition is valid
func (s SessionState) CanTransitionTo(next SessionState) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case StateIdle:
		return next == StateAwaitInit || next == StateAwaitAccept
	case StateAwaitInit:
		return next == StateNegotiating || next == StateError
	case StateAwaitAccept:
		return next == StateTransferring || next == StateError
	case StateNegotiating:
		return next == StateTransferring || next == StateError
	case StateTransferring:
		return next == StateDone || next == StateError
	default:
		return false
	}
}

// Role is the side of the transfer that moves data.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// round tracks where a Transferring session is inside one block exchange.
type round int

const (
	// roundIdle: nothing outstanding for the current counter
	roundIdle round = iota
	// roundQueried: a BlockQuery for the current counter was sent or received
	roundQueried
	// roundBlockPending: a block was sent or received and its ack is due
	roundBlockPending
)
