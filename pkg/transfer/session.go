package transfer

import (
	"fmt"

	"github.com/rescp17/bdx/pkg/bdx"
)

// driveModes are the transfer modes a Session can run. Async may appear in a
// peer's proposal but is never chosen.
const driveModes = bdx.SenderDrive | bdx.ReceiverDrive

// InitParams is what an initiator proposes in its SendInit or ReceiveInit.
// Zero StartOffset and MaxLength mean "not specified".
type InitParams struct {
	Version        uint8
	Modes          bdx.TransferControlFlags
	StartOffset    uint64
	MaxLength      uint64
	MaxBlockSize   uint16
	FileDesignator []byte
	Metadata       []byte
}

// ResponderParams bound what a responder is willing to accept.
type ResponderParams struct {
	// Version is the newest protocol version the responder speaks
	Version uint8
	// Modes are the transfer modes the responder can drive
	Modes bdx.TransferControlFlags
	// MaxBlockSize caps the negotiated block size; zero leaves the proposal as is
	MaxBlockSize uint16
}

// AcceptParams are the values a responder commits to. StartOffset and Length
// are only sent in a ReceiveAccept, where the responder sends the data.
type AcceptParams struct {
	Version      uint8
	Mode         bdx.TransferControlFlags
	MaxBlockSize uint16
	StartOffset  uint64
	Length       uint64
	Metadata     []byte
}

// Session sequences one BDX transfer: Init, Accept, then lock-step block
// exchange until BlockEOF is acknowledged. It performs no I/O; the caller
// feeds received messages to HandleMessage and sends what the Prepare
// methods return. A Session is not safe for concurrent use.
type Session struct {
	role      Role
	initiator bool
	state     SessionState

	initType  bdx.MessageType
	proposal  InitParams
	supported ResponderParams
	peerInit  *bdx.TransferInit

	version      uint8
	mode         bdx.TransferControlFlags
	maxBlockSize uint16
	startOffset  uint64
	length       uint64
	designator   []byte
	peerMetadata []byte

	nextCounter uint32
	round       round
	eof         bool
	bytes       uint64
	skipped     uint64
	blocks      uint32

	err *AbortError
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{}
}

// StartTransfer proposes a transfer as initiator. A sender proposes with
// SendInit, a receiver with ReceiveInit.
func (s *Session) StartTransfer(role Role, p InitParams) (OutgoingMessage, error) {
	if s.state != StateIdle {
		return OutgoingMessage{}, s.stateError()
	}
	if p.Modes&driveModes == 0 {
		return OutgoingMessage{}, bdx.ErrNoTransferMode
	}
	if p.Modes.Has(bdx.Async) {
		return OutgoingMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedMode, bdx.Async)
	}

	init := &bdx.TransferInit{
		Version:            p.Version,
		TransferCtlOptions: p.Modes,
		StartOffset:        p.StartOffset,
		MaxLength:          p.MaxLength,
		MaxBlockSize:       p.MaxBlockSize,
		FileDesignator:     p.FileDesignator,
		Metadata:           p.Metadata,
	}
	if err := init.Validate(); err != nil {
		return OutgoingMessage{}, err
	}
	if p.MaxBlockSize == 0 {
		return OutgoingMessage{}, ErrBlockSizeNotProposed
	}

	s.initType = bdx.TypeSendInit
	if role == RoleReceiver {
		s.initType = bdx.TypeReceiveInit
	}
	s.role = role
	s.initiator = true
	s.proposal = p
	s.designator = p.FileDesignator
	s.setState(StateAwaitAccept)
	return OutgoingMessage{Type: s.initType, Message: init}, nil
}

// WaitForTransfer makes the session a responder. A RoleReceiver responder
// expects a SendInit, a RoleSender responder a ReceiveInit.
func (s *Session) WaitForTransfer(role Role, p ResponderParams) error {
	if s.state != StateIdle {
		return s.stateError()
	}
	if p.Modes&driveModes == 0 {
		return bdx.ErrNoTransferMode
	}
	if p.Version > bdx.MaxVersion {
		return bdx.ErrInvalidVersion
	}
	s.role = role
	s.supported = p
	s.setState(StateAwaitInit)
	return nil
}

// HandleMessage processes one message from the peer. A message that is
// malformed or not valid in the current state moves the session to Error
// and the returned error is an *AbortError.
func (s *Session) HandleMessage(t bdx.MessageType, payload []byte) (Event, error) {
	switch s.state {
	case StateIdle:
		return Event{}, ErrWrongState
	case StateDone, StateError:
		return Event{}, ErrSessionClosed
	}

	if t == bdx.TypeStatusReport {
		return s.handleStatus(payload)
	}

	switch s.state {
	case StateAwaitInit:
		return s.handleInit(t, payload)
	case StateAwaitAccept:
		return s.handleAccept(t, payload)
	case StateTransferring:
		return s.handleTransfer(t, payload)
	default:
		return Event{}, s.unexpected(t)
	}
}

func (s *Session) handleStatus(payload []byte) (Event, error) {
	var report bdx.StatusReport
	if err := report.Parse(payload); err != nil {
		return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
	}
	// Codes from another protocol mean nothing here.
	code := report.ProtocolCode
	if report.ProtocolID != bdx.ProtocolID {
		code = bdx.StatusUnknown
	}
	err := s.fail(ReasonPeerStatus, code,
		fmt.Errorf("%w: %s (protocol 0x%04X)", ErrPeerStatus, code, report.ProtocolID))
	return Event{Type: EventStatusReceived, Status: &report}, err
}

func (s *Session) handleInit(t bdx.MessageType, payload []byte) (Event, error) {
	want := bdx.TypeSendInit
	if s.role == RoleSender {
		want = bdx.TypeReceiveInit
	}
	if t != want {
		return Event{}, s.unexpected(t)
	}

	init := &bdx.TransferInit{}
	if err := init.Parse(payload); err != nil {
		return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
	}
	if err := init.Validate(); err != nil {
		return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusBadMessageContents, err)
	}

	s.initType = t
	s.peerInit = init
	s.designator = init.FileDesignator
	s.peerMetadata = init.Metadata
	s.startOffset = init.StartOffset
	s.length = init.MaxLength
	s.setState(StateNegotiating)
	return Event{Type: EventInitReceived, Init: init}, nil
}

// DefaultAcceptParams picks the values a responder accepts by default:
// sender-drive when both sides allow it, otherwise receiver-drive, the lower
// of both versions and block sizes, and the proposed range.
func (s *Session) DefaultAcceptParams() (AcceptParams, error) {
	if s.state != StateNegotiating {
		return AcceptParams{}, s.stateError()
	}
	init := s.peerInit
	common := init.TransferCtlOptions & s.supported.Modes & driveModes

	var mode bdx.TransferControlFlags
	switch {
	case common.Has(bdx.SenderDrive):
		mode = bdx.SenderDrive
	case common.Has(bdx.ReceiverDrive):
		mode = bdx.ReceiverDrive
	default:
		return AcceptParams{}, fmt.Errorf("%w: proposed %s, supported %s",
			ErrNoCommonMode, init.TransferCtlOptions, s.supported.Modes)
	}

	return AcceptParams{
		Version:      min(init.Version, s.supported.Version),
		Mode:         mode,
		MaxBlockSize: minBlockSize(init.MaxBlockSize, s.supported.MaxBlockSize),
		StartOffset:  init.StartOffset,
		Length:       init.MaxLength,
	}, nil
}

// AcceptTransfer answers the pending Init and starts the block loop. Invalid
// parameters are returned as errors and leave the session negotiating.
func (s *Session) AcceptTransfer(p AcceptParams) (OutgoingMessage, error) {
	if s.state != StateNegotiating {
		return OutgoingMessage{}, s.stateError()
	}
	init := s.peerInit

	if err := validateAcceptMode(p.Mode); err != nil {
		return OutgoingMessage{}, err
	}
	switch {
	case !p.Mode.IsSubsetOf(init.TransferCtlOptions):
		return OutgoingMessage{}, fmt.Errorf("%w: %s", ErrModeNotProposed, p.Mode)
	case !p.Mode.IsSubsetOf(s.supported.Modes & driveModes):
		return OutgoingMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedMode, p.Mode)
	case p.Version > init.Version || p.Version > s.supported.Version:
		return OutgoingMessage{}, ErrVersionNotProposed
	case p.MaxBlockSize == 0 || p.MaxBlockSize > init.MaxBlockSize:
		return OutgoingMessage{}, ErrBlockSizeNotProposed
	}

	var out OutgoingMessage
	if s.role == RoleReceiver {
		out = OutgoingMessage{Type: bdx.TypeSendAccept, Message: &bdx.SendAccept{
			Version:          p.Version,
			TransferCtlFlags: p.Mode,
			MaxBlockSize:     p.MaxBlockSize,
			Metadata:         p.Metadata,
		}}
	} else {
		switch {
		case init.MaxLength > 0 && p.Length == 0:
			return OutgoingMessage{}, fmt.Errorf("%w: proposed %d", ErrLengthRequired, init.MaxLength)
		case init.MaxLength > 0 && p.Length > init.MaxLength:
			return OutgoingMessage{}, fmt.Errorf("%w: %d > %d", ErrLengthExceeded, p.Length, init.MaxLength)
		case p.StartOffset > 0 && p.StartOffset < init.StartOffset:
			return OutgoingMessage{}, fmt.Errorf("%w: %d < %d", ErrStartNotProposed, p.StartOffset, init.StartOffset)
		}
		// A zero offset is read by the peer as its own proposal.
		s.startOffset = init.StartOffset
		if p.StartOffset > 0 {
			s.startOffset = p.StartOffset
		}
		s.length = p.Length
		out = OutgoingMessage{Type: bdx.TypeReceiveAccept, Message: &bdx.ReceiveAccept{
			Version:          p.Version,
			TransferCtlFlags: p.Mode,
			StartOffset:      p.StartOffset,
			Length:           p.Length,
			MaxBlockSize:     p.MaxBlockSize,
			Metadata:         p.Metadata,
		}}
	}

	s.enterTransferring(p.Version, p.Mode, p.MaxBlockSize)
	return out, nil
}

// RejectTransfer declines the pending Init with code.
func (s *Session) RejectTransfer(code bdx.StatusCode) (OutgoingMessage, error) {
	if s.state != StateNegotiating {
		return OutgoingMessage{}, s.stateError()
	}
	s.fail(ReasonCancelled, code, ErrTransferRejected)
	return statusMessage(code), nil
}

func (s *Session) handleAccept(t bdx.MessageType, payload []byte) (Event, error) {
	want := bdx.TypeSendAccept
	if s.initType == bdx.TypeReceiveInit {
		want = bdx.TypeReceiveAccept
	}
	if t != want {
		return Event{}, s.unexpected(t)
	}

	var (
		version      uint8
		mode         bdx.TransferControlFlags
		maxBlockSize uint16
	)
	startOffset, length := s.proposal.StartOffset, s.proposal.MaxLength

	if t == bdx.TypeSendAccept {
		var accept bdx.SendAccept
		if err := accept.Parse(payload); err != nil {
			return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
		}
		version, mode, maxBlockSize = accept.Version, accept.TransferCtlFlags, accept.MaxBlockSize
		s.peerMetadata = accept.Metadata
	} else {
		var accept bdx.ReceiveAccept
		if err := accept.Parse(payload); err != nil {
			return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
		}
		version, mode, maxBlockSize = accept.Version, accept.TransferCtlFlags, accept.MaxBlockSize
		if accept.StartOffset > 0 {
			if accept.StartOffset < s.proposal.StartOffset {
				return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusBadMessageContents,
					fmt.Errorf("%w: accepted %d, proposed %d", ErrStartNotProposed, accept.StartOffset, s.proposal.StartOffset))
			}
			startOffset = accept.StartOffset
		}
		length = accept.Length
		switch {
		case s.proposal.MaxLength > 0 && length == 0:
			return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusLengthRequired,
				fmt.Errorf("%w: proposed %d", ErrLengthRequired, s.proposal.MaxLength))
		case s.proposal.MaxLength > 0 && length > s.proposal.MaxLength:
			return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusLengthTooLarge,
				fmt.Errorf("%w: accepted length %d > proposed %d", ErrLengthExceeded, length, s.proposal.MaxLength))
		}
		s.peerMetadata = accept.Metadata
	}

	if err := validateAcceptMode(mode); err != nil {
		return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusBadMessageContents, err)
	}
	if !mode.IsSubsetOf(s.proposal.Modes) {
		return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusTransferMethodNotSupported,
			fmt.Errorf("%w: accepted %s, proposed %s", ErrModeNotProposed, mode, s.proposal.Modes))
	}
	if version > s.proposal.Version {
		return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusVersionNotSupported,
			fmt.Errorf("%w: accepted %d, proposed %d", ErrVersionNotProposed, version, s.proposal.Version))
	}
	if maxBlockSize == 0 || maxBlockSize > s.proposal.MaxBlockSize {
		return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusBadMessageContents,
			fmt.Errorf("%w: accepted %d, proposed %d", ErrBlockSizeNotProposed, maxBlockSize, s.proposal.MaxBlockSize))
	}

	s.startOffset = startOffset
	s.length = length
	s.enterTransferring(version, mode, maxBlockSize)
	return Event{Type: EventAcceptReceived}, nil
}

func validateAcceptMode(mode bdx.TransferControlFlags) error {
	switch {
	case !mode.Valid():
		return bdx.ErrUnknownTransferMode
	case mode.Count() == 0:
		return bdx.ErrNoTransferMode
	case mode.Count() > 1:
		return bdx.ErrMultipleTransferModes
	}
	return nil
}

func (s *Session) enterTransferring(version uint8, mode bdx.TransferControlFlags, maxBlockSize uint16) {
	s.version = version
	s.mode = mode
	s.maxBlockSize = maxBlockSize
	s.nextCounter = 1
	s.round = roundIdle
	s.setState(StateTransferring)
}

func (s *Session) handleTransfer(t bdx.MessageType, payload []byte) (Event, error) {
	switch t {
	case bdx.TypeBlock, bdx.TypeBlockEOF:
		if s.role != RoleReceiver {
			return Event{}, s.unexpected(t)
		}
		return s.handleBlock(t == bdx.TypeBlockEOF, payload)
	case bdx.TypeBlockQuery, bdx.TypeBlockQueryWithSkip:
		if s.role != RoleSender || s.mode != bdx.ReceiverDrive {
			return Event{}, s.unexpected(t)
		}
		return s.handleQuery(t, payload)
	case bdx.TypeBlockAck, bdx.TypeBlockAckEOF:
		if s.role != RoleSender {
			return Event{}, s.unexpected(t)
		}
		return s.handleAck(t, payload)
	default:
		return Event{}, s.unexpected(t)
	}
}

func (s *Session) handleBlock(eof bool, payload []byte) (Event, error) {
	t := bdx.TypeBlock
	if eof {
		t = bdx.TypeBlockEOF
	}
	want := roundIdle
	if s.mode == bdx.ReceiverDrive {
		want = roundQueried
	}
	if s.round != want {
		return Event{}, s.unexpected(t)
	}

	var block bdx.DataBlock
	if err := block.Parse(payload); err != nil {
		return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
	}
	if err := s.checkCounter(block.BlockCounter); err != nil {
		return Event{}, err
	}
	if code, err := s.checkBlockLength(len(block.Data), eof); err != nil {
		return Event{}, s.fail(ReasonProtocolViolation, code, err)
	}

	s.countBlock(len(block.Data), eof)
	return Event{
		Type:         EventBlockReceived,
		BlockCounter: block.BlockCounter,
		Data:         block.Data,
		EOF:          eof,
	}, nil
}

func (s *Session) handleQuery(t bdx.MessageType, payload []byte) (Event, error) {
	if s.round != roundIdle {
		return Event{}, s.unexpected(t)
	}

	ev := Event{Type: EventQueryReceived}
	if t == bdx.TypeBlockQuery {
		var query bdx.CounterMessage
		if err := query.Parse(payload); err != nil {
			return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
		}
		ev.BlockCounter = query.BlockCounter
	} else {
		var query bdx.BlockQueryWithSkip
		if err := query.Parse(payload); err != nil {
			return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
		}
		ev.Type = EventQueryWithSkipReceived
		ev.BlockCounter = query.BlockCounter
		ev.BytesToSkip = query.BytesToSkip
	}
	if err := s.checkCounter(ev.BlockCounter); err != nil {
		return Event{}, err
	}
	if err := s.addSkip(ev.BytesToSkip); err != nil {
		return Event{}, s.fail(ReasonProtocolViolation, bdx.StatusLengthTooLarge, err)
	}

	s.round = roundQueried
	return ev, nil
}

func (s *Session) handleAck(t bdx.MessageType, payload []byte) (Event, error) {
	if s.round != roundBlockPending {
		return Event{}, s.unexpected(t)
	}
	isEOF := t == bdx.TypeBlockAckEOF
	// BlockEOF must be answered with BlockAckEOF and nothing else; a plain
	// BlockAck only exists in sender-drive.
	if isEOF != s.eof || (!isEOF && s.mode != bdx.SenderDrive) {
		return Event{}, s.unexpected(t)
	}

	var ack bdx.CounterMessage
	if err := ack.Parse(payload); err != nil {
		return Event{}, s.fail(ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
	}
	if err := s.checkCounter(ack.BlockCounter); err != nil {
		return Event{}, err
	}

	if isEOF {
		s.setState(StateDone)
		return Event{Type: EventAckEOFReceived, BlockCounter: ack.BlockCounter}, nil
	}
	s.nextCounter++
	s.round = roundIdle
	return Event{Type: EventAckReceived, BlockCounter: ack.BlockCounter}, nil
}

// PrepareBlock builds the next Block, or BlockEOF when eof is set. In
// sender-drive the previous block must have been acknowledged; in
// receiver-drive the block must have been queried.
func (s *Session) PrepareBlock(data []byte, eof bool) (OutgoingMessage, error) {
	if s.state != StateTransferring || s.role != RoleSender {
		return OutgoingMessage{}, s.stateError()
	}
	want := roundIdle
	if s.mode == bdx.ReceiverDrive {
		want = roundQueried
	}
	if s.round != want {
		return OutgoingMessage{}, ErrWrongState
	}
	if code, err := s.checkBlockLength(len(data), eof); err != nil {
		return OutgoingMessage{}, s.fail(ReasonLocalResource, code, err)
	}

	t := bdx.TypeBlock
	if eof {
		t = bdx.TypeBlockEOF
	}
	msg := &bdx.DataBlock{BlockCounter: s.nextCounter, Data: data}
	s.countBlock(len(data), eof)
	return OutgoingMessage{Type: t, Message: msg}, nil
}

// PrepareBlockQuery asks for the next block in receiver-drive.
func (s *Session) PrepareBlockQuery() (OutgoingMessage, error) {
	if err := s.canQuery(); err != nil {
		return OutgoingMessage{}, err
	}
	s.round = roundQueried
	return OutgoingMessage{
		Type:    bdx.TypeBlockQuery,
		Message: &bdx.CounterMessage{BlockCounter: s.nextCounter},
	}, nil
}

// PrepareBlockQueryWithSkip asks for the next block after the sender skips
// bytesToSkip bytes of its source.
func (s *Session) PrepareBlockQueryWithSkip(bytesToSkip uint64) (OutgoingMessage, error) {
	if err := s.canQuery(); err != nil {
		return OutgoingMessage{}, err
	}
	if err := s.addSkip(bytesToSkip); err != nil {
		return OutgoingMessage{}, err
	}
	s.round = roundQueried
	return OutgoingMessage{
		Type:    bdx.TypeBlockQueryWithSkip,
		Message: &bdx.BlockQueryWithSkip{BlockCounter: s.nextCounter, BytesToSkip: bytesToSkip},
	}, nil
}

func (s *Session) canQuery() error {
	if s.state != StateTransferring || s.role != RoleReceiver || s.mode != bdx.ReceiverDrive {
		return s.stateError()
	}
	if s.round != roundIdle {
		return ErrWrongState
	}
	return nil
}

// PrepareBlockAck acknowledges the block just received. After BlockEOF it
// returns BlockAckEOF and the session is Done.
func (s *Session) PrepareBlockAck() (OutgoingMessage, error) {
	if s.state != StateTransferring || s.role != RoleReceiver {
		return OutgoingMessage{}, s.stateError()
	}
	if s.round != roundBlockPending {
		return OutgoingMessage{}, ErrWrongState
	}

	counter := s.nextCounter
	if s.eof {
		s.setState(StateDone)
		return OutgoingMessage{
			Type:    bdx.TypeBlockAckEOF,
			Message: &bdx.CounterMessage{BlockCounter: counter},
		}, nil
	}
	s.nextCounter++
	s.round = roundIdle
	return OutgoingMessage{
		Type:    bdx.TypeBlockAck,
		Message: &bdx.CounterMessage{BlockCounter: counter},
	}, nil
}

// AbortTransfer ends the session on behalf of the local application and
// returns the StatusReport to send.
func (s *Session) AbortTransfer(code bdx.StatusCode) (OutgoingMessage, error) {
	return s.FailTransfer(ReasonCancelled, code, ErrTransferCancelled)
}

// FailTransfer ends the session for a reason found outside the session, such
// as a transport timeout or a failing sink, and returns the StatusReport to
// send.
func (s *Session) FailTransfer(reason AbortReason, code bdx.StatusCode, cause error) (OutgoingMessage, error) {
	switch s.state {
	case StateIdle:
		return OutgoingMessage{}, ErrWrongState
	case StateDone, StateError:
		return OutgoingMessage{}, ErrSessionClosed
	}
	s.fail(reason, code, cause)
	return statusMessage(code), nil
}

// countBlock records a block sent or received and advances the round.
// Intermediate receiver-drive blocks need no ack, so the next counter is
// already due.
func (s *Session) countBlock(n int, eof bool) {
	s.bytes += uint64(n)
	s.blocks++
	s.eof = eof
	if s.mode == bdx.ReceiverDrive && !eof {
		s.nextCounter++
		s.round = roundIdle
		return
	}
	s.round = roundBlockPending
}

func (s *Session) checkCounter(got uint32) error {
	if got != s.nextCounter {
		return s.fail(ReasonProtocolViolation, bdx.StatusBadBlockCounter,
			fmt.Errorf("%w: got %d, want %d", ErrBadBlockCounter, got, s.nextCounter))
	}
	return nil
}

// checkBlockLength validates a block of n bytes against the negotiated block
// size and, when the transfer length is definite, the remaining length.
func (s *Session) checkBlockLength(n int, eof bool) (bdx.StatusCode, error) {
	if n > int(s.maxBlockSize) {
		return bdx.StatusLengthTooLarge, fmt.Errorf("%w: %d > %d", ErrBlockTooLarge, n, s.maxBlockSize)
	}
	if n == 0 && !eof {
		return bdx.StatusBadMessageContents, ErrEmptyBlock
	}
	if s.length == 0 {
		return 0, nil
	}
	pos := s.bytes + s.skipped + uint64(n)
	if pos > s.length {
		return bdx.StatusLengthTooLarge, fmt.Errorf("%w: %d > %d", ErrLengthExceeded, pos, s.length)
	}
	if eof && pos < s.length {
		return bdx.StatusLengthTooShort, fmt.Errorf("%w: %d < %d", ErrLengthShort, pos, s.length)
	}
	return 0, nil
}

func (s *Session) addSkip(n uint64) error {
	pos := s.bytes + s.skipped + n
	if pos < s.skipped || (s.length > 0 && pos > s.length) {
		return fmt.Errorf("%w: skip %d past length %d", ErrLengthExceeded, n, s.length)
	}
	s.skipped += n
	return nil
}

func (s *Session) fail(reason AbortReason, code bdx.StatusCode, err error) *AbortError {
	s.err = &AbortError{Reason: reason, Status: code, Err: err}
	s.setState(StateError)
	return s.err
}

func (s *Session) setState(next SessionState) {
	if !s.state.CanTransitionTo(next) {
		panic(fmt.Sprintf("transfer: invalid session transition %s -> %s", s.state, next))
	}
	s.state = next
}

func (s *Session) unexpected(t bdx.MessageType) error {
	return s.fail(ReasonProtocolViolation, bdx.StatusUnexpectedMessage,
		fmt.Errorf("%w: %s in state %s", ErrUnexpectedMessage, t, s.state))
}

func (s *Session) stateError() error {
	if s.state.IsTerminal() {
		return ErrSessionClosed
	}
	return fmt.Errorf("%w: %s", ErrWrongState, s.state)
}

func statusMessage(code bdx.StatusCode) OutgoingMessage {
	return OutgoingMessage{Type: bdx.TypeStatusReport, Message: bdx.NewStatusReport(code)}
}

func minBlockSize(proposed, limit uint16) uint16 {
	if limit == 0 {
		return proposed
	}
	return min(proposed, limit)
}

// State returns the current protocol state.
func (s *Session) State() SessionState { return s.state }

// Role returns the side of the transfer this session moves data for.
func (s *Session) Role() Role { return s.role }

// IsInitiator reports whether this session sent the Init.
func (s *Session) IsInitiator() bool { return s.initiator }

// ControlMode returns the negotiated transfer mode, or zero before Accept.
func (s *Session) ControlMode() bdx.TransferControlFlags { return s.mode }

// Version returns the negotiated protocol version.
func (s *Session) Version() uint8 { return s.version }

// MaxBlockSize returns the negotiated block size.
func (s *Session) MaxBlockSize() uint16 { return s.maxBlockSize }

// StartOffset returns the negotiated start offset.
func (s *Session) StartOffset() uint64 { return s.startOffset }

// Length returns the negotiated length, zero when indefinite.
func (s *Session) Length() uint64 { return s.length }

// NextBlockCounter returns the counter of the block in the current round.
func (s *Session) NextBlockCounter() uint32 { return s.nextCounter }

// BytesTransferred returns the data bytes sent or received so far.
func (s *Session) BytesTransferred() uint64 { return s.bytes }

// BytesSkipped returns the bytes skipped with BlockQueryWithSkip.
func (s *Session) BytesSkipped() uint64 { return s.skipped }

// BlocksTransferred returns the number of blocks sent or received.
func (s *Session) BlocksTransferred() uint32 { return s.blocks }

// FileDesignator returns the designator being transferred.
func (s *Session) FileDesignator() []byte { return s.designator }

// PeerMetadata returns the metadata the peer attached to its Init or Accept.
func (s *Session) PeerMetadata() []byte { return s.peerMetadata }

// Err returns the abort error once the session is in the Error state.
func (s *Session) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}
