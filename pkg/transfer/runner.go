package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rescp17/bdx/pkg/bdx"
	"github.com/rescp17/bdx/pkg/concurrency"
	"github.com/rescp17/bdx/pkg/transport"
)

const tracerName = "github.com/rescp17/bdx/pkg/transfer"

const (
	// checkpointInterval is the number of received blocks between saves
	checkpointInterval = 64
	// notifyTimeout bounds the StatusReport sent when a transfer aborts
	notifyTimeout = time.Second
)

// Progress is reported after every block.
type Progress struct {
	ID             string
	FileDesignator string
	Role           Role
	Bytes          uint64 // data bytes moved by this transfer
	Offset         uint64 // absolute position reached in the file
	Total          uint64 // negotiated length, zero when indefinite
	Blocks         uint32
}

// ProgressFunc receives progress updates on the transfer goroutine.
type ProgressFunc func(Progress)

// Result summarizes a finished transfer, successful or not.
type Result struct {
	ID             string
	FileDesignator string
	Role           Role
	Mode           bdx.TransferControlFlags
	StartOffset    uint64
	Length         uint64
	Bytes          uint64
	Skipped        uint64
	Blocks         uint32
	PeerMetadata   []byte
	Duration       time.Duration
}

// SendRequest pushes a source to a peer with a SendInit.
type SendRequest struct {
	ID             string // generated when empty
	FileDesignator string
	Source         BlockSource
	Metadata       []byte
	Progress       ProgressFunc
}

// FetchRequest pulls a file from a peer with a ReceiveInit.
type FetchRequest struct {
	ID             string // generated when empty
	FileDesignator string
	Sink           BlockSink
	StartOffset    uint64
	MaxLength      uint64
	// Skip is requested with the first BlockQueryWithSkip, so it forces
	// receiver-drive.
	Skip     uint64
	Metadata []byte
	// Resume starts from a saved checkpoint when StartOffset is zero and
	// saves one when the transfer fails.
	Resume   bool
	Progress ProgressFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics records transfers in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer sets the tracer; the default comes from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithRegistry tracks transfers in registry.
func WithRegistry(registry *StatusRegistry) Option {
	return func(r *Runner) { r.registry = registry }
}

// WithCheckpoints enables resumable fetches.
func WithCheckpoints(store *CheckpointStore) Option {
	return func(r *Runner) { r.checkpoints = store }
}

// WithGuard limits how many transfers Serve runs at once. Transfers over the
// limit are rejected with ResponderBusy.
func WithGuard(guard *concurrency.ConcurrencyGuard) Option {
	return func(r *Runner) { r.guard = guard }
}

// Runner moves files over a transport.Conn by driving a Session: it sends
// what the session prepares, feeds it what arrives and connects the block
// loop to sources and sinks. One Runner serves any number of transfers
// concurrently, one per Conn.
type Runner struct {
	config      *TransferConfig
	modes       bdx.TransferControlFlags
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	registry    *StatusRegistry
	checkpoints *CheckpointStore
	guard       *concurrency.ConcurrencyGuard
}

// NewRunner validates config and applies opts. A nil config uses
// DefaultTransferConfig.
func NewRunner(config *TransferConfig, opts ...Option) (*Runner, error) {
	if config == nil {
		config = DefaultTransferConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	modes, err := config.TransferModes()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		config: config,
		modes:  modes,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the configuration the runner was built with.
func (r *Runner) Config() *TransferConfig {
	return r.config
}

// run is the state of one transfer owned by a Runner.
type run struct {
	id         string
	role       Role
	designator string
	peer       string
	conn       transport.Conn
	sess       *Session
	progress   ProgressFunc
	checkpoint bool
	committed  uint64 // end of the data the sink has accepted
	span       trace.Span
	started    time.Time
	logger     *slog.Logger
}

// Send offers req.Source to the peer and sends it in the mode the peer
// accepts. The source is not closed.
func (r *Runner) Send(ctx context.Context, conn transport.Conn, req SendRequest) (res *Result, err error) {
	if req.Source == nil {
		return nil, errors.New("send request has no source")
	}
	ctx, cancel := r.transferContext(ctx)
	defer cancel()

	ctx, t := r.begin(ctx, "send", conn, NewSession(), req.ID, RoleSender, req.FileDesignator)
	t.progress = req.Progress
	defer func() { res = r.finish(t, err) }()

	length := req.Source.Size()
	out, err := t.sess.StartTransfer(RoleSender, InitParams{
		Version:        r.config.Version,
		Modes:          r.modes,
		MaxLength:      length,
		MaxBlockSize:   r.config.GetBlockSizeForLength(length),
		FileDesignator: []byte(req.FileDesignator),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if err = r.send(ctx, t, out); err != nil {
		return nil, err
	}
	if _, err = r.receive(ctx, t); err != nil {
		return nil, err
	}
	r.activate(t)

	var src io.Reader = req.Source
	if l := t.sess.Length(); l > 0 {
		src = io.LimitReader(src, int64(l))
	}
	chunker, err := NewChunker(src, int(t.sess.MaxBlockSize()))
	if err != nil {
		return nil, err
	}
	err = r.sendBlocks(ctx, t, chunker)
	return nil, err
}

// Fetch asks the peer for req.FileDesignator and writes what arrives to
// req.Sink. The sink is committed before BlockEOF is acknowledged and
// aborted when the transfer fails.
func (r *Runner) Fetch(ctx context.Context, conn transport.Conn, req FetchRequest) (res *Result, err error) {
	if req.Sink == nil {
		return nil, errors.New("fetch request has no sink")
	}
	modes := r.modes
	if req.Skip > 0 {
		if !modes.Has(bdx.ReceiverDrive) {
			return nil, fmt.Errorf("%w: skipping needs receiver-drive", ErrUnsupportedMode)
		}
		modes = bdx.ReceiverDrive
	}
	ctx, cancel := r.transferContext(ctx)
	defer cancel()

	ctx, t := r.begin(ctx, "fetch", conn, NewSession(), req.ID, RoleReceiver, req.FileDesignator)
	t.progress = req.Progress
	t.checkpoint = req.Resume && r.checkpoints != nil
	defer func() { res = r.finish(t, err) }()
	defer func() {
		if err == nil {
			return
		}
		if aerr := req.Sink.Abort(err); aerr != nil {
			t.logger.Warn("Failed to abort sink", "error", aerr)
		}
	}()

	startOffset := req.StartOffset
	if t.checkpoint && startOffset == 0 {
		cp, lerr := r.checkpoints.Load(t.peer, req.FileDesignator)
		switch {
		case lerr == nil:
			startOffset = cp.BytesCommitted
			t.logger.Info("Resuming transfer from checkpoint", "offset", startOffset)
		case !errors.Is(lerr, ErrNoCheckpoint):
			t.logger.Warn("Failed to load checkpoint", "error", lerr)
		}
	}

	out, err := t.sess.StartTransfer(RoleReceiver, InitParams{
		Version:        r.config.Version,
		Modes:          modes,
		StartOffset:    startOffset,
		MaxLength:      req.MaxLength,
		MaxBlockSize:   r.config.GetBlockSizeForLength(req.MaxLength),
		FileDesignator: []byte(req.FileDesignator),
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if err = r.send(ctx, t, out); err != nil {
		return nil, err
	}
	if _, err = r.receive(ctx, t); err != nil {
		return nil, err
	}
	r.activate(t)

	err = r.receiveBlocks(ctx, t, req.Sink, req.Skip)
	if t.checkpoint {
		if err == nil {
			r.dropCheckpoint(t)
		} else {
			r.saveCheckpoint(t)
		}
	}
	return nil, err
}

// Serve answers the Init a peer sends first on conn. A SendInit is received
// into a sink and a ReceiveInit is served from a source, both opened through
// responder.
func (r *Runner) Serve(ctx context.Context, conn transport.Conn, responder Responder) (res *Result, err error) {
	ctx, cancel := r.transferContext(ctx)
	defer cancel()

	accepted := false
	defer func() {
		if err != nil && !accepted {
			r.logger.Warn("Connection closed before a transfer started", "peer", peerAddr(conn), "error", err)
			r.metrics.transferRefused(err)
		}
	}()

	rctx, rcancel := r.messageContext(ctx)
	frame, err := conn.Receive(rctx)
	rcancel()
	if err != nil {
		return nil, &AbortError{Reason: transportReason(ctx, err), Status: bdx.StatusTransferFailedUnknownError,
			Err: fmt.Errorf("waiting for init: %w", err)}
	}

	typ, payload, err := bdx.DecodeFrame(frame)
	if err != nil {
		return nil, r.refuse(ctx, conn, ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
	}
	var role Role
	switch typ {
	case bdx.TypeSendInit:
		role = RoleReceiver
	case bdx.TypeReceiveInit:
		role = RoleSender
	default:
		return nil, r.refuse(ctx, conn, ReasonProtocolViolation, bdx.StatusUnexpectedMessage,
			fmt.Errorf("%w: %s before init", ErrUnexpectedMessage, typ))
	}

	sess := NewSession()
	if err := sess.WaitForTransfer(role, ResponderParams{
		Version:      r.config.Version,
		Modes:        r.modes,
		MaxBlockSize: r.config.MaxBlockSize,
	}); err != nil {
		return nil, err
	}
	ev, err := sess.HandleMessage(typ, payload)
	if err != nil {
		if ae, ok := AsAbortError(err); ok {
			r.notifyConn(ctx, conn, statusMessage(ae.Status))
		}
		return nil, err
	}

	init := ev.Init
	accepted = true
	ctx, t := r.begin(ctx, "serve", conn, sess, "", role, string(init.FileDesignator))
	defer func() { res = r.finish(t, err) }()

	in := &IncomingTransfer{
		ID:             t.id,
		Role:           role,
		Peer:           t.peer,
		FileDesignator: t.designator,
		StartOffset:    init.StartOffset,
		MaxLength:      init.MaxLength,
		Metadata:       init.Metadata,
	}

	if r.guard != nil {
		release, gerr := r.guard.TryAcquire()
		if gerr != nil {
			return nil, r.reject(ctx, t, fmt.Errorf("%w: %w", ErrResponderBusy, gerr))
		}
		defer release()
	}

	if role == RoleReceiver {
		return nil, r.serveReceive(ctx, t, responder, in)
	}
	return nil, r.serveSend(ctx, t, responder, in)
}

func (r *Runner) serveReceive(ctx context.Context, t *run, responder Responder, in *IncomingTransfer) (err error) {
	sink, err := responder.OpenSink(ctx, in)
	if err != nil {
		return r.reject(ctx, t, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if aerr := sink.Abort(err); aerr != nil {
			t.logger.Warn("Failed to abort sink", "error", aerr)
		}
	}()

	params, err := t.sess.DefaultAcceptParams()
	if err != nil {
		return r.reject(ctx, t, err)
	}
	out, err := t.sess.AcceptTransfer(params)
	if err != nil {
		return r.reject(ctx, t, err)
	}
	if err := r.send(ctx, t, out); err != nil {
		return err
	}
	r.activate(t)
	return r.receiveBlocks(ctx, t, sink, 0)
}

func (r *Runner) serveSend(ctx context.Context, t *run, responder Responder, in *IncomingTransfer) error {
	src, err := responder.OpenSource(ctx, in)
	if err != nil {
		return r.reject(ctx, t, err)
	}
	defer src.Close()

	params, err := t.sess.DefaultAcceptParams()
	if err != nil {
		return r.reject(ctx, t, err)
	}
	if size := src.Size(); size > 0 {
		if in.StartOffset > size {
			return r.reject(ctx, t, fmt.Errorf("%w: %d > %d", ErrStartOffsetUnsupported, in.StartOffset, size))
		}
		if avail := size - in.StartOffset; params.Length == 0 || params.Length > avail {
			params.Length = avail
		}
	}
	out, err := t.sess.AcceptTransfer(params)
	if err != nil {
		return r.reject(ctx, t, err)
	}

	var reader io.Reader = src
	if start := t.sess.StartOffset(); start > 0 {
		if err := discard(src, start); err != nil {
			return r.reject(ctx, t, err)
		}
	}
	if l := t.sess.Length(); l > 0 {
		reader = io.LimitReader(reader, int64(l))
	}
	chunker, err := NewChunker(reader, int(t.sess.MaxBlockSize()))
	if err != nil {
		return r.reject(ctx, t, err)
	}

	if err := r.send(ctx, t, out); err != nil {
		return err
	}
	r.activate(t)
	return r.sendBlocks(ctx, t, chunker)
}

// sendBlocks runs the sender side of the block loop until BlockEOF is
// acknowledged.
func (r *Runner) sendBlocks(ctx context.Context, t *run, chunker *Chunker) error {
	receiverDrive := t.sess.ControlMode() == bdx.ReceiverDrive

	for t.sess.State() == StateTransferring {
		if receiverDrive {
			ev, err := r.receive(ctx, t)
			if err != nil {
				return err
			}
			switch ev.Type {
			case EventAckEOFReceived:
				continue
			case EventQueryWithSkipReceived:
				if err := chunker.Skip(ev.BytesToSkip); err != nil {
					return r.fail(ctx, t, ReasonLocalResource, bdx.StatusTransferFailedUnknownError, err)
				}
			}
		}

		chunk, err := chunker.Next()
		if err != nil {
			return r.fail(ctx, t, ReasonLocalResource, bdx.StatusTransferFailedUnknownError, err)
		}
		out, err := t.sess.PrepareBlock(chunk.Data, chunk.IsLast)
		if err != nil {
			return r.abort(ctx, t, err)
		}
		if err := r.send(ctx, t, out); err != nil {
			return err
		}
		r.blockDone(t, len(chunk.Data))

		if !receiverDrive {
			if _, err := r.receive(ctx, t); err != nil {
				return err
			}
		}
	}
	return t.sess.Err()
}

// receiveBlocks runs the receiver side of the block loop until BlockEOF is
// acknowledged. A nonzero skip goes out with the first query.
func (r *Runner) receiveBlocks(ctx context.Context, t *run, sink BlockSink, skip uint64) error {
	receiverDrive := t.sess.ControlMode() == bdx.ReceiverDrive

	for t.sess.State() == StateTransferring {
		if receiverDrive {
			var out OutgoingMessage
			var err error
			if skip > 0 {
				out, err = t.sess.PrepareBlockQueryWithSkip(skip)
				skip = 0
			} else {
				out, err = t.sess.PrepareBlockQuery()
			}
			if err != nil {
				return r.abort(ctx, t, err)
			}
			if err := r.send(ctx, t, out); err != nil {
				return err
			}
		}

		ev, err := r.receive(ctx, t)
		if err != nil {
			return err
		}
		offset := t.position() - uint64(len(ev.Data))
		if err := sink.WriteBlock(offset, ev.Data); err != nil {
			return r.fail(ctx, t, ReasonLocalResource, bdx.StatusTransferFailedUnknownError,
				fmt.Errorf("write block at %d: %w", offset, err))
		}
		t.committed = offset + uint64(len(ev.Data))
		r.blockDone(t, len(ev.Data))

		if ev.EOF {
			if err := sink.Commit(ctx); err != nil {
				return r.fail(ctx, t, ReasonLocalResource, bdx.StatusTransferFailedUnknownError,
					fmt.Errorf("commit: %w", err))
			}
		} else if t.checkpoint && t.sess.BlocksTransferred()%checkpointInterval == 0 {
			r.saveCheckpoint(t)
		}

		if !receiverDrive || ev.EOF {
			out, err := t.sess.PrepareBlockAck()
			if err != nil {
				return r.abort(ctx, t, err)
			}
			if err := r.send(ctx, t, out); err != nil {
				return err
			}
		}
	}
	return t.sess.Err()
}

// receive waits for the next frame and hands it to the session. Every
// failure ends the session; the peer is told why when it can be.
func (r *Runner) receive(ctx context.Context, t *run) (Event, error) {
	rctx, cancel := r.messageContext(ctx)
	frame, err := t.conn.Receive(rctx)
	cancel()
	if err != nil {
		return Event{}, r.fail(ctx, t, transportReason(ctx, err), bdx.StatusTransferFailedUnknownError,
			fmt.Errorf("receive: %w", err))
	}

	typ, payload, err := bdx.DecodeFrame(frame)
	if err != nil {
		return Event{}, r.fail(ctx, t, ReasonMalformedMessage, bdx.StatusBadMessageContents, err)
	}
	ev, err := t.sess.HandleMessage(typ, payload)
	if err != nil {
		return ev, r.abort(ctx, t, err)
	}
	return ev, nil
}

func (r *Runner) send(ctx context.Context, t *run, out OutgoingMessage) error {
	frame, err := out.Encode()
	if err != nil {
		return r.fail(ctx, t, ReasonLocalResource, bdx.StatusTransferFailedUnknownError,
			fmt.Errorf("encode %s: %w", out.Type, err))
	}
	sctx, cancel := r.messageContext(ctx)
	err = t.conn.Send(sctx, frame)
	cancel()
	if err != nil {
		return r.fail(ctx, t, transportReason(ctx, err), bdx.StatusTransferFailedUnknownError,
			fmt.Errorf("send %s: %w", out.Type, err))
	}
	return nil
}

// fail ends the session for a failure found outside it.
func (r *Runner) fail(ctx context.Context, t *run, reason AbortReason, code bdx.StatusCode, cause error) error {
	out, err := t.sess.FailTransfer(reason, code, cause)
	if err != nil {
		// Not started or already finished: nobody is waiting for a report.
		return &AbortError{Reason: reason, Status: code, Err: cause}
	}
	if reason != ReasonTransport {
		r.notify(ctx, t, out)
	}
	return t.sess.Err()
}

// abort reports a session abort to the peer, unless the peer caused it with
// a StatusReport of its own. A local error the session refused without
// aborting still ends the transfer.
func (r *Runner) abort(ctx context.Context, t *run, err error) error {
	ae, ok := AsAbortError(err)
	if !ok {
		return r.fail(ctx, t, ReasonLocalResource, bdx.StatusTransferFailedUnknownError, err)
	}
	if ae.Reason != ReasonPeerStatus {
		r.notify(ctx, t, statusMessage(ae.Status))
	}
	return err
}

// reject declines the pending Init with the status matching cause.
func (r *Runner) reject(ctx context.Context, t *run, cause error) error {
	out, err := t.sess.RejectTransfer(rejectStatus(cause))
	if err != nil {
		return r.fail(ctx, t, ReasonLocalResource, rejectStatus(cause), cause)
	}
	r.notify(ctx, t, out)
	return fmt.Errorf("%w: %w", t.sess.Err(), cause)
}

// refuse answers a first frame that is not an Init.
func (r *Runner) refuse(ctx context.Context, conn transport.Conn, reason AbortReason, code bdx.StatusCode, cause error) error {
	r.notifyConn(ctx, conn, statusMessage(code))
	return &AbortError{Reason: reason, Status: code, Err: cause}
}

func (r *Runner) notify(ctx context.Context, t *run, out OutgoingMessage) {
	t.span.AddEvent("status_report_sent")
	r.notifyConn(ctx, t.conn, out)
}

// notifyConn sends a StatusReport on a best-effort basis; ctx may already be
// done when a transfer aborts.
func (r *Runner) notifyConn(ctx context.Context, conn transport.Conn, out OutgoingMessage) {
	frame, err := out.Encode()
	if err != nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := conn.Send(nctx, frame); err != nil {
		r.logger.Debug("Failed to send status report", "error", err)
	}
}

func (r *Runner) begin(ctx context.Context, op string, conn transport.Conn, sess *Session, id string, role Role, designator string) (context.Context, *run) {
	if id == "" {
		id = uuid.NewString()
	}
	peer := peerAddr(conn)

	ctx, span := r.tracer.Start(ctx, "bdx."+op, trace.WithAttributes(
		attribute.String("bdx.transfer_id", id),
		attribute.String("bdx.role", role.String()),
		attribute.String("bdx.file_designator", designator),
		attribute.String("net.peer.name", peer),
	))

	t := &run{
		id:         id,
		role:       role,
		designator: designator,
		peer:       peer,
		conn:       conn,
		sess:       sess,
		span:       span,
		started:    time.Now(),
		logger: r.logger.With("transfer_id", id, "role", role.String(),
			"designator", designator, "peer", peer),
	}

	if r.registry != nil {
		if err := r.registry.Register(TransferStatus{
			ID:             id,
			FileDesignator: designator,
			Role:           role.String(),
			Peer:           peer,
		}); err != nil {
			t.logger.Warn("Failed to register transfer", "error", err)
		}
	}
	r.metrics.transferStarted(role)
	t.logger.Info("Transfer started", "operation", op)
	return ctx, t
}

func (r *Runner) activate(t *run) {
	s := t.sess
	t.committed = s.StartOffset()
	t.logger.Info("Transfer accepted",
		"mode", s.ControlMode().String(),
		"version", s.Version(),
		"block_size", s.MaxBlockSize(),
		"start_offset", s.StartOffset(),
		"length", s.Length())
	t.span.AddEvent("accepted", trace.WithAttributes(
		attribute.String("bdx.mode", s.ControlMode().String()),
		attribute.Int("bdx.block_size", int(s.MaxBlockSize())),
		attribute.Int64("bdx.start_offset", int64(s.StartOffset())),
		attribute.Int64("bdx.length", int64(s.Length())),
	))
	if r.registry != nil {
		if err := r.registry.Activate(t.id, s.ControlMode().String(), s.Length()); err != nil {
			t.logger.Warn("Failed to activate transfer status", "error", err)
		}
	}
}

func (r *Runner) blockDone(t *run, n int) {
	s := t.sess
	r.metrics.blockTransferred(t.role, n)
	if r.registry != nil {
		_ = r.registry.UpdateProgress(t.id, s.BytesTransferred(), s.BlocksTransferred())
	}
	if t.progress != nil {
		t.progress(Progress{
			ID:             t.id,
			FileDesignator: t.designator,
			Role:           t.role,
			Bytes:          s.BytesTransferred(),
			Offset:         t.position(),
			Total:          s.Length(),
			Blocks:         s.BlocksTransferred(),
		})
	}
}

func (r *Runner) finish(t *run, err error) *Result {
	s := t.sess
	elapsed := time.Since(t.started)
	res := &Result{
		ID:             t.id,
		FileDesignator: t.designator,
		Role:           t.role,
		Mode:           s.ControlMode(),
		StartOffset:    s.StartOffset(),
		Length:         s.Length(),
		Bytes:          s.BytesTransferred(),
		Skipped:        s.BytesSkipped(),
		Blocks:         s.BlocksTransferred(),
		PeerMetadata:   s.PeerMetadata(),
		Duration:       elapsed,
	}

	r.metrics.transferFinished(t.role, err, elapsed)
	t.span.SetAttributes(
		attribute.Int64("bdx.bytes", int64(res.Bytes)),
		attribute.Int64("bdx.blocks", int64(res.Blocks)),
	)

	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
		t.logger.Error("Transfer failed", "error", err, "bytes", res.Bytes, "duration", elapsed)
		if r.registry != nil {
			if isCancellation(err) {
				_ = r.registry.Cancel(t.id)
			} else {
				_ = r.registry.Fail(t.id, err)
			}
		}
	} else {
		t.span.SetStatus(codes.Ok, "")
		t.logger.Info("Transfer completed", "bytes", res.Bytes, "blocks", res.Blocks, "duration", elapsed)
		if r.registry != nil {
			_ = r.registry.Complete(t.id)
		}
	}
	t.span.End()
	return res
}

func (r *Runner) saveCheckpoint(t *run) {
	if err := r.checkpoints.Save(Checkpoint{
		Peer:           t.peer,
		FileDesignator: t.designator,
		BytesCommitted: t.committed,
		Length:         t.sess.Length(),
	}); err != nil {
		t.logger.Warn("Failed to save checkpoint", "error", err)
	}
}

func (r *Runner) dropCheckpoint(t *run) {
	if err := r.checkpoints.Delete(t.peer, t.designator); err != nil {
		t.logger.Warn("Failed to delete checkpoint", "error", err)
	}
}

func (r *Runner) transferContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.TransferTimeout > 0 {
		return context.WithTimeout(ctx, r.config.TransferTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Runner) messageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.MessageTimeout > 0 {
		return context.WithTimeout(ctx, r.config.MessageTimeout)
	}
	return context.WithCancel(ctx)
}

// position is the absolute file offset the next data byte belongs to.
func (t *run) position() uint64 {
	return t.sess.StartOffset() + t.sess.BytesSkipped() + t.sess.BytesTransferred()
}

// transportReason classifies a Conn error against the transfer context.
func transportReason(ctx context.Context, err error) AbortReason {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ReasonCancelled
	case ctx.Err() != nil, errors.Is(err, transport.ErrTimeout):
		return ReasonTimeout
	default:
		return ReasonTransport
	}
}

func isCancellation(err error) bool {
	if ae, ok := AsAbortError(err); ok {
		return ae.Reason == ReasonCancelled
	}
	return errors.Is(err, context.Canceled)
}

func peerAddr(conn transport.Conn) string {
	if c, ok := conn.(interface{ RemoteAddr() net.Addr }); ok {
		if addr := c.RemoteAddr(); addr != nil {
			return addr.String()
		}
	}
	return ""
}
