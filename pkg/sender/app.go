package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/receiver"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/rescp17/bdx/pkg/transport"
	"github.com/rescp17/bdx/pkg/transport/ws"
	"golang.org/x/sync/errgroup"
)

// ErrTransferInProgress is returned when Run is called while another
// operation is running.
var ErrTransferInProgress = errors.New("a transfer is already in progress")

// Dialer opens a connection to a responder's BDX endpoint.
type Dialer func(ctx context.Context, url string) (transport.Conn, error)

// Operation is a send or fetch run by the app.
type Operation func(ctx context.Context) (*transfer.Result, error)

// Config wires an initiating App.
type Config struct {
	Runner *transfer.Runner
	// Retry reruns failed attempts; nil runs each transfer once.
	Retry *transfer.RetryScheduler
	// Dial defaults to a WebSocket dial.
	Dial Dialer
}

// SendOptions describes a file pushed to a responder.
type SendOptions struct {
	Target string
	Path   string
	// Designator defaults to the file's base name.
	Designator string
}

// FetchOptions describes a file pulled from a responder.
type FetchOptions struct {
	Target      string
	Designator  string
	Output      string
	StartOffset uint64
	MaxLength   uint64
	Skip        uint64
	// Resume continues from a checkpoint and keeps partial output.
	Resume bool
	// SHA256 is checked against the finished file when set.
	SHA256 string
}

// App is the main application logic controller for the initiating side.
type App struct {
	runner     *transfer.Runner
	retry      *transfer.RetryScheduler
	dial       Dialer
	discoverer discovery.Adapter
	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewApp creates a new sender application instance.
func NewApp(cfg Config, adapter discovery.Adapter) *App {
	if adapter == nil {
		adapter = &discovery.MDNSAdapter{}
	}
	dial := cfg.Dial
	if dial == nil {
		dial = func(ctx context.Context, url string) (transport.Conn, error) {
			return ws.Dial(ctx, url)
		}
	}
	return &App{
		runner:     cfg.Runner,
		retry:      cfg.Retry,
		dial:       dial,
		discoverer: adapter,
		uiMessages: make(chan tea.Msg, 10),
		appEvents:  make(chan appevents.AppEvent),
		logger:     slog.Default().With("component", "sender"),
	}
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run executes op while listening for app events; a CancelTransferEvent
// cancels it. The outcome is reported with a TransferDoneMsg.
func (a *App) Run(ctx context.Context, op Operation) (*transfer.Result, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, ErrTransferInProgress
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var res *transfer.Result
	g, gctx := errgroup.WithContext(opCtx)
	g.Go(func() error {
		var err error
		res, err = op(gctx)
		// The event loop below only ends with the group's context.
		cancel()
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case event := <-a.appEvents:
				switch event.(type) {
				case appevents.CancelTransferEvent:
					a.logger.Info("Transfer cancelled by user")
					cancel()
				default:
					a.logger.Warn("Received unhandled app event", "event", event)
				}
			}
		}
	})
	err := g.Wait()

	select {
	case a.uiMessages <- appevents.TransferDoneMsg{Result: res, Err: err}:
	case <-ctx.Done():
	}
	return res, err
}

// Discover browses for responders and reports every change to the UI until
// ctx is done.
func (a *App) Discover(ctx context.Context) error {
	results := a.discoverer.Discover(ctx, discovery.ServiceName(discovery.DefaultServerType, discovery.DefaultDomain))
	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-results:
			if !ok {
				return nil
			}
			if result.Error != nil {
				a.sendAndLogError("Discovery failed", result.Error)
				return result.Error
			}
			a.send(appevents.FoundServicesMsg{Services: result.Services})
		}
	}
}

// ResolveTarget turns a target into the URL of a BDX endpoint. URLs are
// used as given; anything else names an instance found over mDNS.
func (a *App) ResolveTarget(ctx context.Context, target string) (string, error) {
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		return target, nil
	}
	if target == "" {
		return "", errors.New("no target given")
	}

	a.send(appevents.StatusUpdateMsg{Message: fmt.Sprintf("Looking up %s...", target)})
	svc, err := discovery.Lookup(ctx, a.discoverer, target)
	if err != nil {
		return "", err
	}
	if v := svc.Version(); v > int(a.runner.Config().Version) {
		a.logger.Info("Responder announces a newer version", "target", target, "version", v)
	}
	return svc.URL(), nil
}

// SendFile pushes a local file to a responder with a SendInit.
func (a *App) SendFile(ctx context.Context, opts SendOptions) (*transfer.Result, error) {
	url, err := a.ResolveTarget(ctx, opts.Target)
	if err != nil {
		return nil, err
	}
	designator := opts.Designator
	if designator == "" {
		designator = filepath.Base(opts.Path)
	}

	meta, err := fileInfo.Describe(opts.Path)
	if err != nil {
		return nil, err
	}
	meta.Name = designator
	encoded, err := meta.Encode()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	var res *transfer.Result
	err = a.attempt(ctx, id, func(ctx context.Context) error {
		return a.withConn(ctx, url, func(conn transport.Conn) error {
			source, err := receiver.OpenFileSource(opts.Path)
			if err != nil {
				return err
			}
			defer source.Close()

			a.send(appevents.StatusUpdateMsg{Message: fmt.Sprintf("Sending %s to %s", designator, url)})
			res, err = a.runner.Send(ctx, conn, transfer.SendRequest{
				ID:             id,
				FileDesignator: designator,
				Source:         source,
				Metadata:       encoded,
				Progress:       a.progress,
			})
			return err
		})
	})
	return res, err
}

// FetchFile pulls a file from a responder with a ReceiveInit into
// opts.Output.
func (a *App) FetchFile(ctx context.Context, opts FetchOptions) (*transfer.Result, error) {
	url, err := a.ResolveTarget(ctx, opts.Target)
	if err != nil {
		return nil, err
	}
	output := opts.Output
	if output == "" {
		output = filepath.Base(filepath.FromSlash(opts.Designator))
	}

	expected := opts.SHA256
	if opts.Skip > 0 || opts.MaxLength > 0 {
		// A skipped region or truncated fetch never matches the whole file.
		expected = ""
	}

	id := uuid.New().String()
	var res *transfer.Result
	err = a.attempt(ctx, id, func(ctx context.Context) error {
		return a.withConn(ctx, url, func(conn transport.Conn) error {
			// Fetch commits or aborts the sink.
			sink, err := receiver.NewFileSink(output, receiver.FileSinkOptions{
				ExpectedSHA256: expected,
				Resume:         opts.Resume || opts.StartOffset > 0,
				KeepPartial:    opts.Resume,
			})
			if err != nil {
				return err
			}

			a.send(appevents.StatusUpdateMsg{Message: fmt.Sprintf("Fetching %s from %s", opts.Designator, url)})
			res, err = a.runner.Fetch(ctx, conn, transfer.FetchRequest{
				ID:             id,
				FileDesignator: opts.Designator,
				Sink:           sink,
				StartOffset:    opts.StartOffset,
				MaxLength:      opts.MaxLength,
				Skip:           opts.Skip,
				Resume:         opts.Resume,
				Progress:       a.progress,
			})
			return err
		})
	})
	return res, err
}

// attempt runs fn once, or under the retry scheduler when one is set.
func (a *App) attempt(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	if a.retry == nil {
		return fn(ctx)
	}
	return a.retry.Run(ctx, id, func(ctx context.Context, retryCount int) error {
		if retryCount > 0 {
			a.send(appevents.RetryMsg{Attempt: retryCount})
		}
		return fn(ctx)
	})
}

func (a *App) withConn(ctx context.Context, url string, fn func(conn transport.Conn) error) error {
	conn, err := a.dial(ctx, url)
	if err != nil {
		// Dial failures are transport failures, so they are retried.
		return &transfer.AbortError{Reason: transfer.ReasonTransport, Err: err}
	}
	defer conn.Close()
	return fn(conn)
}

func (a *App) progress(p transfer.Progress) {
	a.send(appevents.ProgressMsg{Progress: p})
}

// send delivers msg to the UI without blocking the transfer when nobody
// listens.
func (a *App) send(msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	default:
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(baseMessage string, err error) {
	a.logger.Error(baseMessage, "error", err)
	a.send(appevents.ErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
