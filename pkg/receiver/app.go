package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	dnssdlog "github.com/brutella/dnssd/log"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rescp17/bdx/api"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/transfer"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	// snapshotInterval paces the transfer snapshots sent to the UI
	snapshotInterval = 500 * time.Millisecond
)

// Config wires a serving App.
type Config struct {
	Port int
	// Name is the announced instance name; hostname plus a random suffix
	// when empty.
	Name     string
	Store    *Store
	Runner   *transfer.Runner
	Registry *transfer.StatusRegistry
	Gatherer prometheus.Gatherer
	// Announce advertises the service over mDNS.
	Announce bool
}

// App is the main application logic controller for the receiver: it serves
// BDX transfers over HTTP and announces itself on the local network.
type App struct {
	cfg        Config
	registrar  discovery.Adapter
	api        *api.API
	uiMessages chan tea.Msg
	logger     *slog.Logger
}

// NewApp creates a new receiver application instance.
func NewApp(cfg Config, registrar discovery.Adapter) *App {
	if registrar == nil {
		registrar = &discovery.MDNSAdapter{}
	}

	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)

	return &App{
		cfg:        cfg,
		registrar:  registrar,
		api:        api.NewAPI(cfg.Runner, cfg.Store, cfg.Registry, cfg.Gatherer),
		uiMessages: make(chan tea.Msg, 10),
		logger:     slog.Default().With("component", "receiver"),
	}
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// Handler exposes the HTTP handler the app serves.
func (a *App) Handler() http.Handler {
	return a.api
}

// Run listens on the configured port and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		a.sendAndLogError("Could not listen", err)
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln, the mDNS announcement and the UI
// snapshots until ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	port := a.cfg.Port
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	server := &http.Server{
		Handler: a.api,
		// Transfers stop with the app rather than with the listener.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Serving BDX", "addr", ln.Addr().String(), "path", discovery.DefaultPath)
		a.send(appevents.StatusUpdateMsg{Message: fmt.Sprintf("Listening on port %d", port)})
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.sendAndLogError("HTTP server failed", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if a.cfg.Announce {
		info, err := a.serviceInfo(port)
		if err != nil {
			a.sendAndLogError("Could not build service info", err)
			return err
		}
		g.Go(func() error {
			if err := a.registrar.Announce(ctx, info); err != nil {
				a.sendAndLogError("Failed to start mDNS announcement", err)
				// exit the app if we can't announce
				return err
			}
			return nil
		})
	}

	if a.cfg.Registry != nil {
		g.Go(func() error {
			a.watchTransfers(ctx)
			return nil
		})
	}

	return g.Wait()
}

// serviceInfo describes this responder for mDNS.
func (a *App) serviceInfo(port int) (discovery.ServiceInfo, error) {
	name := a.cfg.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return discovery.ServiceInfo{}, err
		}
		name = fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	}

	config := a.cfg.Runner.Config()
	return discovery.ServiceInfo{
		Name:   name,
		Type:   discovery.DefaultServerType,
		Domain: discovery.DefaultDomain,
		Port:   port,
		Text: map[string]string{
			discovery.TxtVersion:      strconv.Itoa(int(config.Version)),
			discovery.TxtMaxBlockSize: strconv.Itoa(int(config.MaxBlockSize)),
			discovery.TxtModes:        strings.Join(config.Modes, ","),
			discovery.TxtPath:         discovery.DefaultPath,
		},
	}, nil
}

// watchTransfers sends registry snapshots to the UI while it keeps up.
func (a *App) watchTransfers(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := appevents.TransfersMsg{
				Transfers: a.cfg.Registry.List(),
				Overall:   a.cfg.Registry.Overall(),
			}
			select {
			case a.uiMessages <- msg:
			default:
			}
		}
	}
}

// send delivers msg to the UI without blocking the app when nobody listens.
func (a *App) send(msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	default:
		a.logger.Debug("Dropped UI message", "type", fmt.Sprintf("%T", msg))
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(baseMessage string, err error) {
	a.logger.Error(baseMessage, "error", err)
	a.send(appevents.ErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
