package sender

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rescp17/bdx/api"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/receiver"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/rescp17/bdx/pkg/transport"
	"github.com/rescp17/bdx/pkg/transport/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiscovery reports a fixed set of services once.
type fakeDiscovery struct {
	services []discovery.ServiceInfo
	err      error
}

func (f *fakeDiscovery) Announce(ctx context.Context, service discovery.ServiceInfo) error {
	return nil // Not used in sender tests
}

func (f *fakeDiscovery) Discover(ctx context.Context, service string) <-chan discovery.DiscoveryResult {
	ch := make(chan discovery.DiscoveryResult, 1)
	ch <- discovery.DiscoveryResult{Services: f.services, Error: f.err}
	close(ch)
	return ch
}

type responder struct {
	url      string
	inbox    string
	serveDir string
}

func startResponder(t *testing.T) *responder {
	t.Helper()
	runner, err := transfer.NewRunner(nil)
	require.NoError(t, err)

	r := &responder{inbox: t.TempDir(), serveDir: t.TempDir()}
	srv := httptest.NewServer(api.NewAPI(runner, &receiver.Store{InboxDir: r.inbox, ServeDir: r.serveDir}, nil, nil))
	t.Cleanup(srv.Close)
	r.url = "ws" + strings.TrimPrefix(srv.URL, "http") + discovery.DefaultPath
	return r
}

func newTestApp(t *testing.T, cfg Config, adapter discovery.Adapter) *App {
	t.Helper()
	if cfg.Runner == nil {
		runner, err := transfer.NewRunner(nil)
		require.NoError(t, err)
		cfg.Runner = runner
	}
	if adapter == nil {
		adapter = &fakeDiscovery{}
	}
	return NewApp(cfg, adapter)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func drain(app *App) []any {
	var msgs []any
	for {
		select {
		case msg := <-app.UIMessages():
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestApp_SendFile(t *testing.T) {
	r := startResponder(t)
	app := newTestApp(t, Config{}, nil)
	data := bytes.Repeat([]byte("payload-"), 700)
	path := writeFile(t, t.TempDir(), "local.bin", data)

	res, err := app.SendFile(context.Background(), SendOptions{Target: r.url, Path: path, Designator: "remote.bin"})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), res.Bytes)
	assert.Equal(t, "remote.bin", res.FileDesignator)

	got, err := os.ReadFile(filepath.Join(r.inbox, "remote.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	var progress int
	for _, msg := range drain(app) {
		if _, ok := msg.(appevents.ProgressMsg); ok {
			progress++
		}
	}
	assert.Positive(t, progress)
}

func TestApp_SendFileDefaultsDesignator(t *testing.T) {
	r := startResponder(t)
	app := newTestApp(t, Config{}, nil)
	path := writeFile(t, t.TempDir(), "notes.txt", []byte("some notes"))

	_, err := app.SendFile(context.Background(), SendOptions{Target: r.url, Path: path})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(r.inbox, "notes.txt"))
	assert.NoError(t, err)
}

func TestApp_FetchFile(t *testing.T) {
	r := startResponder(t)
	app := newTestApp(t, Config{}, nil)
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 1000)
	src := writeFile(t, r.serveDir, "fw.bin", data)
	sum, err := fileInfo.SHA256File(src)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "fw.bin")
	res, err := app.FetchFile(context.Background(), FetchOptions{
		Target:     r.url,
		Designator: "fw.bin",
		Output:     out,
		SHA256:     sum,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), res.Bytes)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestApp_FetchFileChecksumMismatch(t *testing.T) {
	r := startResponder(t)
	app := newTestApp(t, Config{}, nil)
	writeFile(t, r.serveDir, "fw.bin", []byte("actual contents"))

	out := filepath.Join(t.TempDir(), "fw.bin")
	_, err := app.FetchFile(context.Background(), FetchOptions{
		Target:     r.url,
		Designator: "fw.bin",
		Output:     out,
		SHA256:     strings.Repeat("0", 64),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fileInfo.ErrChecksumMismatch)

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestApp_FetchFileWithSkipIgnoresChecksum(t *testing.T) {
	r := startResponder(t)
	app := newTestApp(t, Config{}, nil)
	writeFile(t, r.serveDir, "log.txt", []byte("0123456789"))

	out := filepath.Join(t.TempDir(), "log.txt")
	res, err := app.FetchFile(context.Background(), FetchOptions{
		Target:     r.url,
		Designator: "log.txt",
		Output:     out,
		Skip:       4,
		SHA256:     strings.Repeat("0", 64),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Skipped)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(got[4:]))
}

func TestApp_FetchUnknownFile(t *testing.T) {
	r := startResponder(t)
	app := newTestApp(t, Config{}, nil)

	_, err := app.FetchFile(context.Background(), FetchOptions{
		Target:     r.url,
		Designator: "missing.bin",
		Output:     filepath.Join(t.TempDir(), "missing.bin"),
	})
	ae, ok := transfer.AsAbortError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, transfer.ReasonPeerStatus, ae.Reason)
}

func TestApp_ResolveTarget(t *testing.T) {
	adapter := &fakeDiscovery{services: []discovery.ServiceInfo{{
		Name: "lab-bench",
		Addr: net.ParseIP("192.168.1.20"),
		Port: 8080,
		Text: map[string]string{discovery.TxtVersion: "0"},
	}}}
	app := newTestApp(t, Config{}, adapter)
	ctx := context.Background()

	url, err := app.ResolveTarget(ctx, "ws://host:1/bdx")
	require.NoError(t, err)
	assert.Equal(t, "ws://host:1/bdx", url)

	url, err = app.ResolveTarget(ctx, "lab-bench")
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.20:8080/bdx", url)

	_, err = app.ResolveTarget(ctx, "elsewhere")
	assert.ErrorIs(t, err, discovery.ErrServiceNotFound)

	_, err = app.ResolveTarget(ctx, "")
	assert.Error(t, err)
}

func TestApp_RetriesFailedDial(t *testing.T) {
	r := startResponder(t)
	var dials atomic.Int32
	dial := func(ctx context.Context, url string) (transport.Conn, error) {
		if dials.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return ws.Dial(ctx, url)
	}
	retry := transfer.NewRetryScheduler(nil, &transfer.RetryPolicy{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 1,
		MaxDelay:      time.Millisecond,
	})
	app := newTestApp(t, Config{Retry: retry, Dial: dial}, nil)
	path := writeFile(t, t.TempDir(), "a.txt", []byte("retry me"))

	_, err := app.SendFile(context.Background(), SendOptions{Target: r.url, Path: path})
	require.NoError(t, err)
	assert.Equal(t, int32(2), dials.Load())

	var retried bool
	for _, msg := range drain(app) {
		if m, ok := msg.(appevents.RetryMsg); ok {
			retried = true
			assert.Equal(t, 1, m.Attempt)
		}
	}
	assert.True(t, retried)
}

func TestApp_DialFailureWithoutRetry(t *testing.T) {
	dial := func(ctx context.Context, url string) (transport.Conn, error) {
		return nil, errors.New("connection refused")
	}
	app := newTestApp(t, Config{Dial: dial}, nil)
	path := writeFile(t, t.TempDir(), "a.txt", []byte("x"))

	_, err := app.SendFile(context.Background(), SendOptions{Target: "ws://nowhere/bdx", Path: path})
	ae, ok := transfer.AsAbortError(err)
	require.True(t, ok)
	assert.Equal(t, transfer.ReasonTransport, ae.Reason)
}

func TestApp_RunCancelEvent(t *testing.T) {
	app := newTestApp(t, Config{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := app.Run(context.Background(), func(ctx context.Context) (*transfer.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()

	select {
	case app.AppEvents() <- appevents.CancelTransferEvent{}:
	case <-time.After(2 * time.Second):
		t.Fatal("app did not accept the cancel event")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("operation was not cancelled")
	}

	msg := <-app.UIMessages()
	doneMsg, ok := msg.(appevents.TransferDoneMsg)
	require.True(t, ok, "got %T", msg)
	assert.ErrorIs(t, doneMsg.Err, context.Canceled)
}

func TestApp_RunReportsResult(t *testing.T) {
	app := newTestApp(t, Config{}, nil)
	want := &transfer.Result{FileDesignator: "a.bin", Bytes: 42}

	res, err := app.Run(context.Background(), func(ctx context.Context) (*transfer.Result, error) {
		return want, nil
	})
	require.NoError(t, err)
	assert.Same(t, want, res)

	doneMsg, ok := (<-app.UIMessages()).(appevents.TransferDoneMsg)
	require.True(t, ok)
	assert.Same(t, want, doneMsg.Result)
	assert.NoError(t, doneMsg.Err)
}

func TestApp_RunOneAtATime(t *testing.T) {
	app := newTestApp(t, Config{}, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = app.Run(context.Background(), func(ctx context.Context) (*transfer.Result, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	_, err := app.Run(context.Background(), func(ctx context.Context) (*transfer.Result, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrTransferInProgress)
	close(release)
}

func TestApp_Discover(t *testing.T) {
	services := []discovery.ServiceInfo{{Name: "a", Port: 1}, {Name: "b", Port: 2}}
	app := newTestApp(t, Config{}, &fakeDiscovery{services: services})

	require.NoError(t, app.Discover(context.Background()))
	msg, ok := (<-app.UIMessages()).(appevents.FoundServicesMsg)
	require.True(t, ok)
	assert.Equal(t, services, msg.Services)

	failing := newTestApp(t, Config{}, &fakeDiscovery{err: errors.New("no multicast")})
	assert.Error(t, failing.Discover(context.Background()))
}
