package receiver

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/fileInfo"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/rescp17/bdx/pkg/transport/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRegistrar struct {
	mu        sync.Mutex
	announced []discovery.ServiceInfo
	err       error
}

func (r *recordingRegistrar) Announce(ctx context.Context, service discovery.ServiceInfo) error {
	r.mu.Lock()
	r.announced = append(r.announced, service)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	<-ctx.Done()
	return nil
}

func (r *recordingRegistrar) Discover(ctx context.Context, service string) <-chan discovery.DiscoveryResult {
	ch := make(chan discovery.DiscoveryResult)
	close(ch)
	return ch
}

func (r *recordingRegistrar) services() []discovery.ServiceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]discovery.ServiceInfo(nil), r.announced...)
}

type memorySource struct {
	*bytes.Reader
}

func (s *memorySource) Close() error { return nil }
func (s *memorySource) Size() uint64 { return uint64(s.Reader.Size()) }

type runningApp struct {
	app       *App
	url       string
	port      int
	inbox     string
	serveDir  string
	registry  *transfer.StatusRegistry
	registrar *recordingRegistrar
	cancel    context.CancelFunc
	done      chan error
}

func startApp(t *testing.T, registrar *recordingRegistrar) *runningApp {
	t.Helper()
	registry := transfer.NewStatusRegistry()
	runner, err := transfer.NewRunner(nil, transfer.WithRegistry(registry))
	require.NoError(t, err)

	inbox, serveDir := t.TempDir(), t.TempDir()
	app := NewApp(Config{
		Name:     "test-responder",
		Store:    &Store{InboxDir: inbox, ServeDir: serveDir},
		Runner:   runner,
		Registry: registry,
		Gatherer: prometheus.NewRegistry(),
		Announce: true,
	}, registrar)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	r := &runningApp{
		app:       app,
		url:       "ws://" + ln.Addr().String() + discovery.DefaultPath,
		port:      ln.Addr().(*net.TCPAddr).Port,
		inbox:     inbox,
		serveDir:  serveDir,
		registry:  registry,
		registrar: registrar,
		cancel:    cancel,
		done:      done,
	}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func dialRunner(t *testing.T, url string) (*transfer.Runner, *ws.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	runner, err := transfer.NewRunner(nil)
	require.NoError(t, err)
	return runner, conn
}

func TestApp_ReceivesIntoInbox(t *testing.T) {
	r := startApp(t, &recordingRegistrar{})
	runner, conn := dialRunner(t, r.url)

	data := bytes.Repeat([]byte("block data "), 400)
	meta, err := fileInfo.Metadata{Name: "data.bin", Size: uint64(len(data)), Checksum: sha256Hex(data)}.Encode()
	require.NoError(t, err)

	res, err := runner.Send(context.Background(), conn, transfer.SendRequest{
		FileDesignator: "incoming/data.bin",
		Source:         &memorySource{Reader: bytes.NewReader(data)},
		Metadata:       meta,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), res.Bytes)

	require.Eventually(t, func() bool {
		return r.registry.Overall().CompletedTransfers == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, err := os.ReadFile(filepath.Join(r.inbox, "incoming", "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestApp_ServesFromServeDir(t *testing.T) {
	r := startApp(t, &recordingRegistrar{})
	data := bytes.Repeat([]byte{0xAB}, 3000)
	require.NoError(t, os.WriteFile(filepath.Join(r.serveDir, "fw.bin"), data, 0o644))

	runner, conn := dialRunner(t, r.url)
	out := filepath.Join(t.TempDir(), "fw.bin")
	sink, err := NewFileSink(out, FileSinkOptions{})
	require.NoError(t, err)

	res, err := runner.Fetch(context.Background(), conn, transfer.FetchRequest{
		FileDesignator: "fw.bin",
		Sink:           sink,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), res.Length)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestApp_AnnouncesService(t *testing.T) {
	registrar := &recordingRegistrar{}
	r := startApp(t, registrar)

	require.Eventually(t, func() bool { return len(registrar.services()) == 1 }, 2*time.Second, 10*time.Millisecond)
	info := registrar.services()[0]

	assert.Equal(t, "test-responder", info.Name)
	assert.Equal(t, discovery.DefaultServerType, info.Type)
	assert.Equal(t, 0, info.Version())
	assert.Equal(t, "8192", info.Text[discovery.TxtMaxBlockSize])
	assert.Equal(t, "sender-drive,receiver-drive", info.Text[discovery.TxtModes])
	assert.Equal(t, r.port, info.Port)
}

func TestApp_AnnounceFailureStopsApp(t *testing.T) {
	registry := transfer.NewStatusRegistry()
	runner, err := transfer.NewRunner(nil, transfer.WithRegistry(registry))
	require.NoError(t, err)
	registrar := &recordingRegistrar{err: errors.New("multicast unavailable")}
	app := NewApp(Config{Name: "x", Store: &Store{}, Runner: runner, Announce: true}, registrar)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Serve(context.Background(), ln) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "multicast unavailable")
	case <-time.After(5 * time.Second):
		t.Fatal("app kept running after the announcement failed")
	}

	var sawError bool
	for len(app.UIMessages()) > 0 {
		if _, ok := (<-app.UIMessages()).(appevents.ErrorMsg); ok {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestApp_SendsTransferSnapshots(t *testing.T) {
	r := startApp(t, &recordingRegistrar{})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-r.app.UIMessages():
			if snap, ok := msg.(appevents.TransfersMsg); ok {
				assert.Empty(t, snap.Transfers)
				assert.Zero(t, snap.Overall.TotalTransfers)
				return
			}
		case <-deadline:
			t.Fatal("no transfer snapshot")
		}
	}
}

func TestApp_StopsWithContext(t *testing.T) {
	r := startApp(t, &recordingRegistrar{})
	r.cancel()

	select {
	case err := <-r.done:
		assert.NoError(t, err)
		r.done <- err
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("app did not stop")
	}
}
