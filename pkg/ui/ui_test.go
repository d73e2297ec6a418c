package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	messages chan tea.Msg
	events   chan appevents.AppEvent
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		messages: make(chan tea.Msg, 10),
		events:   make(chan appevents.AppEvent, 1),
	}
}

func (f *fakeApp) UIMessages() <-chan tea.Msg { return f.messages }

func (f *fakeApp) AppEvents() chan<- appevents.AppEvent { return f.events }

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(msg)
}

func TestListenForAppMessages(t *testing.T) {
	app := newFakeApp()
	app.messages <- appevents.StatusUpdateMsg{Message: "hi"}
	assert.Equal(t, appevents.StatusUpdateMsg{Message: "hi"}, listenForAppMessages(app)())

	close(app.messages)
	assert.Equal(t, appClosedMsg{}, listenForAppMessages(app)())
}

func TestTransferModel_Progress(t *testing.T) {
	app := newFakeApp()
	var m tea.Model = NewTransferModel("Sending fw.bin", app)

	m, cmd := update(t, m, appevents.StatusUpdateMsg{Message: "Sending fw.bin to ws://x/bdx"})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Sending fw.bin to ws://x/bdx")

	m, _ = update(t, m, appevents.ProgressMsg{Progress: transfer.Progress{
		FileDesignator: "fw.bin",
		Bytes:          2048,
		Total:          4096,
		Blocks:         2,
	}})
	tm := m.(TransferModel)
	assert.Equal(t, 0.5, tm.percent())
	view := tm.View()
	assert.Contains(t, view, "2 KB / 4 KB")
	assert.Contains(t, view, "2 blocks")

	m, _ = update(t, m, appevents.RetryMsg{Attempt: 1})
	assert.Contains(t, m.View(), "1 retries")
}

func TestTransferModel_Done(t *testing.T) {
	app := newFakeApp()
	var m tea.Model = NewTransferModel("Fetching", app)

	m, cmd := update(t, m, appevents.TransferDoneMsg{Result: &transfer.Result{
		FileDesignator: "fw.bin",
		Bytes:          1536,
		Blocks:         2,
		Duration:       1500 * time.Millisecond,
	}})
	assert.True(t, isQuit(t, cmd))

	tm := m.(TransferModel)
	require.NotNil(t, tm.Result())
	assert.NoError(t, tm.Err())
	assert.Contains(t, tm.View(), "Transferred fw.bin (1.5 KB) in 1.5s, 2 blocks")
}

func TestTransferModel_Failed(t *testing.T) {
	app := newFakeApp()
	var m tea.Model = NewTransferModel("Sending", app)

	m, cmd := update(t, m, appevents.TransferDoneMsg{Err: errors.New("peer refused")})
	assert.True(t, isQuit(t, cmd))
	assert.Contains(t, m.View(), "Transfer failed: peer refused")
	assert.EqualError(t, m.(TransferModel).Err(), "peer refused")
}

func TestTransferModel_CancelKey(t *testing.T) {
	app := newFakeApp()
	var m tea.Model = NewTransferModel("Sending", app)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	assert.Equal(t, appevents.CancelTransferEvent{}, <-app.events)
	assert.Contains(t, m.View(), "Cancelling...")

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd, "a second ctrl+c while cancelling does nothing")

	m, _ = update(t, m, appevents.TransferDoneMsg{Err: errors.New("cancelled")})
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, isQuit(t, cmd))
}

func TestTransferModel_AppClosed(t *testing.T) {
	var m tea.Model = NewTransferModel("Sending", newFakeApp())
	_, cmd := update(t, m, appClosedMsg{})
	assert.True(t, isQuit(t, cmd))
}

func TestServeModel_Transfers(t *testing.T) {
	app := newFakeApp()
	var m tea.Model = NewServeModel(app)
	assert.Contains(t, m.View(), "Starting...")

	m, _ = update(t, m, appevents.StatusUpdateMsg{Message: "Listening on port 8080"})
	assert.Contains(t, m.View(), "No transfers yet.")

	now := time.Now()
	m, cmd := update(t, m, appevents.TransfersMsg{
		Transfers: []*transfer.TransferStatus{
			{ID: "0123456789ab", FileDesignator: "old.bin", Role: "receiver", State: transfer.TransferStateCompleted,
				BytesTransferred: 2048, TotalBytes: 2048, StartTime: now.Add(-time.Minute)},
			{ID: "new", FileDesignator: "new.bin", Role: "sender", State: transfer.TransferStateActive,
				BytesTransferred: 512, TotalBytes: 1024, StartTime: now},
		},
		Overall: transfer.OverallProgress{TotalTransfers: 2, ActiveTransfers: 1, CompletedTransfers: 1},
	})
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "Listening on port 8080")
	assert.Contains(t, view, "01234567")
	assert.NotContains(t, view, "0123456789ab")
	assert.Contains(t, view, "1 active, 1 completed, 0 failed, 0 cancelled")

	rows := m.(ServeModel).table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "new.bin", rows[0][1], "newest first")
	assert.Equal(t, "50%", rows[0][4])
	assert.Equal(t, "completed", rows[1][3])
}

func TestServeModel_ErrorQuits(t *testing.T) {
	var m tea.Model = NewServeModel(newFakeApp())
	m, cmd := update(t, m, appevents.ErrorMsg{Err: errors.New("HTTP server failed: bind")})
	assert.True(t, isQuit(t, cmd))
	assert.Contains(t, m.View(), "HTTP server failed: bind")
	assert.Error(t, m.(ServeModel).Err())
}

func TestServeModel_QuitKey(t *testing.T) {
	var m tea.Model = NewServeModel(newFakeApp())
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, isQuit(t, cmd))
}
