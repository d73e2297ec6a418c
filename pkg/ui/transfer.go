package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/internal/style"
	"github.com/rescp17/bdx/internal/util"
	"github.com/rescp17/bdx/pkg/transfer"
)

const (
	maxBarWidth = 60
	// cancelWait bounds how long a cancel request waits for the app
	cancelWait = time.Second
)

// TransferModel follows one send or fetch run by a Controller.
type TransferModel struct {
	title      string
	app        Controller
	spinner    spinner.Model
	bar        progress.Model
	status     string
	progress   transfer.Progress
	started    time.Time
	retries    int
	cancelling bool
	done       bool
	result     *transfer.Result
	err        error
}

// NewTransferModel creates the model for one transfer.
func NewTransferModel(title string, app Controller) TransferModel {
	return TransferModel{
		title:   title,
		app:     app,
		spinner: style.NewSpinner(),
		bar:     style.NewProgress(40),
		status:  "Connecting...",
		started: time.Now(),
	}
}

// Result returns the finished transfer, nil until it ends or when it failed.
func (m TransferModel) Result() *transfer.Result { return m.result }

// Err returns the error the transfer ended with.
func (m TransferModel) Err() error { return m.err }

func (m TransferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenForAppMessages(m.app))
}

func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !isQuitKey(msg) {
			return m, nil
		}
		if m.done {
			return m, tea.Quit
		}
		if m.cancelling {
			return m, nil
		}
		m.cancelling = true
		m.status = "Cancelling..."
		return m, m.cancel()
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-4, maxBarWidth))
		return m, nil
	case appevents.StatusUpdateMsg:
		m.status = msg.Message
		return m, listenForAppMessages(m.app)
	case appevents.ProgressMsg:
		m.progress = msg.Progress
		if !m.cancelling {
			m.status = fmt.Sprintf("Transferring %s", msg.Progress.FileDesignator)
		}
		return m, listenForAppMessages(m.app)
	case appevents.RetryMsg:
		m.retries = msg.Attempt
		m.status = fmt.Sprintf("Retrying (attempt %d)...", msg.Attempt+1)
		return m, listenForAppMessages(m.app)
	case appevents.ErrorMsg:
		m.err = msg.Err
		return m, listenForAppMessages(m.app)
	case appevents.TransferDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	case appClosedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m TransferModel) cancel() tea.Cmd {
	events := m.app.AppEvents()
	return func() tea.Msg {
		select {
		case events <- appevents.CancelTransferEvent{}:
		case <-time.After(cancelWait):
		}
		return nil
	}
}

func (m TransferModel) percent() float64 {
	if m.progress.Total == 0 {
		return 0
	}
	return min(1, float64(m.progress.Bytes)/float64(m.progress.Total))
}

func (m TransferModel) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(style.ErrorStyle.Render("Transfer failed: " + m.err.Error()))
	case m.done:
		b.WriteString(style.SuccessStyle.Render(m.summary()))
	default:
		fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.status)
		b.WriteString(m.bar.ViewAs(m.percent()))
		b.WriteString("\n")
		b.WriteString(style.HelpStyle.Render(m.counters()))
	}
	b.WriteString("\n")
	if !m.done {
		b.WriteString(style.HelpStyle.Render("\nPress ctrl + c to cancel"))
	}
	return style.DocStyle.Render(b.String())
}

func (m TransferModel) counters() string {
	moved := util.FormatSize(m.progress.Bytes)
	if m.progress.Total > 0 {
		moved += " / " + util.FormatSize(m.progress.Total)
	}
	line := fmt.Sprintf("%s  %d blocks  %s", moved, m.progress.Blocks, util.FormatRate(m.progress.Bytes, time.Since(m.started)))
	if m.retries > 0 {
		line += fmt.Sprintf("  %d retries", m.retries)
	}
	return line
}

func (m TransferModel) summary() string {
	if m.result == nil {
		return "Transfer finished."
	}
	return fmt.Sprintf("Transferred %s (%s) in %s, %d blocks",
		m.result.FileDesignator,
		util.FormatSize(m.result.Bytes),
		m.result.Duration.Round(time.Millisecond),
		m.result.Blocks)
}
