package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/bdx/internal/app_events"
	"github.com/rescp17/bdx/internal/style"
	"github.com/rescp17/bdx/internal/util"
	"github.com/rescp17/bdx/pkg/transfer"
)

const maxTableRows = 10

var transferColumns = []table.Column{
	{Title: "ID", Width: 8},
	{Title: "File", Width: 24},
	{Title: "Role", Width: 8},
	{Title: "State", Width: 10},
	{Title: "Progress", Width: 8},
	{Title: "Size", Width: 10},
	{Title: "Rate", Width: 12},
}

// ServeModel shows the transfers a serving app handles.
type ServeModel struct {
	app     MessageSource
	spinner spinner.Model
	table   table.Model
	status  string
	overall transfer.OverallProgress
	err     error
}

// NewServeModel creates the model for a serving app.
func NewServeModel(app MessageSource) ServeModel {
	t := table.New(
		table.WithColumns(transferColumns),
		table.WithRows([]table.Row{}),
		table.WithHeight(1),
	)
	t.SetStyles(style.NewTableStyles())

	return ServeModel{
		app:     app,
		spinner: style.NewSpinner(),
		table:   t,
		status:  "Starting...",
	}
}

// Err returns the error that stopped the app, if any.
func (m ServeModel) Err() error { return m.err }

func (m ServeModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listenForAppMessages(m.app))
}

func (m ServeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isQuitKey(msg) {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case appevents.StatusUpdateMsg:
		m.status = msg.Message
		return m, listenForAppMessages(m.app)
	case appevents.TransfersMsg:
		m.overall = msg.Overall
		rows := transferRows(msg.Transfers)
		m.table.SetRows(rows)
		m.table.SetHeight(max(1, min(len(rows), maxTableRows)) + 2)
		return m, listenForAppMessages(m.app)
	case appevents.ErrorMsg:
		m.err = msg.Err
		return m, tea.Quit
	case appClosedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// transferRows renders the newest transfers first.
func transferRows(statuses []*transfer.TransferStatus) []table.Row {
	sorted := make([]*transfer.TransferStatus, len(statuses))
	copy(sorted, statuses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})

	rows := make([]table.Row, 0, len(sorted))
	for _, s := range sorted {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			id,
			s.FileDesignator,
			s.Role,
			s.State.String(),
			fmt.Sprintf("%.0f%%", s.GetProgressPercentage()),
			util.FormatSize(s.BytesTransferred),
			util.FormatSize(uint64(s.TransferRate)) + "/s",
		})
	}
	return rows
}

func (m ServeModel) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render("BDX responder"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(style.ErrorStyle.Render(m.err.Error()))
		b.WriteString("\n")
		return style.DocStyle.Render(b.String())
	}

	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.status)
	if m.overall.TotalTransfers == 0 {
		b.WriteString(style.HelpStyle.Render("No transfers yet."))
	} else {
		b.WriteString(style.BaseStyle.Render(m.table.View()))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %d active, %d completed, %d failed, %d cancelled",
			style.LabelStyle.Render("Transfers:"),
			m.overall.ActiveTransfers,
			m.overall.CompletedTransfers,
			m.overall.FailedTransfers,
			m.overall.CancelledTransfers)
	}
	b.WriteString("\n")
	b.WriteString(style.HelpStyle.Render("\nPress ctrl + c to quit"))
	return style.DocStyle.Render(b.String())
}
