package style

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink     = lipgloss.Color("205")
	colorDarkGray = lipgloss.Color("240")
	colorLight    = lipgloss.Color("229")
	colorBlue     = lipgloss.Color("57")
	colorCyan     = lipgloss.Color("212")
	colorPurple   = lipgloss.Color("99")
	colorGreen    = lipgloss.Color("42")
	colorRed      = lipgloss.Color("196")
)

// --- General Purpose Styles ---
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorGreen)
	HelpStyle    = lipgloss.NewStyle().Faint(true)
)

// --- Transfer Styles ---
var (
	DocStyle           = lipgloss.NewStyle().Margin(1, 2)
	TitleStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	HighlightFontStyle = lipgloss.NewStyle().Foreground(colorCyan)
	LabelStyle         = lipgloss.NewStyle().Foreground(colorPurple)
	BaseStyle          = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorDarkGray).Padding(0, 1)
)

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}

// NewProgress creates a progress bar of the given width.
func NewProgress(width int) progress.Model {
	p := progress.New(progress.WithDefaultGradient())
	p.Width = width
	return p
}

// NewTableStyles returns the default styles for tables, with our custom selection style.
func NewTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Foreground(colorLight).Background(colorBlue).Bold(false)
	return styles
}
