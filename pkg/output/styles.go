package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	accentColor = lipgloss.Color("#3B82F6")
	mutedColor  = lipgloss.Color("#888888")
	beatColor   = lipgloss.Color("#F59E0B")
	errorColor  = lipgloss.Color("#A40000")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(beatColor).
			Padding(0, 1)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)
)
