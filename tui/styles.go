package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tasklist/domain"
)

var (
	colorAccent    = lipgloss.Color("#E07A5F")
	colorWhite     = lipgloss.Color("#FFFFFF")
	colorDim       = lipgloss.Color("#6B7280")
	colorSuccess   = lipgloss.Color("#10B981")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorSeparator = lipgloss.Color("#4B5563")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	ItemStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	// Completed tasks are struck through and dimmed.
	DoneStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Strikethrough(true)

	DimmedStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(colorSeparator)

	KeyStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	ActiveChipStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	ProgressFillStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	ProgressEmptyStyle = lipgloss.NewStyle().Foreground(colorSeparator)
)

var priorityStyles = map[domain.Priority]lipgloss.Style{
	domain.PriorityHigh:   lipgloss.NewStyle().Foreground(colorError),
	domain.PriorityMedium: lipgloss.NewStyle().Foreground(colorWarning),
	domain.PriorityLow:    lipgloss.NewStyle().Foreground(colorDim),
}

// Cursor returns the selection cursor.
func Cursor() string {
	return lipgloss.NewStyle().
		Foreground(colorAccent).
		Bold(true).
		Render("› ")
}

// NoCursor returns spacing for non-selected items.
func NoCursor() string {
	return "  "
}

// RenderSeparator returns a horizontal separator line.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return SeparatorStyle.Render(strings.Repeat("─", width))
}

// RenderKeyBinding formats a key binding with highlighted key.
func RenderKeyBinding(key, description string) string {
	return KeyStyle.Render(key) + " " + DimmedStyle.Render(description)
}

// RenderPriority renders a priority label in its color.
func RenderPriority(p domain.Priority) string {
	style, ok := priorityStyles[p]
	if !ok {
		style = DimmedStyle
	}
	return style.Render(string(p))
}

// RenderProgress draws a percent bar width cells wide.
func RenderProgress(percent, width int) string {
	if width <= 0 {
		width = 20
	}
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return ProgressFillStyle.Render(strings.Repeat("█", filled)) +
		ProgressEmptyStyle.Render(strings.Repeat("░", width-filled))
}
