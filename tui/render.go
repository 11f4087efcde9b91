package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tasklist/view"
)

const nameColumnWidth = 40

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	width := m.width
	if width <= 0 || width > 80 {
		width = 60
	}

	b.WriteString(TitleStyle.Render("Tasks"))
	b.WriteString("\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n")
	b.WriteString(m.renderFilters())
	b.WriteString("\n")
	b.WriteString(RenderSeparator(width))
	b.WriteString("\n")
	b.WriteString(m.renderList())
	b.WriteString(RenderSeparator(width))
	b.WriteString("\n")

	if line := m.renderNotice(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	switch m.mode {
	case ModeAdd:
		b.WriteString("New task " + RenderPriority(m.addPriority) + ": " + m.input.View())
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("enter save • tab priority • esc cancel"))
	case ModeEdit:
		b.WriteString("Rename: " + m.input.View())
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("enter save • esc cancel"))
	case ModeSearch:
		b.WriteString("Search: " + m.input.View())
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("enter keep • esc clear"))
	case ModeConfirmClear:
		b.WriteString(WarningStyle.Render(fmt.Sprintf("Delete ALL %d tasks? (y/n)", m.projection.Summary.Total)))
	default:
		b.WriteString(renderHelp())
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderSummary() string {
	s := m.projection.Summary
	return fmt.Sprintf("%s completed  %s %d%%",
		s.Counter(), RenderProgress(s.Percent, 20), s.Percent)
}

func (m Model) renderFilters() string {
	chips := make([]string, 0, len(view.Filters))
	for i, f := range view.Filters {
		label := fmt.Sprintf("%d %s", i+1, f)
		if f == m.filter {
			chips = append(chips, ActiveChipStyle.Render("["+label+"]"))
		} else {
			chips = append(chips, DimmedStyle.Render(" "+label+" "))
		}
	}
	line := strings.Join(chips, " ")
	if m.search != "" {
		line += "  " + SubtitleStyle.Render(fmt.Sprintf("search: %q", m.search))
	}
	return line
}

func (m Model) renderList() string {
	if m.projection.Summary.Total == 0 {
		return DimmedStyle.Render("No tasks yet. Press a to add one.") + "\n"
	}
	if len(m.projection.Visible) == 0 {
		return DimmedStyle.Render("No tasks match the current filter.") + "\n"
	}

	var b strings.Builder
	for i, t := range m.projection.Visible {
		cursor := NoCursor()
		if i == m.cursor && m.mode == ModeList {
			cursor = Cursor()
		}
		check := "[ ]"
		nameStyle := ItemStyle
		if t.Done {
			check = SuccessStyle.Render("[x]")
			nameStyle = DoneStyle
		}
		if i == m.cursor && !t.Done {
			nameStyle = SelectedStyle
		}
		name := truncate(t.Name, nameColumnWidth)
		pad := nameColumnWidth - lipgloss.Width(name)
		b.WriteString(cursor + check + " " + nameStyle.Render(name) + strings.Repeat(" ", max(pad, 0)) + " " + RenderPriority(t.Priority))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderNotice() string {
	if m.notice.text == "" {
		return ""
	}
	switch m.notice.kind {
	case noticeError:
		return ErrorStyle.Render(m.notice.text)
	case noticeWarning:
		return WarningStyle.Render(m.notice.text)
	default:
		return SuccessStyle.Render(m.notice.text)
	}
}

func renderHelp() string {
	bindings := []string{
		RenderKeyBinding("j/k", "move"),
		RenderKeyBinding("a", "add"),
		RenderKeyBinding("e", "edit"),
		RenderKeyBinding("space", "toggle"),
		RenderKeyBinding("d", "delete"),
		RenderKeyBinding("p", "priority"),
		RenderKeyBinding("/", "search"),
		RenderKeyBinding("tab", "filter"),
		RenderKeyBinding("C", "clear"),
		RenderKeyBinding("q", "quit"),
	}
	return strings.Join(bindings, HelpStyle.Render(" • "))
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}
