package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"tasklist/domain"
	"tasklist/view"
)

// handleKeyPress processes keyboard input based on the current mode.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.mode {
	case ModeAdd, ModeEdit:
		return m.handleNameInputKey(msg)
	case ModeSearch:
		return m.handleSearchKey(msg)
	case ModeConfirmClear:
		return m.handleConfirmClearKey(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.projection.Visible)-1 {
			m.cursor++
		}

	case "a":
		m.mode = ModeAdd
		m.addPriority = domain.PriorityMedium
		m.input.Placeholder = "What needs doing?"
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "e":
		task, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = ModeEdit
		m.editingID = task.ID
		m.input.Placeholder = "Task name"
		m.input.SetValue(task.Name)
		m.input.CursorEnd()
		m.input.Focus()
		return m, textinput.Blink

	case " ", "enter", "x":
		task, ok := m.selected()
		if !ok {
			return m, nil
		}
		cmd := m.mutate("toggle", "", func(ctx context.Context) error {
			_, err := m.store.Toggle(ctx, task.ID)
			return err
		})
		return m, cmd

	case "d", "delete":
		task, ok := m.selected()
		if !ok {
			return m, nil
		}
		cmd := m.mutate("remove", "Task removed", func(ctx context.Context) error {
			_, err := m.store.Remove(ctx, task.ID)
			return err
		})
		return m, cmd

	case "p":
		task, ok := m.selected()
		if !ok {
			return m, nil
		}
		next := task.Priority.Next()
		cmd := m.mutate("priority", "", func(ctx context.Context) error {
			_, err := m.store.SetPriority(ctx, task.ID, next)
			return err
		})
		return m, cmd

	case "/":
		m.mode = ModeSearch
		m.input.Placeholder = "Search tasks"
		m.input.SetValue(m.search)
		m.input.CursorEnd()
		m.input.Focus()
		return m, textinput.Blink

	case "tab", "f":
		m.filter = m.filter.Next()
		m.refresh()

	case "1", "2", "3":
		m.filter = view.Filters[msg.String()[0]-'1']
		m.refresh()

	case "C":
		if m.projection.Summary.Total == 0 {
			cmd := m.setNotice("Nothing to clear", noticeInfo)
			return m, cmd
		}
		m.mode = ModeConfirmClear
	}
	return m, nil
}

func (m Model) handleNameInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.leaveInput()
		return m, nil

	case "tab":
		if m.mode == ModeAdd {
			m.addPriority = m.addPriority.Next()
		}
		return m, nil

	case "enter":
		name, err := domain.NormalizeName(m.input.Value())
		if err != nil {
			cmd := m.setNotice("Task name cannot be empty", noticeError)
			return m, cmd
		}
		if m.mode == ModeAdd {
			priority := m.addPriority
			m.leaveInput()
			cmd := m.mutate("add", "Task added", func(ctx context.Context) error {
				_, err := m.store.Add(ctx, name, priority)
				return err
			})
			return m, cmd
		}
		id := m.editingID
		m.leaveInput()
		cmd := m.mutate("edit", "Task renamed", func(ctx context.Context) error {
			_, err := m.store.Edit(ctx, id, name)
			return err
		})
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search = ""
		m.leaveInput()
		m.refresh()
		return m, nil
	case "enter":
		m.leaveInput()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != m.search {
		m.search = m.input.Value()
		m.cursor = 0
		m.refresh()
	}
	return m, cmd
}

func (m Model) handleConfirmClearKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = ModeList
	switch msg.String() {
	case "y", "Y":
		cmd := m.mutate("clear", "All tasks cleared", func(ctx context.Context) error {
			return m.store.Clear(ctx)
		})
		return m, cmd
	default:
		cmd := m.setNotice("Clear cancelled", noticeInfo)
		return m, cmd
	}
}

func (m *Model) leaveInput() {
	m.mode = ModeList
	m.editingID = ""
	m.input.Blur()
	m.input.SetValue("")
}
