package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"tasklist/domain"
)

type mutationDoneMsg struct {
	op      string
	success string
	err     error
}

type clearNoticeMsg struct{ seq int }

// mutate runs fn off the UI goroutine and reports back with a
// mutationDoneMsg. success is shown when fn returns nil. Only one mutation
// is in flight at a time; keys pressed meanwhile wait in m.deferred.
func (m *Model) mutate(op, success string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = true
	timeout := m.opts.SaveTimeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return mutationDoneMsg{op: op, success: success, err: fn(ctx)}
	}
}

// handleMutationDone reports the finished mutation, then replays keys that
// arrived while it ran against the refreshed list, stopping at the next
// key that starts a mutation.
func (m Model) handleMutationDone(msg mutationDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.refresh()
	cmds := []tea.Cmd{m.reportMutation(msg)}

	for len(m.deferred) > 0 && !m.busy {
		key := m.deferred[0]
		m.deferred = m.deferred[1:]
		next, cmd := m.handleKeyPress(key)
		m = next.(Model)
		cmds = append(cmds, cmd)
	}
	if len(m.deferred) == 0 {
		m.deferred = nil
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) reportMutation(msg mutationDoneMsg) tea.Cmd {
	var verr *domain.ValidationError
	var serr *domain.StorageError
	switch {
	case msg.err == nil:
		if msg.success == "" {
			return nil
		}
		return m.setNotice(msg.success, noticeInfo)
	case errors.As(msg.err, &verr):
		return m.setNotice(capitalize(verr.Error()), noticeError)
	case errors.As(msg.err, &serr):
		m.logger.WithFields(log.Fields{"op": msg.op}).WithError(msg.err).Warn("change kept in memory only")
		return m.setNotice(fmt.Sprintf("Not saved, kept in memory: %v", serr.Err), noticeWarning)
	default:
		m.logger.WithFields(log.Fields{"op": msg.op}).WithError(msg.err).Error("task operation failed")
		return m.setNotice(fmt.Sprintf("%s failed: %v", msg.op, msg.err), noticeError)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
