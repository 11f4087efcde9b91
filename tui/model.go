package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"tasklist/domain"
	"tasklist/view"
)

// Mode is the current input mode.
type Mode int

const (
	ModeList Mode = iota
	ModeAdd
	ModeEdit
	ModeSearch
	ModeConfirmClear
)

const defaultNoticeDelay = 2500 * time.Millisecond

// Store is the task store as seen by the terminal UI.
type Store interface {
	All() []domain.Task
	Get(id string) (domain.Task, bool)
	Add(ctx context.Context, name string, priority domain.Priority) (domain.Task, error)
	Remove(ctx context.Context, id string) (bool, error)
	Toggle(ctx context.Context, id string) (bool, error)
	Edit(ctx context.Context, id, name string) (bool, error)
	SetPriority(ctx context.Context, id string, p domain.Priority) (bool, error)
	Clear(ctx context.Context) error
}

// Options configures the model.
type Options struct {
	// NoticeDelay is how long a notice stays on screen.
	NoticeDelay time.Duration
	// SaveTimeout bounds each store mutation. Zero means no limit.
	SaveTimeout time.Duration
	Logger      *log.Logger
}

type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeWarning
	noticeError
)

type notice struct {
	text string
	kind noticeKind
}

// Model is the main Bubble Tea model.
type Model struct {
	store  Store
	opts   Options
	logger *log.Logger

	mode       Mode
	projection view.Projection
	filter     view.Filter
	search     string
	cursor     int

	input       textinput.Model
	addPriority domain.Priority
	editingID   string

	notice    notice
	noticeSeq int

	busy     bool
	deferred []tea.KeyMsg

	width  int
	height int
}

// New creates a Model showing the store's current contents.
func New(store Store, opts Options) Model {
	if opts.NoticeDelay <= 0 {
		opts.NoticeDelay = defaultNoticeDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 50

	m := Model{
		store:       store,
		opts:        opts,
		logger:      logger,
		mode:        ModeList,
		filter:      view.FilterAll,
		input:       ti,
		addPriority: domain.PriorityMedium,
	}
	m.refresh()
	return m
}

// Run starts the program on the alternate screen and blocks until quit.
func Run(store Store, opts Options) error {
	_, err := tea.NewProgram(New(store, opts), tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.busy && msg.String() != "ctrl+c" {
			m.deferred = append(m.deferred, msg)
			return m, nil
		}
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case mutationDoneMsg:
		return m.handleMutationDone(msg)

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = notice{}
		}
		return m, nil
	}

	if m.mode == ModeAdd || m.mode == ModeEdit || m.mode == ModeSearch {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Mode reports the current input mode.
func (m Model) Mode() Mode { return m.mode }

// Projection returns what the list currently shows.
func (m Model) Projection() view.Projection { return m.projection }

// refresh re-reads the store and recomputes the visible list.
func (m *Model) refresh() {
	m.projection = view.Project(m.store.All(), m.filter, m.search)
	m.cursor = clampCursor(m.cursor, len(m.projection.Visible))
}

func (m Model) selected() (domain.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.projection.Visible) {
		return domain.Task{}, false
	}
	return m.projection.Visible[m.cursor], true
}

// setNotice replaces the banner and schedules its removal. Older pending
// removals no longer match noticeSeq and are ignored.
func (m *Model) setNotice(text string, kind noticeKind) tea.Cmd {
	m.noticeSeq++
	seq := m.noticeSeq
	m.notice = notice{text: text, kind: kind}
	return tea.Tick(m.opts.NoticeDelay, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
