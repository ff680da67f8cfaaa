package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 100 * time.Millisecond

type pollMsg time.Time

// Model is a Bubble Tea program showing playback progress. It polls for a
// Snapshot on a tick and quits once the snapshot reports Done. Pressing q,
// esc or ctrl+c calls abort and quits.
type Model struct {
	poll    func() Snapshot
	abort   func()
	spinner spinner.Model
	status  *StatusDisplay
	width   int
	aborted bool
	done    bool
}

// NewModel returns a model reading snapshots from poll.
func NewModel(poll func() Snapshot, abort func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
	return Model{
		poll:    poll,
		abort:   abort,
		spinner: sp,
		status:  NewStatusDisplay(),
		width:   60,
	}
}

// Aborted reports whether the user stopped playback.
func (m Model) Aborted() bool { return m.aborted }

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.done && m.abort != nil {
				m.abort()
			}
			m.aborted = !m.done
			m.done = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case pollMsg:
		snap := m.poll()
		m.status.Update(snap)
		if snap.Done {
			m.done = true
			return m, tea.Quit
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.done {
		return m.status.DetailedStatus(m.width) + "\n"
	}
	return m.spinner.View() + " " + m.status.CompactStatus() + "\n"
}
