// Package ui renders playback progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/vista-tts/vista/internal/stream"
)

// Snapshot is what the status display shows at one instant.
type Snapshot struct {
	Voice    string
	Segment  int // zero-based
	Segments int
	Stats    stream.Stats
	Elapsed  time.Duration
	Err      error
	Done     bool
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
)

// StatusDisplay formats Snapshots.
type StatusDisplay struct {
	snap Snapshot
}

// NewStatusDisplay returns an idle display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{}
}

// Update replaces the displayed snapshot.
func (s *StatusDisplay) Update(snap Snapshot) {
	s.snap = snap
}

// State is the displayed session state.
func (s *StatusDisplay) State() stream.State { return s.snap.Stats.State }

// IsActive reports whether a session is still running.
func (s *StatusDisplay) IsActive() bool {
	st := s.snap.Stats.State
	return st != stream.StateIdle && !st.IsTerminal() && !s.snap.Done
}

// CompactStatus is a one-line summary.
func (s *StatusDisplay) CompactStatus() string {
	st := s.snap.Stats.State
	if st == stream.StateIdle && s.snap.Stats.ChunksReceived == 0 {
		return ""
	}
	status := lipgloss.NewStyle().Foreground(stateColor(st)).
		Render(fmt.Sprintf("%s %s", stateIcon(st), st))

	if s.snap.Segments > 1 {
		status += dimStyle.Render(fmt.Sprintf(" %d/%d", s.snap.Segment+1, s.snap.Segments))
	}
	status += dimStyle.Render(fmt.Sprintf(" %s", humanize.IBytes(uint64(s.snap.Stats.BytesReceived))))
	if q := s.snap.Stats.Queued; q > 0 {
		status += dimStyle.Render(fmt.Sprintf(" (%d queued)", q))
	}
	return status
}

// DetailedStatus is a multi-line panel no wider than width.
func (s *StatusDisplay) DetailedStatus(width int) string {
	st := s.snap.Stats
	lines := []string{headerStyle.Render("Playback")}

	stateLine := fmt.Sprintf("State: %s %s", stateIcon(st.State), st.State)
	if st.Termination != stream.TerminationNone {
		stateLine += fmt.Sprintf(" (%s)", st.Termination)
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(stateColor(st.State)).Render(stateLine))

	if s.snap.Voice != "" {
		lines = append(lines, "Voice: "+s.snap.Voice)
	}
	if s.snap.Segments > 1 {
		lines = append(lines, fmt.Sprintf("Segment: %d of %d", s.snap.Segment+1, s.snap.Segments))
		if width > 20 {
			lines = append(lines, s.progressBar(width-4))
		}
	}
	lines = append(lines,
		fmt.Sprintf("Received: %s in %d chunks", humanize.IBytes(uint64(st.BytesReceived)), st.ChunksReceived),
		fmt.Sprintf("Played: %s, queue %d (peak %d)", humanize.IBytes(uint64(st.BytesDelivered)), st.Queued, st.PeakQueued),
	)
	if st.Rejected > 0 {
		lines = append(lines, fmt.Sprintf("Rejected chunks: %d", st.Rejected))
	}
	if s.snap.Elapsed > 0 {
		lines = append(lines, "Elapsed: "+formatDuration(s.snap.Elapsed))
	}
	if err := s.snap.Err; err != nil {
		msg := err.Error()
		if width > 10 {
			msg = truncate.StringWithTail(msg, uint(width-9), "...")
		}
		lines = append(lines, errorStyle.Render("Error: "+msg))
	}
	return strings.Join(lines, "\n")
}

func (s *StatusDisplay) progressBar(width int) string {
	if width < 10 || s.snap.Segments <= 0 {
		return ""
	}
	done := s.snap.Segment
	if s.snap.Done || s.snap.Stats.State.IsTerminal() {
		done++
	}
	filled := min(width*done/s.snap.Segments, width)
	return lipgloss.NewStyle().Foreground(stateColor(s.snap.Stats.State)).Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", width-filled))
}

func stateColor(st stream.State) lipgloss.Color {
	switch st {
	case stream.StateStreaming:
		return lipgloss.Color("#00AAFF")
	case stream.StateDraining, stream.StateFinalized:
		return lipgloss.Color("#04B575")
	case stream.StateErrored:
		return lipgloss.Color("#FF5F87")
	case stream.StateAborted:
		return lipgloss.Color("#FF8800")
	default:
		return lipgloss.Color("#666666")
	}
}

func stateIcon(st stream.State) string {
	switch st {
	case stream.StateStreaming:
		return "⟳"
	case stream.StateDraining:
		return "▶"
	case stream.StateFinalized:
		return "■"
	case stream.StateErrored:
		return "✗"
	case stream.StateAborted:
		return "◼"
	default:
		return "○"
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
