package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vista-tts/vista/internal/stream"
)

func TestStatusDisplayIdle(t *testing.T) {
	display := NewStatusDisplay()
	if display.IsActive() {
		t.Error("Display should not be active initially")
	}
	if status := display.CompactStatus(); status != "" {
		t.Errorf("Initial compact status = %q, want empty", status)
	}
}

func TestStatusDisplayStreaming(t *testing.T) {
	display := NewStatusDisplay()
	display.Update(Snapshot{
		Segment:  1,
		Segments: 3,
		Stats: stream.Stats{
			State:          stream.StateStreaming,
			BytesReceived:  2048,
			ChunksReceived: 4,
			Queued:         2,
		},
	})

	if !display.IsActive() {
		t.Error("Display should be active while streaming")
	}
	status := display.CompactStatus()
	for _, want := range []string{"⟳", "streaming", "2/3", "2.0 KiB", "2 queued"} {
		if !strings.Contains(status, want) {
			t.Errorf("CompactStatus() = %q, missing %q", status, want)
		}
	}
}

func TestStatusDisplayDetailed(t *testing.T) {
	display := NewStatusDisplay()
	display.Update(Snapshot{
		Voice:    "Rachel",
		Segment:  0,
		Segments: 2,
		Elapsed:  75 * time.Second,
		Err:      errors.New("stream abc [stream]: source failure: connection reset by peer"),
		Done:     true,
		Stats: stream.Stats{
			State:       stream.StateErrored,
			Termination: stream.TerminationFailed,
			Rejected:    1,
		},
	})

	detail := display.DetailedStatus(40)
	for _, want := range []string{"Voice: Rachel", "Segment: 1 of 2", "Rejected chunks: 1", "Elapsed: 1:15", "Error: "} {
		if !strings.Contains(detail, want) {
			t.Errorf("DetailedStatus() missing %q:\n%s", want, detail)
		}
	}
	if strings.Contains(detail, "connection reset by peer") {
		t.Error("long error was not truncated")
	}
	if display.IsActive() {
		t.Error("Display should not be active once done")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0:00"},
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{10 * time.Minute, "10:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModelQuitsWhenDone(t *testing.T) {
	done := false
	m := NewModel(func() Snapshot {
		return Snapshot{Done: done, Stats: stream.Stats{State: stream.StateFinalized}}
	}, nil)

	next, cmd := m.Update(pollMsg(time.Now()))
	if cmd == nil {
		t.Fatal("expected another poll while running")
	}
	if next.(Model).done {
		t.Fatal("model finished early")
	}

	done = true
	next, cmd = next.Update(pollMsg(time.Now()))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if next.(Model).Aborted() {
		t.Error("completed playback reported as aborted")
	}
}

func TestModelAbortKey(t *testing.T) {
	aborted := 0
	m := NewModel(func() Snapshot { return Snapshot{} }, func() { aborted++ })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if aborted != 1 {
		t.Errorf("abort called %d times, want 1", aborted)
	}
	if !next.(Model).Aborted() {
		t.Error("Aborted() = false after ctrl+c")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
