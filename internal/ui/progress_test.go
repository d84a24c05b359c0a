package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pdom/internal/ingest"
)

func feed(m tea.Model, events ...ingest.Event) tea.Model {
	for _, ev := range events {
		m, _ = m.Update(eventMsg(ev))
	}
	return m
}

func TestProgressViewTracksFiles(t *testing.T) {
	m := NewProgressModel("ingest", make(chan ingest.Event))
	m = feed(m,
		ingest.Event{File: "a.c", Status: ingest.StatusQueued},
		ingest.Event{File: "b.c", Status: ingest.StatusQueued},
		ingest.Event{File: "a.c", Status: ingest.StatusWorking},
		ingest.Event{File: "a.c", Status: ingest.StatusDone, Names: 3, Removed: 1, Elapsed: time.Millisecond},
		ingest.Event{File: "b.c", Status: ingest.StatusError, Err: errors.New("bad kind")},
	)
	m, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Error("done did not quit")
	}

	view := m.View()
	for _, want := range []string{"done: ingest  2/2 files, 3 names", "a.c", "3 names, 1 replaced", "bad kind"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestProgressViewScrolls(t *testing.T) {
	m := NewProgressModel("ingest", make(chan ingest.Event))
	for i := range maxRows + 3 {
		m = feed(m, ingest.Event{File: fmt.Sprintf("f%02d.c", i), Status: ingest.StatusQueued})
	}
	view := m.View()
	if strings.Contains(view, "f00.c") || !strings.Contains(view, "3 more") {
		t.Errorf("old rows not collapsed:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short.c", 20, "short.c"},
		{"very/long/path/name.c", 10, "very/lo..."},
		{"日本語.h", 5, "日..."},
		{"abc.c", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
