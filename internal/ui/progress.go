// Package ui renders ingest progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"pdom/internal/ingest"
)

// maxRows bounds the file list; older finished files scroll off.
const maxRows = 12

type progressModel struct {
	title   string
	events  <-chan ingest.Event
	spinner spinner.Model
	prog    progress.Model
	items   []fileItem
	index   map[string]int
	names   int
	removed int
	width   int
	done    bool
}

type fileItem struct {
	path   string
	status ingest.Status
	detail string
}

type eventMsg ingest.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model fed by events. The model quits
// when the channel is closed.
func NewProgressModel(title string, events <-chan ingest.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(ingest.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	header := fmt.Sprintf("%s  %d/%d files, %d names", m.title, m.finished(), len(m.items), m.names)
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-16, 20)
	start := max(len(m.items)-maxRows, 0)
	if start > 0 {
		fmt.Fprintf(&b, "  %12s %d more\n", "", start)
	}
	for _, item := range m.items[start:] {
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		line := fmt.Sprintf("  %s %s", status, truncate(item.path, nameWidth))
		if item.detail != "" {
			line += "  " + lipgloss.NewStyle().Faint(true).Render(item.detail)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev ingest.Event) tea.Cmd {
	idx, ok := m.index[ev.File]
	if !ok {
		idx = len(m.items)
		m.items = append(m.items, fileItem{path: ev.File})
		m.index[ev.File] = idx
	}
	item := &m.items[idx]
	item.status = ev.Status
	switch ev.Status {
	case ingest.StatusDone:
		m.names += ev.Names
		m.removed += ev.Removed
		item.detail = fmt.Sprintf("%d names, %d replaced, %s", ev.Names, ev.Removed, ev.Elapsed.Round(time.Microsecond))
	case ingest.StatusError:
		item.detail = ev.Err.Error()
	}
	if len(m.items) == 0 {
		return nil
	}
	return m.prog.SetPercent(float64(m.finished()) / float64(len(m.items)))
}

func (m *progressModel) finished() int {
	n := 0
	for _, item := range m.items {
		if item.status == ingest.StatusDone || item.status == ingest.StatusError {
			n++
		}
	}
	return n
}

func styleStatus(status ingest.Status) lipgloss.Style {
	switch status {
	case ingest.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case ingest.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case ingest.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
