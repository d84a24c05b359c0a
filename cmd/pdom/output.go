package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

var (
	errorColor  = color.New(color.FgRed, color.Bold)
	okColor     = color.New(color.FgGreen)
	pathColor   = color.New(color.FgCyan)
	kindColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
	headerColor = color.New(color.Bold)
)

// setupColor applies --color. In auto mode output is colored only when
// stdout is a terminal.
func setupColor(mode string) error {
	switch strings.ToLower(mode) {
	case "auto", "":
		color.NoColor = !isTerminal(os.Stdout)
	case "on", "always":
		color.NoColor = false
	case "off", "never":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected: auto|on|off)", mode)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// table prints aligned columns. Cells are padded by display width; colors
// are applied after padding so escape codes do not count.
type table struct {
	header []string
	rows   [][]string
	colors []*color.Color
}

func newTable(header ...string) *table {
	return &table{header: header, colors: make([]*color.Color, len(header))}
}

func (t *table) color(col int, c *color.Color) *table {
	t.colors[col] = c
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) error {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}
	line := func(cells []string, style func(int) *color.Color) error {
		var sb strings.Builder
		for i, c := range cells {
			cell := c
			if i < len(cells)-1 {
				cell = runewidth.FillRight(c, widths[i])
			}
			if st := style(i); st != nil {
				cell = st.Sprint(cell)
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
		return err
	}
	if err := line(t.header, func(int) *color.Color { return headerColor }); err != nil {
		return err
	}
	for _, r := range t.rows {
		if err := line(r, func(i int) *color.Color { return t.colors[i] }); err != nil {
			return err
		}
	}
	return nil
}
