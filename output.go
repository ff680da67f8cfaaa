package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats for list commands.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTOML  = "toml"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML, outputTOML:
		return nil
	default:
		return fmt.Errorf("unsupported output %q: use %s, %s, %s or %s", format, outputTable, outputJSON, outputYAML, outputTOML)
	}
}

// encode writes v in a structured format. TOML documents need a top-level
// table, so v is wrapped under key.
func encode(w io.Writer, format, key string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case outputTOML:
		return toml.NewEncoder(w).Encode(map[string]any{key: v})
	default:
		return validateOutput(format)
	}
}

// table lays out rows in padded columns. The last column is truncated so
// each line fits width.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer, width int) error {
	widths := make([]int, len(t.header))
	for _, row := range append([][]string{t.header}, t.rows...) {
		for i, c := range row[:len(row)-1] {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	used := 0
	for _, n := range widths[:len(widths)-1] {
		used += n + 2
	}
	last := max(width-used, 10)

	line := func(row []string, style func(...string) string) string {
		var b strings.Builder
		for i, c := range row[:len(row)-1] {
			b.WriteString(runewidth.FillRight(c, widths[i]))
			b.WriteString("  ")
		}
		b.WriteString(truncate.StringWithTail(row[len(row)-1], uint(last), "…")) //nolint:gosec
		s := b.String()
		if style != nil {
			s = style(s)
		}
		return s
	}

	if _, err := fmt.Fprintln(w, line(t.header, faint)); err != nil {
		return err
	}
	for _, row := range t.rows {
		if _, err := fmt.Fprintln(w, line(row, nil)); err != nil {
			return err
		}
	}
	return nil
}

// terminalWidth returns stdout's width, or 80 when it is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			return w
		}
	}
	return 80
}
