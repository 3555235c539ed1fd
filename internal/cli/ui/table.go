package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows in aligned columns with a bold header
type Table struct {
	Headers []string
	Rows    [][]string

	// Group is the column whose repeated values are blanked; -1 disables it
	Group int
}

// NewTable creates a table with the given headers
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers, Group: -1}
}

// Append adds a row; missing cells render empty
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to w
func (t *Table) Render(w io.Writer, noColor bool) {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	header := color.New(color.FgCyan, color.Bold)
	group := color.New(color.FgGreen)
	if noColor {
		header.DisableColor()
		group.DisableColor()
	}

	header.Fprintln(w, t.line(t.Headers, widths))
	rule := make([]string, len(widths))
	for i, width := range widths {
		rule[i] = strings.Repeat("-", width)
	}
	fmt.Fprintln(w, t.line(rule, widths))

	previous := ""
	for _, row := range t.Rows {
		cells := make([]string, len(widths))
		copy(cells, row)
		if t.Group >= 0 && t.Group < len(cells) {
			if cells[t.Group] == previous {
				cells[t.Group] = ""
			} else {
				previous = cells[t.Group]
				cells[t.Group] = group.Sprint(padRight(cells[t.Group], widths[t.Group]))
				fmt.Fprintln(w, strings.TrimRight(t.joinPadded(cells, widths, t.Group), " "))
				continue
			}
		}
		fmt.Fprintln(w, t.line(cells, widths))
	}
}

func (t *Table) line(cells []string, widths []int) string {
	return strings.TrimRight(t.joinPadded(cells, widths, -1), " ")
}

// joinPadded pads every cell except skip, which is already padded
func (t *Table) joinPadded(cells []string, widths []int, skip int) string {
	parts := make([]string, len(widths))
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == skip {
			parts[i] = cell
			continue
		}
		parts[i] = padRight(cell, widths[i])
	}
	return strings.Join(parts, "  ")
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
