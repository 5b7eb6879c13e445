package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

const columnGap = "  "

// WriteTable writes rows under headers. Columns whose cells are all integers
// (counts, seqs, button ids) are right-aligned so magnitudes line up; the
// last column is never padded.
func WriteTable(w io.Writer, headers []string, rows [][]string) error {
	cols := len(headers)
	for i, row := range rows {
		if cols == 0 {
			cols = len(row)
		}
		if len(row) != cols {
			return fmt.Errorf("table row %d has %d columns, expected %d", i, len(row), cols)
		}
	}

	widths := make([]int, cols)
	numeric := make([]bool, cols)
	for c := range numeric {
		numeric[c] = len(rows) > 0
	}
	measure := func(row []string, isHeader bool) {
		for c, cell := range row {
			widths[c] = max(widths[c], utf8.RuneCountInString(cell))
			if !isHeader && cell != "" {
				if _, err := strconv.Atoi(cell); err != nil {
					numeric[c] = false
				}
			}
		}
	}
	if len(headers) > 0 {
		measure(headers, true)
	}
	for _, row := range rows {
		measure(row, false)
	}

	var b strings.Builder
	line := func(row []string) {
		for c, cell := range row {
			if c > 0 {
				b.WriteString(columnGap)
			}
			pad := strings.Repeat(" ", widths[c]-utf8.RuneCountInString(cell))
			switch {
			case numeric[c]:
				b.WriteString(pad + cell)
			case c == len(row)-1:
				b.WriteString(cell)
			default:
				b.WriteString(cell + pad)
			}
		}
		b.WriteByte('\n')
	}
	if len(headers) > 0 {
		line(headers)
	}
	for _, row := range rows {
		line(row)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func OrNone(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "<none>"
	}
	return strings.TrimSpace(*v)
}

// Bar renders count as a run of block characters scaled against peak.
// A non-zero count always gets at least one block.
func Bar(count, peak, width int) string {
	if count <= 0 || peak <= 0 || width <= 0 {
		return ""
	}
	n := min(max(count*width/peak, 1), width)
	return strings.Repeat("█", n)
}
