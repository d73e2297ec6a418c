package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PadRight pads or truncates a string to a fixed display width.
func PadRight(str string, width int) string {
	w := runewidth.StringWidth(str)
	if w > width {
		return runewidth.Truncate(str, width, "...")
	}
	return str + strings.Repeat(" ", width-w)
}

// Table lays out rows in columns as wide as their widest cell, with two
// spaces between columns. The last column is not padded.
func Table(rows [][]string) string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(PadRight(cell, widths[i]))
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}
