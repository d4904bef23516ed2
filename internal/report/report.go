// Package report renders cross-match results for people.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"ticguide/internal/crossmatch"
	"ticguide/internal/observation"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	// DefaultLineWidth is the width of the banner and the wrapped lines.
	DefaultLineWidth = 50
	// MinLineWidth is the narrowest line that still leaves room for a
	// sector list.
	MinLineWidth = listMargin + 1

	observedPrefix = "-> observed in sector(s): "
	// the usable width of a sector list is the line width less the prefix
	// and a margin of two
	listMargin = len(observedPrefix) + 2
)

// Render writes one block per target of the result, in result order. Each
// block is a banner with the target centered in it followed by one section
// per requested cadence. A lineWidth below MinLineWidth renders at
// DefaultLineWidth.
func Render(result crossmatch.Result, cadences []observation.Cadence, lineWidth int) string {
	if lineWidth < MinLineWidth {
		lineWidth = DefaultLineWidth
	}

	var out strings.Builder
	border := strings.Repeat("#", lineWidth)
	for _, id := range result.IDs() {
		out.WriteString("\n")
		out.WriteString(border)
		out.WriteString("\n")
		out.WriteString(center(fmt.Sprintf("TIC %d", id), lineWidth))
		out.WriteString("\n")
		out.WriteString(border)
		out.WriteString("\n")

		for _, cadence := range cadences {
			sectors := result.Sectors(id, cadence)
			if len(sectors) == 0 {
				fmt.Fprintf(&out, "\n0 sector(s) of %s cadence\n", cadence)
				continue
			}
			fmt.Fprintf(&out, "\n%d sector(s) of %s cadence\n%s", len(sectors), cadence, observedPrefix)
			writeSectors(&out, sectors, lineWidth-listMargin)
		}
	}
	return out.String()
}

// writeSectors writes the comma separated sectors, wrapping them once a line
// grows past width. Continuation lines are indented under the first.
func writeSectors(out *strings.Builder, sectors []int, width int) {
	parts := make([]string, len(sectors))
	for i, s := range sectors {
		parts[i] = strconv.Itoa(s)
	}
	joined := strings.Join(parts, ", ")
	if len(joined) <= width {
		out.WriteString(joined)
		out.WriteString("\n")
		return
	}

	indent := strings.Repeat(" ", len(observedPrefix))
	line := ""
	first := true
	for _, part := range parts {
		line += part + ", "
		if len(line) <= width {
			continue
		}
		if first {
			out.WriteString(line)
		} else {
			out.WriteString(indent)
			out.WriteString(ljust(line, width))
		}
		out.WriteString("\n")
		line = ""
		first = false
	}
	if line == "" {
		return
	}
	out.WriteString(indent)
	out.WriteString(ljust(strings.TrimSuffix(line, ", "), width))
	out.WriteString("\n")
}

func ljust(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// center pads s with spaces to width, an odd margin puts the extra space on
// the left only when both the margin and the width are odd.
func center(s string, width int) string {
	margin := width - len(s)
	if margin <= 0 {
		return s
	}
	left := margin/2 + (margin & width & 1)
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", margin-left)
}

// Summary writes a table of the per-cadence totals of every target in the
// result.
func Summary(w io.Writer, result crossmatch.Result, cadences []observation.Cadence) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := table.Row{"TIC"}
	for _, c := range cadences {
		header = append(header, c.String())
	}
	header = append(header, "Sectors")
	t.AppendHeader(header)

	for _, id := range result.IDs() {
		row := table.Row{id}
		var sectors []string
		for _, c := range cadences {
			row = append(row, result.Total(id, c))
			for _, s := range result.Sectors(id, c) {
				sectors = append(sectors, fmt.Sprintf("%c%d", c.Letter(), s))
			}
		}
		row = append(row, strings.Join(sectors, " "))
		t.AppendRow(row)
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
