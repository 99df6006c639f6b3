package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/codebased/codebased/internal/search"
)

var highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)).Bold(true)

// PrintResults writes one-shot search output to w: plain text, or
// ANSI-highlighted when color is true (per-TTY detection, spec §7).
func PrintResults(w io.Writer, results []search.Result, color bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}

	for i, r := range results {
		loc := r.Object.Path
		if r.Object.Coords.Start.Row > 0 {
			loc = fmt.Sprintf("%s:%d", r.Object.Path, r.Object.Coords.Start.Row+1)
		}

		fmt.Fprintf(w, "%d. %s (%s)", i+1, loc, r.Object.Name)
		if r.NameMatch {
			fmt.Fprint(w, " [name match]")
		}
		fmt.Fprintln(w)

		if color {
			fmt.Fprintln(w, highlightRendered(r))
		} else {
			fmt.Fprintln(w, r.Rendered)
		}
		fmt.Fprintln(w)
	}
}

// highlightRendered wraps each highlight span in r.Rendered with an
// ANSI style, applied back-to-front so earlier byte offsets stay valid.
func highlightRendered(r search.Result) string {
	out := r.Rendered
	for i := len(r.Highlights) - 1; i >= 0; i-- {
		span := r.Highlights[i]
		if span.Start < 0 || span.End > len(out) || span.Start >= span.End {
			continue
		}
		out = out[:span.Start] + highlightStyle.Render(out[span.Start:span.End]) + out[span.End:]
	}
	return out
}
