package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/muesli/termenv"
)

// RenderTimeline writes one line per history entry, newest last.
// The current entry is marked with ">", undone entries are faint and
// insignificant entries carry a "~".
func RenderTimeline(w io.Writer, steps []domain.HistoryStep, opts ...termenv.OutputOption) {
	out := termenv.NewOutput(w, opts...)
	if len(steps) == 0 {
		fmt.Fprintln(w, out.String("(empty history)").Faint())
		return
	}

	width := 0
	for _, s := range steps {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}

	for _, s := range steps {
		marker := " "
		if s.Current {
			marker = ">"
		}
		flag := " "
		if !s.Significant {
			flag = "~"
		}
		line := fmt.Sprintf("%s %3d %s %-*s  %d", marker, s.Index, flag, width, s.Name, s.Changes)

		style := out.String(line)
		switch {
		case s.Current:
			style = style.Bold().Foreground(out.Color("#fbc02d"))
		case !s.Applied:
			style = style.Faint()
		}
		fmt.Fprintln(w, style)
	}
}

// Report renders the history as a markdown document.
func Report(title string, view domain.HistoryView) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	if view.Session != "" {
		sb.WriteString(fmt.Sprintf("Session `%s`. ", view.Session))
	}
	sb.WriteString(fmt.Sprintf("Limit %d, %d entries.\n\n", view.Limit, len(view.Steps)))

	if len(view.Steps) == 0 {
		sb.WriteString("_The history is empty._\n")
		return sb.String()
	}

	sb.WriteString("| # | Entry | Changes | Significant | State |\n")
	sb.WriteString("|---|-------|---------|-------------|-------|\n")
	for _, s := range view.Steps {
		state := "undone"
		switch {
		case s.Current:
			state = "**current**"
		case s.Applied:
			state = "applied"
		}
		significant := "yes"
		if !s.Significant {
			significant = "no"
		}
		name := strings.ReplaceAll(s.Name, "|", "\\|")
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %s | %s |\n", s.Index, name, s.Changes, significant, state))
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("- Undo: %s\n", availability(view.CanUndo)))
	sb.WriteString(fmt.Sprintf("- Redo: %s\n", availability(view.CanRedo)))
	return sb.String()
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}
