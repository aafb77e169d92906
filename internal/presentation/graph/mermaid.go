package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/rewind/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a history timeline.
// It applies semantic styling:
// - Significant entry: [Rectangle]
// - Insignificant entry: ([Stadium])
// - Entries past the current pointer (redo tail) are linked with dotted arrows.
// The current entry and the undone entries are highlighted.
func GenerateMermaid(steps []domain.HistoryStep) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("    origin((\"origin\"))\n")

	prev := "origin"
	for _, step := range steps {
		id := fmt.Sprintf("e%d", step.Index)

		opener, closer := "[", "]"
		if !step.Significant {
			opener, closer = "([", "])"
		}

		label := escape(step.Name)
		if step.Changes > 1 {
			label = fmt.Sprintf("%s <br/> %d changes", label, step.Changes)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", id, opener, label, closer))

		arrow := "-->"
		if !step.Applied {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", prev, arrow, id))
		prev = id
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef undone fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4 2,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	current := "origin"
	for _, step := range steps {
		if !step.Applied {
			sb.WriteString(fmt.Sprintf("    class e%d undone;\n", step.Index))
		}
		if step.Current {
			current = fmt.Sprintf("e%d", step.Index)
		}
	}
	sb.WriteString(fmt.Sprintf("    class %s current;\n", current))

	return sb.String()
}

// escape replaces the characters Mermaid labels cannot hold.
func escape(label string) string {
	s := strings.ReplaceAll(label, "\"", "'")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
