package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/rewind/internal/presentation/graph"
	"github.com/aretw0/rewind/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		steps    []domain.HistoryStep
		contains []string
	}{
		{
			name:  "Empty History",
			steps: nil,
			contains: []string{
				"origin((\"origin\"))",
				"class origin current;",
			},
		},
		{
			name: "Entry Shapes",
			steps: []domain.HistoryStep{
				{Index: 0, Name: "Set title", Significant: true, Applied: true, Changes: 1},
				{Index: 1, Name: "Set cache", Significant: false, Applied: true, Current: true, Changes: 1},
			},
			contains: []string{
				"e0[\"Set title\"]",
				"e1([\"Set cache\"])",
				"origin --> e0",
				"e0 --> e1",
				"class e1 current;",
			},
		},
		{
			name: "Redo Tail",
			steps: []domain.HistoryStep{
				{Index: 0, Name: "Set a", Significant: true, Applied: true, Current: true, Changes: 1},
				{Index: 1, Name: "Move", Significant: true, Changes: 3},
			},
			contains: []string{
				"e0 -.-> e1",
				"e1[\"Move <br/> 3 changes\"]",
				"class e1 undone;",
				"class e0 current;",
			},
		},
		{
			name: "Label Escaping",
			steps: []domain.HistoryStep{
				{Index: 0, Name: `Rename "draft"`, Significant: true, Applied: true, Current: true, Changes: 1},
			},
			contains: []string{
				`e0["Rename 'draft'"]`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.steps)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
		})
	}
}
