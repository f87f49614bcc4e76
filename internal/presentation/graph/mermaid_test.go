package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/convograph/internal/presentation/graph"
	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/domain"
)

const stylingDoc = `{
  "stages": [{"id": "intro", "name": "Intro \"warmup\""}, {"id": "close"}],
  "nodes": [
    {"id": "greet-1", "stage_id": "intro", "order_index": 0, "content": "hi", "meta": {"name": "Greeting"}},
    {"id": "small.talk", "stage_id": "intro", "order_index": 1, "content": "weather", "node_type": "small_talk"},
    {"id": "end", "stage_id": "close", "order_index": 0, "content": "bye"}
  ],
  "edges": [
    {"from_node": "greet-1", "to_node": "small.talk", "meta": {"edge_type": "intra_stage"}},
    {"from_node": "greet-1", "to_node": "end"}
  ]
}`

func TestGenerateMermaid(t *testing.T) {
	g := testutils.MustGraph(t, stylingDoc)
	got := graph.GenerateMermaid(g, nil)

	tests := []struct {
		name string
		want string
	}{
		{"Stage Subgraph", `subgraph stage_intro["Intro 'warmup'"]`},
		{"Untitled Stage Uses ID", `subgraph stage_close["close"]`},
		{"Display Name", `greet_1["Greeting"]`},
		{"Humanized Node Type", `small_talk["small talk"]`},
		{"Terminal Shape And Reserved Word", `end_(("end"))`},
		{"Intra Stage Dotted", "greet_1 -.-> small_talk"},
		{"Inter Stage Solid", "greet_1 --> end_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(got, tt.want) {
				t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, tt.want)
			}
		})
	}
	assert.NotContains(t, got, "classDef", "no overlay styles without an overlay")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	overlay := graph.OverlayFromProjections([]domain.Projection{
		{NodeID: "A", Visited: true, Available: true, Highlighted: true},
		{NodeID: "B", Available: true},
	})
	overlay.VisitedNodes = append(overlay.VisitedNodes, "A", "gone")

	got := graph.GenerateMermaid(g, overlay)
	assert.Contains(t, got, "class A visited;")
	assert.Contains(t, got, "class B available;")
	assert.Contains(t, got, "class A highlighted;")
	assert.Equal(t, 1, strings.Count(got, "class A visited;"))
	assert.NotContains(t, got, "gone")
}
