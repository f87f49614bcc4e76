package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/convograph/pkg/adapters/memory"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
)

// Builder accumulates stages, nodes and edges of one document.
type Builder struct {
	name   string
	stages []*StageBuilder
	nodes  []*NodeBuilder
	edges  []domain.Edge
}

// New creates a builder. The name becomes the document name of Source.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Stage returns the stage with the given id, declaring it after the existing
// ones when it is new.
func (b *Builder) Stage(id string) *StageBuilder {
	for _, s := range b.stages {
		if s.stage.ID == id {
			return s
		}
	}
	s := &StageBuilder{
		stage:   domain.Stage{ID: id, Order: len(b.stages)},
		builder: b,
	}
	b.stages = append(b.stages, s)
	return s
}

// Edge adds a raw edge. Prefer NodeBuilder.After and NodeBuilder.Follows.
func (b *Builder) Edge(from, to string, typ domain.EdgeType) *Builder {
	b.edges = append(b.edges, domain.Edge{From: from, To: to, Type: typ})
	return b
}

func (b *Builder) parts() ([]domain.Stage, []domain.Node, []domain.Edge) {
	stages := make([]domain.Stage, len(b.stages))
	for i, s := range b.stages {
		stages[i] = s.stage
	}
	nodes := make([]domain.Node, len(b.nodes))
	for i, n := range b.nodes {
		nodes[i] = n.node
	}
	edges := make([]domain.Edge, len(b.edges))
	copy(edges, b.edges)
	return stages, nodes, edges
}

// Build validates the document and returns the graph.
func (b *Builder) Build() (*graph.Graph, error) {
	g, err := graph.New(b.parts())
	if err != nil {
		return nil, fmt.Errorf("failed to build graph %q: %w", b.name, err)
	}
	return g, nil
}

// Document renders the builder as a JSON graph document.
func (b *Builder) Document() ([]byte, error) {
	stages, nodes, edges := b.parts()
	return json.MarshalIndent(struct {
		Stages []domain.Stage `json:"stages"`
		Nodes  []domain.Node  `json:"nodes"`
		Edges  []domain.Edge  `json:"edges"`
	}{stages, nodes, edges}, "", "  ")
}

// Source validates the document and wraps it in an in-memory source named
// "<name>.json". The builder is not tied to the source afterwards; use
// Replace to publish a new revision to watchers.
func (b *Builder) Source() (*memory.Source, error) {
	if _, err := b.Build(); err != nil {
		return nil, err
	}
	data, err := b.Document()
	if err != nil {
		return nil, err
	}
	return memory.NewSource(data, b.name+".json"), nil
}
