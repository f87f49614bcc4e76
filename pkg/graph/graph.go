package graph

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/aretw0/convograph/pkg/domain"
)

// DroppedEdge records an edge that was skipped at load time.
type DroppedEdge struct {
	Index  int // position in the document's edge list
	Edge   domain.Edge
	Reason string
}

// Graph is the immutable, indexed form of a dialogue graph document.
// It is safe for concurrent use by any number of sessions.
type Graph struct {
	stages  []domain.Stage
	nodes   []domain.Node
	edges   []domain.Edge
	dropped []DroppedEdge

	byID      map[string]int
	stageRank map[string]int
	gates     map[string][]domain.Edge
	terminal  string
}

// LoadFile reads and loads a graph document, inferring the format from the extension.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph document: %w", err)
	}
	g, err := LoadBytes(data, FormatFromPath(path))
	if le, ok := err.(*LoadError); ok {
		le.Source = path
	}
	return g, err
}

// Load reads a whole document from r.
func Load(r io.Reader, format Format) (*Graph, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read graph document: %w", err)
	}
	return LoadBytes(buf.Bytes(), format)
}

// LoadBytes decodes and validates a graph document.
func LoadBytes(data []byte, format Format) (*Graph, error) {
	doc, err := decode(data, format)
	if err != nil {
		return nil, &LoadError{cause: err}
	}
	if problems := structuralProblems(doc); len(problems) > 0 {
		return nil, &LoadError{Problems: problems}
	}

	stages := make([]domain.Stage, len(doc.Stages))
	for i, rs := range doc.Stages {
		order := i
		if rs.Order != nil {
			order = *rs.Order
		}
		stages[i] = domain.Stage{ID: rs.ID, Name: rs.Name, Order: order}
	}

	nodes := make([]domain.Node, len(doc.Nodes))
	for i, rn := range doc.Nodes {
		difficulty := 0
		if d := rn.difficulty(); d != nil {
			difficulty = *d
		}
		var responses []domain.Response
		for _, rr := range rn.responses() {
			responses = append(responses, domain.Response{Text: rr.Text, Score: rr.Score})
		}
		nodes[i] = domain.Node{
			ID:         rn.ID,
			StageID:    rn.StageID,
			OrderIndex: rn.OrderIndex,
			Content:    rn.Content,
			Name:       rn.name(),
			NodeType:   rn.NodeType,
			Difficulty: difficulty,
			Responses:  responses,
		}
	}

	edges := make([]domain.Edge, len(doc.Edges))
	for i, re := range doc.Edges {
		from, to := re.endpoints()
		edges[i] = domain.Edge{From: from, To: to, Type: domain.EdgeType(re.edgeType())}
	}

	return New(stages, nodes, edges)
}

// New builds a Graph from already-decoded values.
//
// Duplicate ids, nodes without an id or stage, nodes referencing an unknown
// stage and negative difficulties are fatal. Edges whose endpoints are missing
// or unknown are dropped and reported through DroppedEdges.
func New(stages []domain.Stage, nodes []domain.Node, edges []domain.Edge) (*Graph, error) {
	g := &Graph{
		stages:    make([]domain.Stage, len(stages)),
		nodes:     make([]domain.Node, 0, len(nodes)),
		byID:      make(map[string]int, len(nodes)),
		stageRank: make(map[string]int, len(stages)),
		gates:     make(map[string][]domain.Edge),
	}

	var problems []Problem

	// Sort document indices so problems point at the input position.
	// Stable: stages sharing an order keep document order.
	order := make([]int, len(stages))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(stages[a].Order, stages[b].Order) })
	for rank, src := range order {
		s := stages[src]
		g.stages[rank] = s
		path := fmt.Sprintf("stages[%d].id", src)
		if s.ID == "" {
			problems = append(problems, Problem{Path: path, Reason: "is required"})
			continue
		}
		if _, dup := g.stageRank[s.ID]; dup {
			problems = append(problems, Problem{Path: path, Reason: fmt.Sprintf("duplicate stage id %q", s.ID)})
			continue
		}
		g.stageRank[s.ID] = rank
	}

	for i, n := range nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		switch {
		case n.ID == "":
			problems = append(problems, Problem{Path: path + ".id", Reason: "is required"})
			continue
		case n.StageID == "":
			problems = append(problems, Problem{Path: path + ".stage_id", Reason: "is required"})
			continue
		case n.Difficulty < 0:
			problems = append(problems, Problem{Path: path + ".difficulty", Reason: "must be >= 0"})
			continue
		}
		if _, dup := g.byID[n.ID]; dup {
			problems = append(problems, Problem{Path: path + ".id", Reason: fmt.Sprintf("duplicate node id %q", n.ID)})
			continue
		}
		if _, ok := g.stageRank[n.StageID]; !ok {
			problems = append(problems, Problem{Path: path + ".stage_id", Reason: fmt.Sprintf("unknown stage %q", n.StageID)})
			continue
		}
		if n.Difficulty == 0 {
			n.Difficulty = domain.DefaultDifficulty
		}
		n.Responses = slices.Clone(n.Responses)
		g.byID[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	if len(problems) > 0 {
		return nil, &LoadError{Problems: problems}
	}

	for i, e := range edges {
		switch {
		case e.From == "" || e.To == "":
			g.dropped = append(g.dropped, DroppedEdge{Index: i, Edge: e, Reason: "missing endpoint"})
			continue
		case !g.Has(e.From):
			g.dropped = append(g.dropped, DroppedEdge{Index: i, Edge: e, Reason: fmt.Sprintf("unknown source %q", e.From)})
			continue
		case !g.Has(e.To):
			g.dropped = append(g.dropped, DroppedEdge{Index: i, Edge: e, Reason: fmt.Sprintf("unknown target %q", e.To)})
			continue
		}
		g.edges = append(g.edges, e)
		if g.isGate(e) {
			g.gates[e.To] = append(g.gates[e.To], e)
		}
	}

	g.terminal = g.findTerminal()
	return g, nil
}

// isGate reports whether e crosses stages and is not marked as a layout-only edge.
func (g *Graph) isGate(e domain.Edge) bool {
	if e.Type == domain.EdgeIntraStage {
		return false
	}
	from := g.nodes[g.byID[e.From]]
	to := g.nodes[g.byID[e.To]]
	return from.StageID != to.StageID
}

// findTerminal picks the highest order_index node of the last stage.
// Ties go to the node declared first.
func (g *Graph) findTerminal() string {
	if len(g.stages) == 0 {
		return ""
	}
	last := g.stages[len(g.stages)-1].ID
	terminal := ""
	best := 0
	for _, n := range g.nodes {
		if n.StageID != last {
			continue
		}
		if terminal == "" || n.OrderIndex > best {
			terminal, best = n.ID, n.OrderIndex
		}
	}
	return terminal
}

// Stages returns the stages sorted by order.
func (g *Graph) Stages() []domain.Stage { return slices.Clone(g.stages) }

// Nodes returns the nodes in document order.
func (g *Graph) Nodes() []domain.Node { return slices.Clone(g.nodes) }

// Edges returns the edges that survived loading.
func (g *Graph) Edges() []domain.Edge { return slices.Clone(g.edges) }

// DroppedEdges returns the edges skipped at load time.
func (g *Graph) DroppedEdges() []DroppedEdge { return slices.Clone(g.dropped) }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (domain.Node, bool) {
	i, ok := g.byID[id]
	if !ok {
		return domain.Node{}, false
	}
	return g.nodes[i], true
}

// Gates returns the inter-stage edges pointing at id. The slice must not be modified.
func (g *Graph) Gates(id string) []domain.Edge {
	return g.gates[id]
}

// IsGate reports whether an edge of this graph participates in availability gating.
func (g *Graph) IsGate(e domain.Edge) bool {
	if !g.Has(e.From) || !g.Has(e.To) {
		return false
	}
	return g.isGate(e)
}

// Stage returns a stage by id.
func (g *Graph) Stage(id string) (domain.Stage, bool) {
	i, ok := g.stageRank[id]
	if !ok {
		return domain.Stage{}, false
	}
	return g.stages[i], true
}

// NodesInStage returns the nodes of a stage sorted by order_index.
func (g *Graph) NodesInStage(stageID string) []domain.Node {
	var out []domain.Node
	for _, n := range g.nodes {
		if n.StageID == stageID {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Node) int { return cmp.Compare(a.OrderIndex, b.OrderIndex) })
	return out
}

// Terminal returns the designated terminal node id, if any.
func (g *Graph) Terminal() (string, bool) {
	return g.terminal, g.terminal != ""
}
