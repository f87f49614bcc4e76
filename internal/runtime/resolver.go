package runtime

import (
	"time"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
)

// IsAvailable reports whether a node is unlocked under the visited set.
//
// A node is available when it is visited, has no inter-stage gate, or at least one
// of its inter-stage predecessors is visited. Intra-stage edges are never consulted.
func IsAvailable(g *graph.Graph, id string, visited map[string]struct{}) bool {
	if _, ok := visited[id]; ok {
		return true
	}
	gates := g.Gates(id)
	if len(gates) == 0 {
		return true
	}
	for _, e := range gates {
		if _, ok := visited[e.From]; ok {
			return true
		}
	}
	return false
}

// Resolve derives the visited and available flags of every node, in graph order.
// It depends only on its arguments.
func Resolve(g *graph.Graph, visited map[string]struct{}) []domain.Projection {
	nodes := g.Nodes()
	out := make([]domain.Projection, len(nodes))
	for i, n := range nodes {
		_, seen := visited[n.ID]
		out[i] = domain.Projection{
			NodeID:    n.ID,
			Visited:   seen,
			Available: IsAvailable(g, n.ID, visited),
		}
	}
	return out
}

// Project is Resolve plus the session-specific score and highlight at now.
func Project(g *graph.Graph, state *domain.State, now time.Time) []domain.Projection {
	projections := Resolve(g, state.VisitedSet())
	highlighted := state.HighlightedAt(now)
	for i := range projections {
		p := &projections[i]
		if score, ok := state.Scores[p.NodeID]; ok && p.Visited {
			s := score
			p.Score = &s
		}
		p.Highlighted = highlighted != "" && p.NodeID == highlighted
	}
	return projections
}

// Candidates returns the available, unvisited nodes in graph order.
func Candidates(g *graph.Graph, visited map[string]struct{}) []domain.Node {
	var out []domain.Node
	for _, n := range g.Nodes() {
		if _, seen := visited[n.ID]; seen {
			continue
		}
		if IsAvailable(g, n.ID, visited) {
			out = append(out, n)
		}
	}
	return out
}

// Summarize computes the progress counters shown alongside a session.
func Summarize(g *graph.Graph, state *domain.State) domain.Progress {
	visited := state.VisitedSet()
	p := domain.Progress{
		Visited:    len(state.Visited),
		Total:      g.Len(),
		Available:  len(Candidates(g, visited)),
		TotalScore: state.TotalScore,
		MaxScore:   state.MaxScore,
		Complete:   state.Complete,
	}
	if state.MaxScore > 0 {
		p.Percent = state.TotalScore / state.MaxScore * 100
	}
	return p
}
