package runtime

import "github.com/aretw0/convograph/pkg/graph"

// IsComplete reports whether the graph's terminal node is in the visited set.
// Graphs without a terminal node never complete.
func IsComplete(g *graph.Graph, visited map[string]struct{}) bool {
	terminal, ok := g.Terminal()
	if !ok {
		return false
	}
	_, done := visited[terminal]
	return done
}
