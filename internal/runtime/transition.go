package runtime

import (
	"fmt"
	"time"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
)

// Visit describes one committed visit.
type Visit struct {
	NodeID     string
	Similarity float64
	Score      float64
	// Completed is true when this visit flipped the session to complete.
	Completed bool
}

// ApplyVisit returns a copy of state with nodeID visited and scored.
// The input state is never modified.
func ApplyVisit(g *graph.Graph, policy ScoringPolicy, state *domain.State, nodeID string, similarity float64, highlightUntil time.Time) (*domain.State, Visit, error) {
	node, ok := g.Node(nodeID)
	if !ok {
		return nil, Visit{}, fmt.Errorf("%w: %s", domain.ErrUnknownNode, nodeID)
	}
	if state.HasVisited(nodeID) {
		return nil, Visit{}, fmt.Errorf("%w: %s", domain.ErrAlreadyVisited, nodeID)
	}

	next := state.Snapshot()
	score := policy.NodeScore(similarity, node)

	next.Visited = append(next.Visited, nodeID)
	next.Scores[nodeID] = score
	next.TotalScore = min(next.TotalScore+score, next.MaxScore)
	next.Highlight = &domain.Highlight{NodeID: nodeID, ExpiresAt: highlightUntil}
	next.Complete = IsComplete(g, next.VisitedSet())

	return next, Visit{
		NodeID:     nodeID,
		Similarity: similarity,
		Score:      score,
		Completed:  next.Complete && !state.Complete,
	}, nil
}

// ResetState returns the initial state for the session, keeping its id and max score.
func ResetState(state *domain.State) *domain.State {
	return domain.NewState(state.SessionID, state.MaxScore)
}
