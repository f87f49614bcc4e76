package runtime

import (
	"fmt"
	"math"
	"strings"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
)

// ScoringPolicy turns a match similarity into a node score.
// NodeScore must never exceed MaxNodeScore for the same node.
type ScoringPolicy interface {
	Name() string
	NodeScore(similarity float64, n domain.Node) float64
	MaxNodeScore(n domain.Node) float64
}

// DifficultyPolicy awards up to 10 points for similarity plus a difficulty bonus,
// capped at 10: min(10, sim*10 + difficulty*2). The per-node maximum is
// 10 + difficulty*2.
type DifficultyPolicy struct{}

func (DifficultyPolicy) Name() string { return "difficulty" }

func (DifficultyPolicy) NodeScore(similarity float64, n domain.Node) float64 {
	return min(10, clamp01(similarity)*10+float64(n.Difficulty)*2)
}

func (DifficultyPolicy) MaxNodeScore(n domain.Node) float64 {
	return 10 + float64(n.Difficulty)*2
}

// PercentagePolicy scores a node as its similarity percentage. Difficulty is ignored.
type PercentagePolicy struct{}

func (PercentagePolicy) Name() string { return "percentage" }

func (PercentagePolicy) NodeScore(similarity float64, _ domain.Node) float64 {
	return clamp01(similarity) * 100
}

func (PercentagePolicy) MaxNodeScore(domain.Node) float64 { return 100 }

// ParsePolicy resolves a policy by name.
func ParsePolicy(name string) (ScoringPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "difficulty":
		return DifficultyPolicy{}, nil
	case "percentage", "percent":
		return PercentagePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown scoring policy %q", name)
	}
}

// MaxScore sums the per-node maximum over the whole graph.
func MaxScore(g *graph.Graph, p ScoringPolicy) float64 {
	var total float64
	for _, n := range g.Nodes() {
		total += p.MaxNodeScore(n)
	}
	return total
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}
