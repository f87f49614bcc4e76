package runtime

import (
	"math"

	"github.com/aretw0/convograph/pkg/domain"
)

// SelectResponse picks the feedback variant whose quality score is closest to how
// far the similarity cleared the confidence threshold, normalized to [0,1].
// Ties go to the first declared variant. It returns nil when the node has none.
func SelectResponse(n domain.Node, similarity, threshold float64) *domain.Response {
	if len(n.Responses) == 0 {
		return nil
	}
	target := 1.0
	if threshold < 1 {
		target = clamp01((similarity - threshold) / (1 - threshold))
	}

	best := 0
	bestDist := math.Inf(1)
	for i, r := range n.Responses {
		if d := math.Abs(r.Score - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	r := n.Responses[best]
	return &r
}
