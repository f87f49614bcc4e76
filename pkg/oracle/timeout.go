package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/convograph/pkg/ports"
)

// Timeout bounds every Score call. A zero or negative duration disables it.
func Timeout(d time.Duration) Middleware {
	return func(next ports.Oracle) ports.Oracle {
		if d <= 0 {
			return next
		}
		return &scoreWrapper{
			Oracle: next,
			score: func(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				scores, err := next.Score(ctx, query, candidates)
				if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, fmt.Errorf("oracle timed out after %s: %w", d, err)
				}
				return scores, err
			},
		}
	}
}
