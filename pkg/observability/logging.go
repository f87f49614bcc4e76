package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/convograph/pkg/domain"
)

// LoggingHooks logs every lifecycle event at info level, oracle calls at debug.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnVisit: func(ctx context.Context, e *domain.VisitEvent) {
			logger.InfoContext(ctx, "visit_committed",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"similarity", e.Similarity,
				"score", e.Score,
				"total_score", e.TotalScore,
			)
		},
		OnNoMatch: func(ctx context.Context, e *domain.MatchEvent) {
			logger.InfoContext(ctx, "no_confident_match",
				"session_id", e.SessionID,
				"node_id", e.BestNodeID,
				"similarity", e.Similarity,
			)
		},
		OnComplete: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_complete", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnReset: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_reset", "session_id", e.SessionID)
		},
		OnOracleCall: func(ctx context.Context, e *domain.OracleEvent) {
			logger.DebugContext(ctx, "oracle_call",
				"session_id", e.SessionID,
				"candidates", e.Candidates,
				"duration", e.Duration,
				"err", e.Err,
			)
		},
	}
}
