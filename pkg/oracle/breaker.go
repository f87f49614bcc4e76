package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
)

// BreakerConfig holds configuration for the Oracle circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state window after which counts reset
	Timeout     time.Duration // how long the breaker stays open

	// The breaker trips once MinRequests calls were seen and the failure
	// ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for the Oracle breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker fails Score fast once the Oracle keeps failing. Readiness errors and
// caller cancellations do not count as failures.
func Breaker(cfg BreakerConfig, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(next ports.Oracle) ports.Oracle {
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("oracle circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrOracleUnavailable) || errors.Is(err, context.Canceled)
			},
		})

		return &scoreWrapper{
			Oracle: next,
			score: func(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
				res, err := cb.Execute(func() (any, error) {
					return next.Score(ctx, query, candidates)
				})
				if err != nil {
					return nil, err
				}
				return res.([]float64), nil
			},
		}
	}
}
