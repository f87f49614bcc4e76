package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/convograph/pkg/domain"
)

// Metrics holds the Prometheus collectors fed by the lifecycle hooks.
type Metrics struct {
	Visits        *prometheus.CounterVec
	VisitScore    prometheus.Histogram
	NoMatch       prometheus.Counter
	Completions   prometheus.Counter
	Resets        prometheus.Counter
	InFlight      prometheus.Gauge
	OracleLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Visits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convograph_node_visits_total",
				Help: "Total number of committed node visits",
			},
			[]string{"node_id"},
		),
		VisitScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "convograph_visit_similarity",
			Help:    "Similarity of the matches that committed a visit",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 10),
		}),
		NoMatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convograph_no_confident_match_total",
			Help: "Utterances whose best candidate did not clear the confidence threshold",
		}),
		Completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convograph_sessions_completed_total",
			Help: "Sessions that reached the terminal node",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convograph_sessions_reset_total",
			Help: "Session resets",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "convograph_turns_in_flight",
			Help: "Utterances currently awaiting the oracle",
		}),
		OracleLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convograph_oracle_duration_seconds",
				Help:    "Duration of oracle scoring calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Visits, m.VisitScore, m.NoMatch, m.Completions, m.Resets, m.InFlight, m.OracleLatency)
	}
	return m
}

// Hooks returns lifecycle hooks recording into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnVisit: func(_ context.Context, e *domain.VisitEvent) {
			m.Visits.WithLabelValues(e.NodeID).Inc()
			m.VisitScore.Observe(e.Similarity)
		},
		OnNoMatch: func(context.Context, *domain.MatchEvent) {
			m.NoMatch.Inc()
		},
		OnComplete: func(context.Context, *domain.SessionEvent) {
			m.Completions.Inc()
		},
		OnReset: func(context.Context, *domain.SessionEvent) {
			m.Resets.Inc()
		},
		OnProcessing: func(_ context.Context, e *domain.ProcessingEvent) {
			if e.Processing {
				m.InFlight.Inc()
			} else {
				m.InFlight.Dec()
			}
		},
		OnOracleCall: func(_ context.Context, e *domain.OracleEvent) {
			m.OracleLatency.WithLabelValues(oracleResult(e.Err)).Observe(e.Duration.Seconds())
		},
	}
}

func oracleResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOracleUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
