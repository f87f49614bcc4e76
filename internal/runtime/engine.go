package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
	"github.com/aretw0/convograph/pkg/ports"
)

const (
	// DefaultConfidenceThreshold is the similarity a match must exceed to count as a visit.
	DefaultConfidenceThreshold = 0.5
	// DefaultHighlightTTL is how long the last visited node stays highlighted.
	DefaultHighlightTTL = 2 * time.Second
)

const tracerName = "github.com/aretw0/convograph/internal/runtime"

// Engine is the stateless traversal core. It holds the immutable graph and the
// Oracle; session state is always passed in and returned explicitly.
type Engine struct {
	graph     *graph.Graph
	oracle    ports.Oracle
	policy    ScoringPolicy
	threshold float64
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	tracer    trace.Tracer
	maxScore  float64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = domain.ComposeHooks(e.hooks, hooks)
	}
}

// WithScoringPolicy replaces the default DifficultyPolicy.
func WithScoringPolicy(p ScoringPolicy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithConfidenceThreshold sets the similarity a match must strictly exceed.
func WithConfidenceThreshold(t float64) EngineOption {
	return func(e *Engine) {
		e.threshold = t
	}
}

// WithHighlightTTL sets how long a visited node stays highlighted.
func WithHighlightTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer (default: the global provider).
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine creates an engine over an immutable graph. A nil oracle behaves as
// one that never becomes ready.
func NewEngine(g *graph.Graph, oracle ports.Oracle, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:     g,
		oracle:    oracle,
		policy:    DifficultyPolicy{},
		threshold: DefaultConfidenceThreshold,
		ttl:       DefaultHighlightTTL,
		now:       time.Now,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.maxScore = MaxScore(g, e.policy)
	return e
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Policy returns the active scoring policy.
func (e *Engine) Policy() ScoringPolicy { return e.policy }

// Threshold returns the confidence threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// HighlightTTL returns how long highlights last.
func (e *Engine) HighlightTTL() time.Duration { return e.ttl }

// MaxScore returns the maximum achievable total score under the active policy.
func (e *Engine) MaxScore() float64 { return e.maxScore }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// Ready reports whether the Oracle can be called.
func (e *Engine) Ready() bool {
	return e.oracle != nil && e.oracle.Ready()
}

// Start creates the initial state of a session. An empty id gets a random UUID.
func (e *Engine) Start(ctx context.Context, sessionID string) *domain.State {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	e.logger.Debug("session started", "session_id", sessionID, "nodes", e.graph.Len(), "max_score", e.maxScore)
	return domain.NewState(sessionID, e.maxScore)
}

// Navigate runs one utterance turn against state and returns the resulting state
// and outcome. The input state is not modified. On any outcome other than
// OutcomeVisited the returned state equals the input.
//
// Errors are returned alongside OutcomeLoading (domain.ErrOracleUnavailable)
// and OutcomeFailed (domain.ErrOracleFailure); both leave the state untouched.
func (e *Engine) Navigate(ctx context.Context, state *domain.State, utterance string) (*domain.State, domain.Outcome, error) {
	turn, err := e.Evaluate(ctx, state, utterance)
	if turn == nil {
		return nil, domain.Outcome{}, err
	}
	turn.Commit(ctx)
	return turn.Next, turn.Outcome, err
}

// Turn is the evaluated but unreported result of one utterance.
// Lifecycle hooks fire on Commit, so a caller that drops the turn reports nothing.
type Turn struct {
	Prev    *domain.State
	Next    *domain.State
	Outcome domain.Outcome

	engine *Engine
	visit  *Visit
}

// Evaluate is Navigate without the hooks. The returned turn is nil only when
// state is nil.
func (e *Engine) Evaluate(ctx context.Context, state *domain.State, utterance string) (*Turn, error) {
	next, out, visit, err := e.navigate(ctx, state, utterance)
	if next == nil {
		return nil, err
	}
	return &Turn{Prev: state, Next: next, Outcome: out, engine: e, visit: visit}, err
}

// Commit reports the turn to the lifecycle hooks.
func (t *Turn) Commit(ctx context.Context) {
	t.engine.emitOutcome(ctx, t.Prev, t.Next, t.Outcome, t.visit)
}

func (e *Engine) navigate(ctx context.Context, state *domain.State, utterance string) (*domain.State, domain.Outcome, *Visit, error) {
	if state == nil {
		return nil, domain.Outcome{}, nil, fmt.Errorf("navigate: nil state")
	}
	utterance = strings.TrimSpace(utterance)
	out := domain.Outcome{Kind: domain.OutcomeIdle, Utterance: utterance, Complete: state.Complete}
	if utterance == "" {
		return state.Snapshot(), out, nil, nil
	}

	candidates := Candidates(e.graph, state.VisitedSet())
	out.Candidates = len(candidates)
	if len(candidates) == 0 {
		return state.Snapshot(), out, nil, nil
	}

	if !e.Ready() {
		out.Kind = domain.OutcomeLoading
		return state.Snapshot(), out, nil, domain.ErrOracleUnavailable
	}

	ctx, span := e.tracer.Start(ctx, "convograph.Navigate", trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.Int("candidates", len(candidates)),
	))
	defer span.End()

	scores, err := e.score(ctx, state.SessionID, utterance, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrOracleUnavailable) {
			out.Kind = domain.OutcomeLoading
			return state.Snapshot(), out, nil, err
		}
		out.Kind = domain.OutcomeFailed
		e.logger.Warn("oracle call failed", "session_id", state.SessionID, "error", err)
		return state.Snapshot(), out, nil, fmt.Errorf("%w: %w", domain.ErrOracleFailure, err)
	}

	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	bestNode := candidates[best]
	out.Similarity = scores[best]
	span.SetAttributes(attribute.String("best.node_id", bestNode.ID), attribute.Float64("best.similarity", scores[best]))

	if scores[best] <= e.threshold {
		out.Kind = domain.OutcomeNoMatch
		e.logger.Debug("no confident match", "session_id", state.SessionID, "node_id", bestNode.ID, "similarity", scores[best])
		return state.Snapshot(), out, &Visit{NodeID: bestNode.ID, Similarity: scores[best]}, nil
	}

	next, visit, err := ApplyVisit(e.graph, e.policy, state, bestNode.ID, scores[best], e.now().Add(e.ttl))
	if err != nil {
		// The node was visited concurrently; treat it as a miss.
		out.Kind = domain.OutcomeNoMatch
		e.logger.Debug("match lost to concurrent visit", "session_id", state.SessionID, "node_id", bestNode.ID, "error", err)
		return state.Snapshot(), out, &Visit{NodeID: bestNode.ID, Similarity: scores[best]}, nil
	}

	out.Kind = domain.OutcomeVisited
	out.NodeID = visit.NodeID
	out.Score = visit.Score
	out.Complete = next.Complete
	out.Feedback = SelectResponse(bestNode, visit.Similarity, e.threshold)

	e.logger.Info("node visited",
		"session_id", state.SessionID,
		"node_id", visit.NodeID,
		"similarity", visit.Similarity,
		"score", visit.Score,
		"candidates", len(candidates),
	)
	return next, out, &visit, nil
}

// score calls the Oracle and validates the reply shape.
func (e *Engine) score(ctx context.Context, sessionID, utterance string, candidates []domain.Node) ([]float64, error) {
	req := make([]ports.Candidate, len(candidates))
	for i, n := range candidates {
		req[i] = ports.Candidate{ID: n.ID, Content: n.Content}
	}

	started := time.Now()
	scores, err := e.oracle.Score(ctx, utterance, req)
	if err == nil {
		err = checkScores(scores, req)
	}
	e.emitOracleCall(ctx, sessionID, len(req), time.Since(started), err)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = clamp01(s)
	}
	return out, nil
}

// checkScores rejects replies that cannot be ranked. Finite values outside
// [0, 1] are clamped later; NaN and infinities are not.
func checkScores(scores []float64, req []ports.Candidate) error {
	if len(scores) != len(req) {
		return fmt.Errorf("oracle returned %d scores for %d candidates", len(scores), len(req))
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("oracle returned non-finite score %v for node %q", s, req[i].ID)
		}
	}
	return nil
}

// Reset returns the initial state for the session.
func (e *Engine) Reset(ctx context.Context, state *domain.State) *domain.State {
	next := ResetState(state)
	next.MaxScore = e.maxScore
	e.emitSession(ctx, e.hooks.OnReset, domain.EventSessionReset, state.SessionID, "")
	e.logger.Debug("session reset", "session_id", state.SessionID)
	return next
}

// ExpireHighlight drops the highlight if it has expired at the engine's clock.
// It reports whether anything changed.
func (e *Engine) ExpireHighlight(ctx context.Context, state *domain.State) (*domain.State, bool) {
	if state.Highlight == nil || state.HighlightedAt(e.now()) != "" {
		return state, false
	}
	nodeID := state.Highlight.NodeID
	next := state.Snapshot()
	next.Highlight = nil
	e.emitSession(ctx, e.hooks.OnHighlightCleared, domain.EventHighlightCleared, state.SessionID, nodeID)
	return next, true
}

// Project returns the per-node runtime view of state.
func (e *Engine) Project(state *domain.State) []domain.Projection {
	return Project(e.graph, state, e.now())
}

// Progress summarizes state.
func (e *Engine) Progress(state *domain.State) domain.Progress {
	return Summarize(e.graph, state)
}

// EmitProcessing reports a busy/idle transition to the hooks.
func (e *Engine) EmitProcessing(ctx context.Context, sessionID string, processing bool) {
	if e.hooks.OnProcessing == nil {
		return
	}
	e.hooks.OnProcessing(ctx, &domain.ProcessingEvent{
		EventBase:  e.base(domain.EventProcessingChanged, sessionID),
		Processing: processing,
	})
}

func (e *Engine) emitOutcome(ctx context.Context, prev, next *domain.State, out domain.Outcome, visit *Visit) {
	if prev == nil {
		return
	}
	switch out.Kind {
	case domain.OutcomeNoMatch:
		if e.hooks.OnNoMatch != nil {
			ev := &domain.MatchEvent{
				EventBase:  e.base(domain.EventNoConfidentMatch, prev.SessionID),
				Utterance:  out.Utterance,
				Similarity: out.Similarity,
			}
			if visit != nil {
				ev.BestNodeID = visit.NodeID
			}
			e.hooks.OnNoMatch(ctx, ev)
		}
	case domain.OutcomeVisited:
		if e.hooks.OnVisit != nil {
			e.hooks.OnVisit(ctx, &domain.VisitEvent{
				EventBase:  e.base(domain.EventVisitCommitted, prev.SessionID),
				NodeID:     out.NodeID,
				Similarity: out.Similarity,
				Score:      out.Score,
				TotalScore: next.TotalScore,
				Feedback:   out.FeedbackText(),
			})
		}
		if visit != nil && visit.Completed {
			e.emitSession(ctx, e.hooks.OnComplete, domain.EventSessionComplete, prev.SessionID, out.NodeID)
		}
	}
}

func (e *Engine) emitOracleCall(ctx context.Context, sessionID string, candidates int, d time.Duration, err error) {
	if e.hooks.OnOracleCall == nil {
		return
	}
	e.hooks.OnOracleCall(ctx, &domain.OracleEvent{
		EventBase:  e.base(domain.EventOracleCall, sessionID),
		Candidates: candidates,
		Duration:   d,
		Err:        err,
	})
}

func (e *Engine) emitSession(ctx context.Context, hook func(context.Context, *domain.SessionEvent), typ domain.EventType, sessionID, nodeID string) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.SessionEvent{EventBase: e.base(typ, sessionID), NodeID: nodeID})
}

func (e *Engine) base(typ domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: typ, SessionID: sessionID}
}
