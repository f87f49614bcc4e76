package runtime_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/domain"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time { return func() time.Time { return epoch } }

func TestEngine_VisitUnlocksNextStage(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	engine := runtime.NewEngine(g, oracle, runtime.WithClock(fixedClock()))
	ctx := context.Background()

	state := engine.Start(ctx, "s1")
	assert.Equal(t, 26.0, state.MaxScore) // (10+2) + (10+4)

	next, out, err := engine.Navigate(ctx, state, "hello there")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeVisited, out.Kind)
	assert.Equal(t, "A", out.NodeID)
	assert.InDelta(t, 10.0, out.Score, 1e-9) // min(10, 9 + 2)
	require.NotNil(t, out.Feedback)
	assert.Equal(t, "great", out.Feedback.Text) // target 0.8
	assert.Equal(t, 1, out.Candidates)

	assert.Equal(t, []string{"A"}, next.Visited)
	assert.InDelta(t, 10.0, next.TotalScore, 1e-9)
	require.NotNil(t, next.Highlight)
	assert.Equal(t, "A", next.Highlight.NodeID)
	assert.Equal(t, epoch.Add(runtime.DefaultHighlightTTL), next.Highlight.ExpiresAt)

	projections := engine.Project(next)
	assert.True(t, projections[0].Visited)
	assert.True(t, projections[0].Available)
	assert.True(t, projections[1].Available, "B unlocks once A is visited")

	// The input state is untouched.
	assert.Empty(t, state.Visited)
}

func TestEngine_NoConfidentMatch(t *testing.T) {
	g := testutils.MustGraph(t, testutils.OrGateDoc)
	oracle := testutils.NewFakeOracle()
	oracle.Default = 0.3
	ctx := context.Background()

	var missed []string
	engine := runtime.NewEngine(g, oracle, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNoMatch: func(_ context.Context, e *domain.MatchEvent) { missed = append(missed, e.Utterance) },
	}))

	state := engine.Start(ctx, "s")
	next, out, err := engine.Navigate(ctx, state, "xyz")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoMatch, out.Kind)
	assert.Empty(t, next.Visited)
	assert.Equal(t, []string{"xyz"}, missed)
}

func TestEngine_ThresholdIsExclusive(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle().Script("hi", "A", 0.5)
	engine := runtime.NewEngine(g, oracle)

	_, out, err := engine.Navigate(context.Background(), engine.Start(context.Background(), "s"), "hi")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoMatch, out.Kind)
}

func TestEngine_IdleWithoutCandidates(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle()
	engine := runtime.NewEngine(g, oracle)
	ctx := context.Background()

	state := engine.Start(ctx, "s")
	state.Visited = []string{"A", "B"}

	next, out, err := engine.Navigate(ctx, state, "anything")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIdle, out.Kind)
	assert.Equal(t, 0, oracle.Calls(), "no oracle call without candidates")
	assert.Equal(t, state.Visited, next.Visited)
}

func TestEngine_BlankUtteranceIsIdle(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle()
	engine := runtime.NewEngine(g, oracle)

	_, out, err := engine.Navigate(context.Background(), engine.Start(context.Background(), "s"), "   ")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIdle, out.Kind)
	assert.Equal(t, 0, oracle.Calls())
}

func TestEngine_OracleNotReady(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle()
	oracle.SetReady(false)
	engine := runtime.NewEngine(g, oracle)

	state := engine.Start(context.Background(), "s")
	next, out, err := engine.Navigate(context.Background(), state, "hello there")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.Equal(t, domain.OutcomeLoading, out.Kind)
	assert.Equal(t, 0, oracle.Calls(), "oracle must not be called before it is ready")
	assert.Empty(t, next.Visited)

	nilOracle := runtime.NewEngine(g, nil)
	_, out, err = nilOracle.Navigate(context.Background(), state, "hello there")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.Equal(t, domain.OutcomeLoading, out.Kind)
}

func TestEngine_OracleFailureIsNoop(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle()
	oracle.Err = errors.New("model crashed")

	var calls []*domain.OracleEvent
	engine := runtime.NewEngine(g, oracle, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnOracleCall: func(_ context.Context, e *domain.OracleEvent) { calls = append(calls, e) },
	}))

	state := engine.Start(context.Background(), "s")
	next, out, err := engine.Navigate(context.Background(), state, "hello there")
	assert.ErrorIs(t, err, domain.ErrOracleFailure)
	assert.Equal(t, domain.OutcomeFailed, out.Kind)
	assert.Empty(t, next.Visited)
	assert.Zero(t, next.TotalScore)

	require.Len(t, calls, 1)
	assert.Error(t, calls[0].Err)
	assert.Equal(t, 1, calls[0].Candidates)
}

func TestEngine_OutOfContractScores(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		wantKind  domain.OutcomeKind
		wantErr   error
		wantScore float64
	}{
		{name: "NaN", score: math.NaN(), wantKind: domain.OutcomeFailed, wantErr: domain.ErrOracleFailure},
		{name: "PositiveInf", score: math.Inf(1), wantKind: domain.OutcomeFailed, wantErr: domain.ErrOracleFailure},
		{name: "NegativeInf", score: math.Inf(-1), wantKind: domain.OutcomeFailed, wantErr: domain.ErrOracleFailure},
		{name: "NegativeClampsToZero", score: -0.3, wantKind: domain.OutcomeNoMatch},
		{name: "AboveOneClampsToOne", score: 1.7, wantKind: domain.OutcomeVisited, wantScore: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testutils.MustGraph(t, testutils.TwoStageDoc)
			oracle := testutils.NewFakeOracle().Script("hello there", "A", tt.score)
			engine := runtime.NewEngine(g, oracle, runtime.WithClock(fixedClock()))
			ctx := context.Background()

			state := engine.Start(ctx, "s")
			next, out, err := engine.Navigate(ctx, state, "hello there")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.False(t, math.IsNaN(next.TotalScore))
			assert.InDelta(t, tt.wantScore, next.TotalScore, 1e-9)
			if tt.wantKind != domain.OutcomeVisited {
				assert.Empty(t, next.Visited)
			}
		})
	}
}

func TestEngine_CompletionAndReset(t *testing.T) {
	g := testutils.MustGraph(t, testutils.OrGateDoc)
	oracle := testutils.NewFakeOracle().
		Script("x", "X", 0.9).
		Script("y", "Y", 0.9).
		Script("z", "Z", 0.9)

	var completed, resets int
	engine := runtime.NewEngine(g, oracle, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnComplete: func(context.Context, *domain.SessionEvent) { completed++ },
		OnReset:    func(context.Context, *domain.SessionEvent) { resets++ },
	}))
	ctx := context.Background()

	state := engine.Start(ctx, "s")
	var err error
	var out domain.Outcome
	for _, u := range []string{"x", "y"} {
		state, out, err = engine.Navigate(ctx, state, u)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeVisited, out.Kind)
		assert.False(t, state.Complete, "terminal Z not visited yet")
	}

	state, out, err = engine.Navigate(ctx, state, "z")
	require.NoError(t, err)
	assert.True(t, out.Complete)
	assert.True(t, state.Complete)
	assert.Equal(t, 1, completed)
	assert.LessOrEqual(t, state.TotalScore, state.MaxScore)

	state = engine.Reset(ctx, state)
	assert.False(t, state.Complete)
	assert.Empty(t, state.Visited)
	assert.Zero(t, state.TotalScore)
	assert.Equal(t, engine.MaxScore(), state.MaxScore)
	assert.Equal(t, 1, resets)
}

func TestEngine_BestCandidateFirstOnTies(t *testing.T) {
	g := testutils.MustGraph(t, testutils.OrGateDoc)
	oracle := testutils.NewFakeOracle()
	oracle.Default = 0.8
	engine := runtime.NewEngine(g, oracle)

	_, out, err := engine.Navigate(context.Background(), engine.Start(context.Background(), "s"), "either")
	require.NoError(t, err)
	assert.Equal(t, "X", out.NodeID)
}

func TestEngine_ScoreNeverExceedsMax(t *testing.T) {
	g := testutils.MustGraph(t, testutils.OrGateDoc)
	oracle := testutils.NewFakeOracle()
	oracle.Default = 1
	for _, policy := range []runtime.ScoringPolicy{runtime.DifficultyPolicy{}, runtime.PercentagePolicy{}} {
		engine := runtime.NewEngine(g, oracle, runtime.WithScoringPolicy(policy))
		state := engine.Start(context.Background(), "s")
		for i := 0; i < 5; i++ {
			var err error
			state, _, err = engine.Navigate(context.Background(), state, "go")
			require.NoError(t, err)
			assert.LessOrEqual(t, state.TotalScore, state.MaxScore, policy.Name())
		}
		assert.Len(t, state.Visited, 3)
	}
}

func TestEngine_ExpireHighlight(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	now := epoch
	engine := runtime.NewEngine(g, testutils.NewFakeOracle().Script("hello", "A", 0.9),
		runtime.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	state, _, err := engine.Navigate(ctx, engine.Start(ctx, "s"), "hello")
	require.NoError(t, err)

	_, changed := engine.ExpireHighlight(ctx, state)
	assert.False(t, changed)

	now = now.Add(runtime.DefaultHighlightTTL)
	cleared, changed := engine.ExpireHighlight(ctx, state)
	assert.True(t, changed)
	assert.Nil(t, cleared.Highlight)
}

func TestApplyVisit_Errors(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	state := domain.NewState("s", 26)

	_, _, err := runtime.ApplyVisit(g, runtime.DifficultyPolicy{}, state, "nope", 0.9, epoch)
	assert.ErrorIs(t, err, domain.ErrUnknownNode)

	state.Visited = []string{"A"}
	_, _, err = runtime.ApplyVisit(g, runtime.DifficultyPolicy{}, state, "A", 0.9, epoch)
	assert.ErrorIs(t, err, domain.ErrAlreadyVisited)
}

func TestEngine_EvaluateDefersHooksToCommit(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)

	var visits []string
	engine := runtime.NewEngine(g, oracle, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnVisit: func(_ context.Context, ev *domain.VisitEvent) { visits = append(visits, ev.NodeID) },
	}))
	ctx := context.Background()

	turn, err := engine.Evaluate(ctx, engine.Start(ctx, "s"), "hello there")
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, domain.OutcomeVisited, turn.Outcome.Kind)
	assert.Empty(t, visits, "no hooks before commit")

	turn.Commit(ctx)
	assert.Equal(t, []string{"A"}, visits)
}
