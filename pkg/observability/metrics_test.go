package observability_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/observability"
)

func TestMetrics_RecordTurns(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	oracle := testutils.NewFakeOracle().
		Script("hello there", "A", 0.9).
		Script("goodbye now", "B", 0.95)
	engine := runtime.NewEngine(g, oracle, runtime.WithLifecycleHooks(metrics.Hooks()))
	ctx := context.Background()

	state := engine.Start(ctx, "s1")
	state, _, err := engine.Navigate(ctx, state, "mumble")
	require.NoError(t, err)
	state, _, err = engine.Navigate(ctx, state, "hello there")
	require.NoError(t, err)
	state, _, err = engine.Navigate(ctx, state, "goodbye now")
	require.NoError(t, err)
	engine.Reset(ctx, state)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Visits.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Visits.WithLabelValues("B")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NoMatch))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Completions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Resets))
	count, err := testutil.GatherAndCount(reg, "convograph_oracle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series, all calls succeeded")
}

func TestMetrics_OracleResultLabels(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	hooks := metrics.Hooks()
	ctx := context.Background()

	hooks.OnOracleCall(ctx, &domain.OracleEvent{Duration: time.Millisecond})
	hooks.OnOracleCall(ctx, &domain.OracleEvent{Err: domain.ErrOracleUnavailable})
	hooks.OnOracleCall(ctx, &domain.OracleEvent{Err: context.DeadlineExceeded})
	hooks.OnOracleCall(ctx, &domain.OracleEvent{Err: errors.New("boom")})

	assert.Equal(t, 4, testutil.CollectAndCount(metrics.OracleLatency), "one series per result label")
}

func TestMetrics_InFlightGauge(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	hooks := metrics.Hooks()
	ctx := context.Background()

	hooks.OnProcessing(ctx, &domain.ProcessingEvent{Processing: true})
	hooks.OnProcessing(ctx, &domain.ProcessingEvent{Processing: true})
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.InFlight))
	hooks.OnProcessing(ctx, &domain.ProcessingEvent{Processing: false})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InFlight))
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := observability.LoggingHooks(logging.NewWithWriter(&buf, -4))
	ctx := context.Background()

	hooks.OnVisit(ctx, &domain.VisitEvent{EventBase: domain.EventBase{SessionID: "s1"}, NodeID: "A", Score: 10})
	hooks.OnOracleCall(ctx, &domain.OracleEvent{Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "visit_committed")
	assert.Contains(t, out, "session_id=s1")
	assert.Contains(t, out, "node_id=A")
	assert.Contains(t, out, "err=boom")
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := observability.SetupTracing(context.Background(), "convograph", "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
