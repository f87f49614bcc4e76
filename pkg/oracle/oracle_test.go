package oracle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/oracle"
	"github.com/aretw0/convograph/pkg/ports"
)

var candidates = []ports.Candidate{{ID: "a", Content: "alpha"}, {ID: "b", Content: "beta"}}

func TestFunc_Lifecycle(t *testing.T) {
	o := oracle.FromFunc(func(ctx context.Context, q string, c []ports.Candidate) ([]float64, error) {
		return []float64{0.1, 0.2}, nil
	})

	_, err := o.Score(context.Background(), "q", candidates)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable, "not ready before Init")

	require.NoError(t, o.Init(context.Background()))
	assert.True(t, o.Ready())
	scores, err := o.Score(context.Background(), "q", candidates)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, scores)

	require.NoError(t, o.Close())
	assert.False(t, o.Ready())
}

func TestTimeout(t *testing.T) {
	fake := testutils.NewFakeOracle()
	fake.Gate = make(chan struct{}) // never released

	o := oracle.Chain(fake, oracle.Timeout(20*time.Millisecond))
	start := time.Now()
	_, err := o.Score(context.Background(), "q", candidates)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, o.Ready(), "lifecycle delegates to the wrapped oracle")
}

func TestTimeout_Disabled(t *testing.T) {
	fake := testutils.NewFakeOracle()
	assert.Same(t, ports.Oracle(fake), oracle.Timeout(0)(fake))
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	fake := testutils.NewFakeOracle()
	fake.Err = errors.New("boom")

	cfg := oracle.DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Hour
	o := oracle.Chain(fake, oracle.Breaker(cfg, nil))

	for i := 0; i < 2; i++ {
		_, err := o.Score(context.Background(), "q", candidates)
		require.Error(t, err)
	}
	assert.Equal(t, 2, fake.Calls())

	_, err := o.Score(context.Background(), "q", candidates)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, fake.Calls(), "open breaker fails fast")
}

func TestBreaker_IgnoresReadiness(t *testing.T) {
	fake := testutils.NewFakeOracle()
	fake.SetReady(false)

	cfg := oracle.DefaultBreakerConfig("test")
	cfg.MinRequests = 1
	cfg.FailureThreshold = 0.1
	o := oracle.Chain(fake, oracle.Breaker(cfg, nil))

	for i := 0; i < 3; i++ {
		_, err := o.Score(context.Background(), "q", candidates)
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	}
	assert.Equal(t, 3, fake.Calls())
}
