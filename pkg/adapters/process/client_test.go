package process_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/pkg/adapters/lexical"
	"github.com/aretw0/convograph/pkg/adapters/process"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
	"github.com/aretw0/convograph/pkg/protocol"
)

const helperEnv = "CONVOGRAPH_TEST_WORKER"

// TestMain doubles as the worker process when re-executed by the tests.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "lexical":
		_ = protocol.Serve(context.Background(), os.Stdin, os.Stdout, lexical.New(), nil)
		os.Exit(0)
	case "broken":
		_ = protocol.Serve(context.Background(), os.Stdin, os.Stdout, brokenOracle{}, nil)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// brokenOracle never finishes loading.
type brokenOracle struct{}

func (brokenOracle) Init(context.Context) error { return io.ErrUnexpectedEOF }
func (brokenOracle) Ready() bool                { return false }
func (brokenOracle) Score(context.Context, string, []ports.Candidate) ([]float64, error) {
	return nil, domain.ErrOracleUnavailable
}
func (brokenOracle) Close() error { return nil }

func helper(mode string) process.WorkerConfig {
	return process.WorkerConfig{
		Command:     os.Args[0],
		Args:        []string{"-test.run=^$"},
		Environment: map[string]string{helperEnv: mode},
	}
}

func TestClient_RoundTrip(t *testing.T) {
	client := process.NewClient(helper("lexical"), process.WithStderr(io.Discard))
	defer client.Close()

	_, err := client.Score(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Init(ctx))
	require.True(t, client.Ready())

	candidates := []ports.Candidate{
		{ID: "a", Content: "goodbye friend"},
		{ID: "b", Content: "hello there"},
	}
	scores, err := client.Score(ctx, "hello there", candidates)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Zero(t, scores[0])
	assert.InDelta(t, 1.0, scores[1], 1e-9, "results are mapped back to candidate order")

	t.Run("concurrent requests are correlated by id", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s, err := client.Score(ctx, "goodbye friend", candidates)
				assert.NoError(t, err)
				if assert.Len(t, s, 2) {
					assert.InDelta(t, 1.0, s[0], 1e-9)
				}
			}()
		}
		wg.Wait()
	})

	require.NoError(t, client.Close())
	assert.False(t, client.Ready())
}

func TestClient_InitError(t *testing.T) {
	client := process.NewClient(helper("broken"), process.WithStderr(io.Discard))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := client.Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to load model")
	assert.False(t, client.Ready())
}

func TestClient_MissingBinary(t *testing.T) {
	client := process.NewClient(process.WorkerConfig{Command: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, client.Init(context.Background()))
	assert.NoError(t, client.Close())
}

func TestResolveWorker(t *testing.T) {
	cfg, err := process.ResolveWorker("python3 worker.py --model use")
	require.NoError(t, err)
	assert.Equal(t, "python3", cfg.Command)
	assert.Equal(t, []string{"worker.py", "--model", "use"}, cfg.Args)

	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("command: node\nargs: [worker.js]\nenv:\n  MODEL: use\n"), 0o644))
	cfg, err = process.ResolveWorker(path)
	require.NoError(t, err)
	assert.Equal(t, "node", cfg.Command)
	assert.Equal(t, "use", cfg.Environment["MODEL"])

	_, err = process.ResolveWorker("   ")
	assert.Error(t, err)
}
