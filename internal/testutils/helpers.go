package testutils

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
	"github.com/aretw0/convograph/pkg/ports"
)

// TwoStageDoc is the smallest gated graph: A (stage 1) -> B (stage 2).
const TwoStageDoc = `{
  "stages": [{"id": "s1"}, {"id": "s2"}],
  "nodes": [
    {"id": "A", "stage_id": "s1", "order_index": 0, "content": "Hello there",
     "meta": {"responses": [{"response_text": "ok", "score": 0.1}, {"response_text": "great", "score": 0.8}]}},
    {"id": "B", "stage_id": "s2", "order_index": 0, "content": "Goodbye now", "meta": {"difficulty": 2}}
  ],
  "edges": [{"from_node": "A", "to_node": "B", "meta": {"edge_type": "inter_stage"}}]
}`

// OrGateDoc has a node Z behind two alternative predecessors X and Y, plus a
// layout-only edge X -> Y inside the first stage.
const OrGateDoc = `{
  "stages": [{"id": "s1"}, {"id": "s2"}],
  "nodes": [
    {"id": "X", "stage_id": "s1", "order_index": 0, "content": "option x"},
    {"id": "Y", "stage_id": "s1", "order_index": 1, "content": "option y"},
    {"id": "Z", "stage_id": "s2", "order_index": 0, "content": "closing z"}
  ],
  "edges": [
    {"from_node": "X", "to_node": "Y", "meta": {"edge_type": "intra_stage"}},
    {"from_node": "X", "to_node": "Z", "meta": {"edge_type": "inter_stage"}},
    {"from_node": "Y", "to_node": "Z", "meta": {"edge_type": "inter_stage"}}
  ]
}`

// MustGraph loads a JSON document or fails the test.
func MustGraph(t testing.TB, doc string) *graph.Graph {
	t.Helper()
	g, err := graph.LoadBytes([]byte(doc), graph.FormatJSON)
	require.NoError(t, err, "Failed to load test graph")
	return g
}

// FakeOracle is a scripted ports.Oracle. Similarities are looked up by query and
// then by candidate id; anything unscripted scores Default.
type FakeOracle struct {
	mu      sync.Mutex
	ready   bool
	scripts map[string]map[string]float64
	calls   int

	// Default is returned for unscripted pairs.
	Default float64
	// Err, when set, is returned by every Score call.
	Err error
	// Gate, when set, blocks Score until it is closed or receives a value.
	Gate chan struct{}
	// Entered, when set, receives a value as each Score call starts.
	Entered chan struct{}
}

// NewFakeOracle returns a ready oracle with no scripts.
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{ready: true, scripts: make(map[string]map[string]float64)}
}

// Script sets the similarity of query against a candidate id.
func (f *FakeOracle) Script(query, nodeID string, similarity float64) *FakeOracle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scripts[query] == nil {
		f.scripts[query] = make(map[string]float64)
	}
	f.scripts[query][nodeID] = similarity
	return f
}

// SetReady toggles readiness.
func (f *FakeOracle) SetReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// Calls returns how many times Score was invoked.
func (f *FakeOracle) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeOracle) Init(ctx context.Context) error {
	f.SetReady(true)
	return nil
}

func (f *FakeOracle) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *FakeOracle) Score(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	ready, err, gate, entered := f.ready, f.Err, f.Gate, f.Entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ready {
		return nil, domain.ErrOracleUnavailable
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = f.Default
		if s, ok := f.scripts[query][c.ID]; ok {
			out[i] = s
		}
	}
	return out, nil
}

func (f *FakeOracle) Close() error {
	f.SetReady(false)
	return nil
}
