package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/internal/testutils"
)

func newSession(t *testing.T, oracle *testutils.FakeOracle) *runtime.Session {
	t.Helper()
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	sess := runtime.NewEngine(g, oracle).NewSession(context.Background(), "runner-test")
	t.Cleanup(sess.Close)
	return sess
}

func runWithTimeout(t *testing.T, ctx context.Context, r *Runner, sess Session) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, sess) }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Runner timed out (possible deadlock)")
		return nil
	}
}

func TestRunner_TextFlow(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	sess := newSession(t, oracle)

	in := strings.NewReader("hello there\n:status\n:reset\n:quit\nnever read\n")
	out := &bytes.Buffer{}
	r := NewRunner(WithInputHandler(NewTextHandler(in, out)))

	require.NoError(t, runWithTimeout(t, context.Background(), r, sess))

	output := out.String()
	assert.Contains(t, output, "[>] A", "initial status lists A as available")
	assert.Contains(t, output, "✓ A (similarity 0.90")
	assert.Contains(t, output, "great", "feedback closest to the confidence margin")
	assert.Contains(t, output, "Progress: 1/2 visited")
	assert.Contains(t, output, "[x] A")
	assert.Contains(t, output, "[System] Session reset.")
	assert.Equal(t, 1, oracle.Calls())
	assert.Empty(t, sess.Snapshot().Visited)
}

func TestRunner_EndOfInputStopsLoop(t *testing.T) {
	sess := newSession(t, testutils.NewFakeOracle())
	r := NewRunner(
		WithHeadless(true),
		WithInputHandler(NewTextHandler(strings.NewReader("something\n"), io.Discard)),
	)

	assert.NoError(t, runWithTimeout(t, context.Background(), r, sess))
}

func TestRunner_ExitOnComplete(t *testing.T) {
	oracle := testutils.NewFakeOracle().
		Script("hello there", "A", 0.9).
		Script("goodbye now", "B", 0.95)
	sess := newSession(t, oracle)

	out := &bytes.Buffer{}
	r := NewRunner(
		WithHeadless(true),
		WithExitOnComplete(true),
		WithInputHandler(NewTextHandler(strings.NewReader("hello there\ngoodbye now\nextra\n"), out)),
	)

	require.NoError(t, runWithTimeout(t, context.Background(), r, sess))
	assert.Equal(t, 2, oracle.Calls(), "the line after completion is never submitted")
	assert.Contains(t, out.String(), "Graph complete!")
}

func TestRunner_OracleFailureKeepsLooping(t *testing.T) {
	oracle := testutils.NewFakeOracle()
	oracle.Err = errors.New("boom")
	sess := newSession(t, oracle)

	out := &bytes.Buffer{}
	r := NewRunner(
		WithHeadless(true),
		WithInputHandler(NewTextHandler(strings.NewReader("first\nsecond\n"), out)),
	)

	require.NoError(t, runWithTimeout(t, context.Background(), r, sess))
	assert.Equal(t, 2, oracle.Calls())
	assert.Equal(t, 2, strings.Count(out.String(), "The similarity model failed"))
}

func TestRunner_ParentCancellation(t *testing.T) {
	sess := newSession(t, testutils.NewFakeOracle())
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(WithHeadless(true), WithInputHandler(NewTextHandler(pr, io.Discard)))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, runWithTimeout(t, ctx, r, sess), context.Canceled)
}

func TestRunner_NDJSON(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello there", "A", 0.9)
	sess := newSession(t, oracle)

	in := strings.NewReader("\"hello there\"\n{\"text\": \":status\"}\n")
	out := &bytes.Buffer{}
	r := NewRunner(WithHeadless(true), WithInputHandler(NewJSONHandler(in, out)))

	require.NoError(t, runWithTimeout(t, context.Background(), r, sess))

	events := decodeEvents(t, out)
	require.Len(t, events, 2)
	assert.Equal(t, EventOutcome, events[0].Type)
	require.NotNil(t, events[0].Outcome)
	assert.Equal(t, "A", events[0].Outcome.NodeID)
	assert.Equal(t, []string{"A"}, events[0].State.Visited)

	assert.Equal(t, EventStatus, events[1].Type)
	assert.Len(t, events[1].Projections, 2)
	assert.Equal(t, 1, events[1].Progress.Visited)
}
