package protocol_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/ports"
	"github.com/aretw0/convograph/pkg/protocol"
)

func decodeAll(t *testing.T, out string) []protocol.Message {
	t.Helper()
	dec := protocol.NewDecoder(strings.NewReader(out))
	var msgs []protocol.Message
	for {
		msg, err := dec.Decode()
		if err != nil {
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestServe_Session(t *testing.T) {
	oracle := testutils.NewFakeOracle().Script("hello", "b", 0.9).Script("hello", "a", 0.2)
	oracle.SetReady(false)

	in := strings.Join([]string{
		`{"type":"similarity","id":"early","userInput":"hello","nodes":[{"id":"a","content":"x"}]}`,
		`{"type":"init"}`,
		``,
		`{"type":"similarity","id":"q1","userInput":"hello","nodes":[{"id":"a","content":"alpha"},{"id":"b","content":"beta"},{"id":"c","content":"gamma"}]}`,
		`not json`,
		`{"type":"bogus"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, protocol.Serve(context.Background(), strings.NewReader(in), &out, oracle, nil))

	msgs := decodeAll(t, out.String())
	require.Len(t, msgs, 5)

	assert.Equal(t, protocol.TypeError, msgs[0].Type)
	assert.Equal(t, "early", msgs[0].ID)

	assert.Equal(t, protocol.TypeModelLoaded, msgs[1].Type)

	res := msgs[2]
	assert.Equal(t, protocol.TypeSimilarityResult, res.Type)
	assert.Equal(t, "q1", res.ID)
	require.Len(t, res.Results, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{res.Results[0].NodeID, res.Results[1].NodeID, res.Results[2].NodeID})
	assert.Equal(t, "beta", res.Results[0].Content)

	assert.Equal(t, protocol.TypeError, msgs[3].Type)
	assert.Equal(t, protocol.TypeError, msgs[4].Type)
	assert.Contains(t, msgs[4].Message, "unknown message type")
}

func TestScoresFromResults(t *testing.T) {
	candidates := []ports.Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	results := []protocol.Result{
		{NodeID: "c", Similarity: 0.9},
		{NodeID: "a", Similarity: 0.4},
	}
	assert.Equal(t, []float64{0.4, 0, 0.9}, protocol.ScoresFromResults(candidates, results))
}
