package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/pkg/domain"
)

func TestLoadFile_JSON(t *testing.T) {
	g, err := LoadFile("testdata/interview.json")
	require.NoError(t, err)

	assert.Equal(t, 6, g.Len())
	assert.Len(t, g.Edges(), 6)

	t.Run("ids are normalized to strings", func(t *testing.T) {
		n, ok := g.Node("10")
		require.True(t, ok)
		assert.Equal(t, "1", n.StageID)
		assert.Equal(t, "Greeting", n.Name)
		assert.Equal(t, "Hello there", n.Content)
		require.Len(t, n.Responses, 2)
		assert.Equal(t, "Warm opening!", n.Responses[1].Text)
	})

	t.Run("difficulty defaults to one", func(t *testing.T) {
		n, _ := g.Node("11")
		assert.Equal(t, domain.DefaultDifficulty, n.Difficulty)
		n, _ = g.Node("21")
		assert.Equal(t, 3, n.Difficulty)
	})

	t.Run("gates ignore intra-stage edges", func(t *testing.T) {
		assert.Empty(t, g.Gates("10"))
		assert.Empty(t, g.Gates("11"))
		assert.Len(t, g.Gates("20"), 2)
		assert.Empty(t, g.Gates("21"))
		assert.Len(t, g.Gates("31"), 1)
	})

	t.Run("edges with unknown or missing endpoints are dropped", func(t *testing.T) {
		dropped := g.DroppedEdges()
		require.Len(t, dropped, 2)
		assert.Equal(t, 6, dropped[0].Index)
		assert.Contains(t, dropped[0].Reason, "unknown source")
		assert.Equal(t, "missing endpoint", dropped[1].Reason)
	})

	t.Run("terminal is highest order_index of the last stage", func(t *testing.T) {
		id, ok := g.Terminal()
		assert.True(t, ok)
		assert.Equal(t, "31", id)
	})
}

func TestLoadFile_YAML(t *testing.T) {
	g, err := LoadFile("testdata/interview.yaml")
	require.NoError(t, err)

	n, ok := g.Node("hello")
	require.True(t, ok)
	assert.Equal(t, "Greeting", n.Name)
	assert.Equal(t, 2, n.Difficulty)
	require.Len(t, n.Responses, 1)

	assert.Len(t, g.Gates("bye"), 1)
	id, _ := g.Terminal()
	assert.Equal(t, "bye", id)
}

func TestLoadBytes_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"unparseable", `{"nodes": [`, "failed to parse json"},
		{"missing node id", `{"stages":[{"id":"s"}],"nodes":[{"stage_id":"s"}]}`, "nodes[0].id"},
		{"missing stage id", `{"stages":[{"id":"s"}],"nodes":[{"id":"a"}]}`, "nodes[0].stage_id"},
		{"unknown stage", `{"stages":[{"id":"s"}],"nodes":[{"id":"a","stage_id":"t"}]}`, `unknown stage "t"`},
		{"duplicate node", `{"stages":[{"id":"s"}],"nodes":[{"id":"a","stage_id":"s"},{"id":"a","stage_id":"s"}]}`, `duplicate node id "a"`},
		{"duplicate stage", `{"stages":[{"id":"s"},{"id":"s"}]}`, `duplicate stage id "s"`},
		{"negative difficulty", `{"stages":[{"id":"s"}],"nodes":[{"id":"a","stage_id":"s","meta":{"difficulty":-1}}]}`, "difficulty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.doc), FormatJSON)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedGraph), "expected ErrMalformedGraph, got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadBytes_AggregatesProblems(t *testing.T) {
	doc := `{"stages":[{"id":"s"}],"nodes":[{"id":"a","stage_id":"x"},{"id":"b","stage_id":"y"}]}`
	_, err := LoadBytes([]byte(doc), FormatJSON)
	require.Error(t, err)

	problems := Problems(err)
	require.Len(t, problems, 2)
	assert.True(t, strings.HasPrefix(err.Error(), "malformed graph: 2 problems"))
}

func TestNew_StageProblemsUseDocumentIndex(t *testing.T) {
	_, err := New(
		[]domain.Stage{{ID: "b", Order: 3}, {ID: "", Order: 0}, {ID: "a", Order: 1}, {ID: "a", Order: 2}},
		nil,
		nil,
	)
	require.Error(t, err)
	assert.Equal(t, []Problem{
		{Path: "stages[1].id", Reason: "is required"},
		{Path: "stages[3].id", Reason: `duplicate stage id "a"`},
	}, Problems(err))
}

func TestLoad_EmptyGraph(t *testing.T) {
	g, err := Load(strings.NewReader(`{"stages": [], "nodes": [], "edges": []}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	_, ok := g.Terminal()
	assert.False(t, ok)
}

func TestNew_TerminalEdgeCases(t *testing.T) {
	t.Run("last stage without nodes has no terminal", func(t *testing.T) {
		g, err := New(
			[]domain.Stage{{ID: "a", Order: 0}, {ID: "b", Order: 1}},
			[]domain.Node{{ID: "n1", StageID: "a"}},
			nil,
		)
		require.NoError(t, err)
		_, ok := g.Terminal()
		assert.False(t, ok)
	})

	t.Run("stage order decides the last stage", func(t *testing.T) {
		g, err := New(
			[]domain.Stage{{ID: "late", Order: 5}, {ID: "early", Order: 1}},
			[]domain.Node{{ID: "x", StageID: "late"}, {ID: "y", StageID: "early", OrderIndex: 9}},
			nil,
		)
		require.NoError(t, err)
		id, _ := g.Terminal()
		assert.Equal(t, "x", id)
		assert.Equal(t, "early", g.Stages()[0].ID)
	})

	t.Run("ties go to the first declared node", func(t *testing.T) {
		g, err := New(
			[]domain.Stage{{ID: "s"}},
			[]domain.Node{{ID: "first", StageID: "s", OrderIndex: 3}, {ID: "second", StageID: "s", OrderIndex: 3}},
			nil,
		)
		require.NoError(t, err)
		id, _ := g.Terminal()
		assert.Equal(t, "first", id)
	})
}

func TestNew_IsGate(t *testing.T) {
	g, err := New(
		[]domain.Stage{{ID: "s1"}, {ID: "s2", Order: 1}},
		[]domain.Node{{ID: "a", StageID: "s1"}, {ID: "b", StageID: "s1"}, {ID: "c", StageID: "s2"}},
		[]domain.Edge{
			{From: "a", To: "b"},                              // same stage, untyped
			{From: "a", To: "c"},                              // cross stage, untyped
			{From: "b", To: "c", Type: domain.EdgeIntraStage}, // cross stage, layout only
		},
	)
	require.NoError(t, err)

	assert.False(t, g.IsGate(domain.Edge{From: "a", To: "b"}))
	assert.True(t, g.IsGate(domain.Edge{From: "a", To: "c"}))
	assert.False(t, g.IsGate(domain.Edge{From: "b", To: "c", Type: domain.EdgeIntraStage}))
	assert.Len(t, g.Gates("c"), 1)
	assert.Empty(t, g.Gates("b"))
}

func TestGraph_Immutable(t *testing.T) {
	g, err := LoadFile("testdata/interview.json")
	require.NoError(t, err)

	nodes := g.Nodes()
	nodes[0].Content = "mutated"
	n, _ := g.Node(nodes[0].ID)
	assert.Equal(t, "Hello there", n.Content)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("graph.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("GRAPH.YAML"))
	assert.Equal(t, FormatJSON, FormatFromPath("graph.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("graph"))
}
