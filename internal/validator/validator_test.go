package validator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/testutils"
)

func codes(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Code+":"+f.Subject)
	}
	return out
}

func TestValidate_CleanGraph(t *testing.T) {
	r := Validate(testutils.MustGraph(t, testutils.OrGateDoc))
	assert.True(t, r.OK())
	assert.Empty(t, r.Findings)
}

func TestValidate_Findings(t *testing.T) {
	doc := `{
	  "stages": [{"id": "s1"}, {"id": "s2"}, {"id": "empty", "order": 0}],
	  "nodes": [
	    {"id": "A", "stage_id": "s1", "order_index": 0, "content": "a"},
	    {"id": "B", "stage_id": "s2", "order_index": 0, "content": "b"},
	    {"id": "C", "stage_id": "s2", "order_index": 1, "content": "c"}
	  ],
	  "edges": [
	    {"from_node": "A", "to_node": "B"},
	    {"from_node": "A", "to_node": "ghost"},
	    {"from_node": "C", "to_node": "A"},
	    {"from_node": "A", "to_node": "C"}
	  ]
	}`
	r := Validate(testutils.MustGraph(t, doc))

	// C -> A and A -> C gate each other, and B waits on A, so nothing opens.
	want := []string{
		"dropped_edge:edges[1]",
		"empty_stage:empty",
		"backward_gate:C -> A",
		"unreachable_node:A",
		"unreachable_node:B",
		"unreachable_node:C",
	}
	if diff := cmp.Diff(want, codes(r.Findings)); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, r.OK())
	assert.Len(t, r.Errors(), 3)
	assert.Len(t, r.Warnings(), 3)
}

func TestValidate_MissingTerminal(t *testing.T) {
	doc := `{
	  "stages": [{"id": "s1"}, {"id": "last"}],
	  "nodes": [{"id": "A", "stage_id": "s1", "order_index": 0, "content": "a"}],
	  "edges": []
	}`
	r := Validate(testutils.MustGraph(t, doc))
	assert.Contains(t, codes(r.Errors()), "missing_terminal:")
	assert.Contains(t, codes(r.Warnings()), "empty_stage:last")
}

func TestReachable_OrGate(t *testing.T) {
	g := testutils.MustGraph(t, testutils.OrGateDoc)
	got := Reachable(g)
	assert.Len(t, got, 3)
	assert.Contains(t, got, "Z")
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "ok.json")
		require.NoError(t, os.WriteFile(path, []byte(testutils.TwoStageDoc), 0o644))

		r, g, err := ValidateFile(path)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.True(t, r.OK())
		assert.Equal(t, path, r.Source)
	})

	t.Run("Duplicate IDs", func(t *testing.T) {
		path := filepath.Join(dir, "dup.yaml")
		doc := "stages:\n  - id: s1\nnodes:\n  - {id: A, stage_id: s1, content: a}\n  - {id: A, stage_id: s1, content: again}\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		r, g, err := ValidateFile(path)
		require.NoError(t, err)
		assert.Nil(t, g)
		require.Len(t, r.Errors(), 1)
		assert.Equal(t, CodeStructure, r.Errors()[0].Code)
		assert.Contains(t, r.Errors()[0].Message, `duplicate node id "A"`)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, _, err := ValidateFile(filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
