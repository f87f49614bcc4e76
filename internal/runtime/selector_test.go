package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/pkg/domain"
)

func TestSelectResponse(t *testing.T) {
	node := domain.Node{Responses: []domain.Response{
		{Text: "low", Score: 0.1},
		{Text: "mid", Score: 0.5},
		{Text: "high", Score: 0.9},
	}}

	tests := []struct {
		name string
		sim  float64
		want string
	}{
		{"barely above threshold", 0.51, "low"},
		{"midway", 0.75, "mid"},
		{"perfect", 1.0, "high"},
		{"below threshold clamps to zero", 0.2, "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectResponse(node, tt.sim, 0.5)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Text)
		})
	}
}

func TestSelectResponse_TiesGoToFirst(t *testing.T) {
	node := domain.Node{Responses: []domain.Response{
		{Text: "first", Score: 0.2},
		{Text: "second", Score: 0.6},
	}}
	// target = 0.4, equidistant from both.
	got := SelectResponse(node, 0.7, 0.5)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Text)
}

func TestSelectResponse_NoVariants(t *testing.T) {
	assert.Nil(t, SelectResponse(domain.Node{}, 0.9, 0.5))
}
