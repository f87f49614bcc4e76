package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a state
		state := domain.NewState(sessionID, 24)
		state.Visited = append(state.Visited, "a", "b")
		state.Scores["a"] = 9.5
		state.Scores["b"] = 4
		state.TotalScore = 13.5
		state.LastUtterance = "hello there"
		state.Highlight = &domain.Highlight{NodeID: "b", ExpiresAt: time.Now().Add(2 * time.Second).UTC().Truncate(time.Millisecond)}

		// 2. Save
		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Visited, loaded.Visited)
		assert.Equal(t, state.Scores, loaded.Scores)
		assert.InDelta(t, state.TotalScore, loaded.TotalScore, 1e-9)
		assert.InDelta(t, state.MaxScore, loaded.MaxScore, 1e-9)
		assert.Equal(t, "hello there", loaded.LastUtterance)
		require.NotNil(t, loaded.Highlight)
		assert.Equal(t, "b", loaded.Highlight.NodeID)
		assert.True(t, state.Highlight.ExpiresAt.Equal(loaded.Highlight.ExpiresAt))
	})

	t.Run("Load Returns Independent Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Visited = append(loaded.Visited, "mutated")

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.NotContains(t, again.Visited, "mutated")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		// Setup
		err := store.Save(ctx, sessionID, domain.NewState(sessionID, 0))
		require.NoError(t, err)

		// Delete
		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		// Verify gone
		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		// Setup: Create 2 sessions
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1, 0))
		_ = store.Save(ctx, id2, domain.NewState(id2, 0))

		// Ensure cleanup
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		// List
		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
