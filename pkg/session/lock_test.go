package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/internal/testutils"
	"github.com/aretw0/convograph/pkg/adapters/memory"
)

func TestManager_LockLifecycle(t *testing.T) {
	g := testutils.MustGraph(t, testutils.TwoStageDoc)
	mgr := NewManager(runtime.NewEngine(g, testutils.NewFakeOracle()), memory.NewStore())
	defer mgr.Close()
	ctx := context.Background()
	count := 1000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, err := mgr.Create(ctx, sid)
		require.NoError(t, err)
		_, _, _ = mgr.Submit(ctx, sid, "nothing matches")
		require.NoError(t, mgr.Delete(ctx, sid))
	}

	mgr.mu.Lock()
	lockCount := len(mgr.locks)
	mgr.mu.Unlock()

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
