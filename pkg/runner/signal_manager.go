package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// eofSignalWindow is how long an input error waits for a pending signal.
const eofSignalWindow = 100 * time.Millisecond

// SignalManager derives a context that ends on SIGINT/SIGTERM or when the parent
// ends. A terminal may report EOF on stdin slightly before Ctrl+C is delivered;
// CheckRace absorbs that gap so the loop reports an interrupt, not an input error.
type SignalManager struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalManager starts listening for signals immediately.
func NewSignalManager(parent context.Context) *SignalManager {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return &SignalManager{parent: parent, ctx: ctx, cancel: cancel}
}

// Context ends on the first signal or with the parent.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Stop releases the signal listener.
func (sm *SignalManager) Stop() {
	sm.cancel()
}

// Interrupted reports whether the context ended by signal rather than by the parent.
func (sm *SignalManager) Interrupted() bool {
	return sm.ctx.Err() != nil && sm.parent.Err() == nil
}

// CheckRace gives a signal that may follow an input error time to arrive.
func (sm *SignalManager) CheckRace() {
	if sm.ctx.Err() != nil {
		return
	}
	select {
	case <-sm.ctx.Done():
	case <-time.After(eofSignalWindow):
	}
}
