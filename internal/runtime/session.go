package runtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aretw0/convograph/pkg/domain"
)

// Session is an in-process traversal session. It owns its state and enforces the
// single-flight rule: while one utterance awaits the Oracle, further submissions
// are rejected with domain.ErrBusy.
//
// Session is safe for concurrent use.
type Session struct {
	engine   *Engine
	inflight *semaphore.Weighted
	observer func(*domain.StateDiff)

	mu     sync.Mutex
	state  *domain.State
	epoch  uint64 // bumped on reset; a turn started in an older epoch is discarded
	timer  *time.Timer
	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithObserver registers a callback receiving every state change as a diff.
// It is called with the session lock released.
func WithObserver(fn func(*domain.StateDiff)) SessionOption {
	return func(s *Session) {
		s.observer = fn
	}
}

// NewSession starts a session on the engine.
func (e *Engine) NewSession(ctx context.Context, sessionID string, opts ...SessionOption) *Session {
	s := &Session{
		engine:   e,
		inflight: semaphore.NewWeighted(1),
		state:    e.Start(ctx, sessionID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// Snapshot returns a copy of the current state with expired highlights dropped.
func (s *Session) Snapshot() *domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state.Snapshot()
	if snap.HighlightedAt(s.engine.Now()) == "" {
		snap.Highlight = nil
	}
	return snap
}

// Projections returns the per-node view of the current state.
func (s *Session) Projections() []domain.Projection {
	return s.engine.Project(s.Snapshot())
}

// Progress summarizes the current state.
func (s *Session) Progress() domain.Progress {
	return s.engine.Progress(s.Snapshot())
}

// Submit runs one utterance turn. Blank utterances are an idle no-op.
func (s *Session) Submit(ctx context.Context, utterance string) (domain.Outcome, error) {
	if strings.TrimSpace(utterance) == "" {
		return domain.Outcome{Kind: domain.OutcomeIdle, Complete: s.Snapshot().Complete}, nil
	}
	if !s.inflight.TryAcquire(1) {
		return domain.Outcome{Kind: domain.OutcomeBusy, Utterance: strings.TrimSpace(utterance)}, domain.ErrBusy
	}
	defer s.inflight.Release(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Outcome{Kind: domain.OutcomeIdle}, context.Canceled
	}
	epoch := s.epoch
	before := s.state
	awaiting := before.Snapshot()
	awaiting.Status = domain.StatusAwaitingOracle
	awaiting.LastUtterance = strings.TrimSpace(utterance)
	s.state = awaiting
	s.mu.Unlock()

	s.engine.EmitProcessing(ctx, awaiting.SessionID, true)
	s.notify(before, awaiting)

	next, out, visit, err := s.engine.navigate(ctx, awaiting, utterance)

	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		// Reset or Close won the race; the state already moved on.
		prev := s.state
		idle := prev.Snapshot()
		idle.Status = domain.StatusIdle
		s.state = idle
		s.mu.Unlock()
		s.engine.EmitProcessing(ctx, awaiting.SessionID, false)
		s.notify(prev, idle)
		return domain.Outcome{Kind: domain.OutcomeIdle, Utterance: out.Utterance}, err
	}
	if next == nil {
		next = awaiting.Snapshot()
	}
	next.Status = domain.StatusIdle
	prev := s.state
	s.state = next
	if out.Kind == domain.OutcomeVisited {
		s.scheduleHighlightLocked(next.Highlight)
	}
	s.mu.Unlock()

	s.engine.emitOutcome(ctx, awaiting, next, out, visit)
	s.engine.EmitProcessing(ctx, next.SessionID, false)
	s.notify(prev, next)
	return out, err
}

// Reset clears the session back to its initial state. An utterance still
// awaiting the Oracle is discarded when it returns.
func (s *Session) Reset(ctx context.Context) *domain.State {
	s.mu.Lock()
	prev := s.state
	next := s.engine.Reset(ctx, prev)
	if prev.Status == domain.StatusAwaitingOracle {
		next.Status = domain.StatusAwaitingOracle
	}
	s.state = next
	s.epoch++
	s.stopTimerLocked()
	snap := next.Snapshot()
	s.mu.Unlock()

	s.notify(prev, next)
	return snap
}

// Close stops the highlight timer. The session rejects further turns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

func (s *Session) scheduleHighlightLocked(h *domain.Highlight) {
	s.stopTimerLocked()
	if h == nil {
		return
	}
	epoch := s.epoch
	delay := h.ExpiresAt.Sub(s.engine.Now())
	s.timer = time.AfterFunc(max(delay, 0), func() {
		s.clearHighlight(epoch, h.NodeID)
	})
}

func (s *Session) clearHighlight(epoch uint64, nodeID string) {
	s.mu.Lock()
	if s.closed || s.epoch != epoch || s.state.Highlight == nil || s.state.Highlight.NodeID != nodeID {
		s.mu.Unlock()
		return
	}
	prev := s.state
	next := prev.Snapshot()
	next.Highlight = nil
	s.state = next
	s.timer = nil
	s.mu.Unlock()

	s.engine.emitSession(context.Background(), s.engine.hooks.OnHighlightCleared, domain.EventHighlightCleared, next.SessionID, nodeID)
	s.notify(prev, next)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) notify(prev, next *domain.State) {
	if s.observer == nil {
		return
	}
	if diff := domain.Diff(prev, next); diff != nil {
		s.observer(diff)
	}
}
