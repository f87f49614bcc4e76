package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// DefaultTurnLease bounds how long a stored AwaitingOracle turn blocks other
// submissions. After it a crashed or unreported turn can be taken over.
const DefaultTurnLease = 2 * time.Minute

// lockEntry holds the per-session mutexes and the reference count.
type lockEntry struct {
	mu   sync.Mutex // serializes read-modify-write on the stored state
	turn sync.Mutex // held for a whole utterance turn; TryLock enforces single-flight
	refs int
}

// Manager orchestrates store-backed sessions for the network adapters.
// It uses Reference Counting to garbage collect unused locks.
//
// A turn holds the session's store lock only while reading and writing state;
// the Oracle call happens in between with the state marked AwaitingOracle, so
// Get and Reset never wait on the model.
type Manager struct {
	engine *runtime.Engine
	store  ports.StateStore

	mu     sync.Mutex            // Global lock for the maps
	locks  map[string]*lockEntry // Map of active locks
	timers map[string]*time.Timer
	closed bool

	locker    ports.DistributedLocker // Optional distributed locker
	lockTTL   time.Duration
	turnLease time.Duration
	observer  func(*domain.StateDiff)
	logger    *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock lease.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithTurnLease sets how long an unfinished turn keeps the session busy.
// It should exceed the Oracle timeout.
func WithTurnLease(lease time.Duration) Option {
	return func(m *Manager) {
		if lease > 0 {
			m.turnLease = lease
		}
	}
}

// WithObserver registers a callback receiving every committed change as a diff.
func WithObserver(fn func(*domain.StateDiff)) Option {
	return func(m *Manager) {
		m.observer = fn
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Session Manager over the engine and the persistence store.
func NewManager(engine *runtime.Engine, store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		engine:  engine,
		store:   store,
		locks:   make(map[string]*lockEntry),
		timers:  make(map[string]*time.Timer),
		lockTTL:   DefaultLockTTL,
		turnLease: DefaultTurnLease,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Engine returns the traversal engine.
func (m *Manager) Engine() *runtime.Engine { return m.engine }

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore { return m.store }

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(sessionID) when done with the entry.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	defer m.release(sessionID)
	return m.withEntry(ctx, sessionID, entry, fn)
}

func (m *Manager) withEntry(ctx context.Context, sessionID string, entry *lockEntry, fn func(context.Context) error) error {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}
	return fn(ctx)
}

// Create starts a new session. An empty id gets a random UUID; an id that is
// already stored returns the stored session unchanged.
func (m *Manager) Create(ctx context.Context, sessionID string) (*domain.State, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	var state *domain.State
	created := false
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		existing, err := m.store.Load(ctx, sessionID)
		if err == nil {
			state = existing
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		state = m.engine.Start(ctx, sessionID)
		if err := m.store.Save(ctx, sessionID, state); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		m.notify(nil, state)
	}
	return m.view(state), nil
}

// Get loads a session. An expired highlight is omitted from the result.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.view(state), nil
}

// Submit runs one utterance turn on a stored session.
//
// Blank utterances are an idle no-op. A second submission while one awaits the
// Oracle returns OutcomeBusy with domain.ErrBusy, until the turn outlives the
// lease. A turn overtaken by Reset, Delete or a takeover is dropped and
// reported as idle. If the result cannot be saved the session is put back to
// idle on a best-effort basis.
func (m *Manager) Submit(ctx context.Context, sessionID, utterance string) (domain.Outcome, *domain.State, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		state, err := m.Get(ctx, sessionID)
		if err != nil {
			return domain.Outcome{}, nil, err
		}
		return domain.Outcome{Kind: domain.OutcomeIdle, Complete: state.Complete}, state, nil
	}

	entry := m.acquire(sessionID)
	defer m.release(sessionID)

	busy := domain.Outcome{Kind: domain.OutcomeBusy, Utterance: utterance}
	if !entry.turn.TryLock() {
		return busy, nil, domain.ErrBusy
	}
	defer entry.turn.Unlock()

	token := uuid.NewString()
	var before, awaiting *domain.State
	err := m.withEntry(ctx, sessionID, entry, func(ctx context.Context) error {
		state, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		now := m.engine.Now()
		if state.Status == domain.StatusAwaitingOracle {
			if now.Sub(state.TurnStarted) < m.turnLease {
				// Another process owns the turn.
				return domain.ErrBusy
			}
			m.logger.Warn("taking over abandoned turn",
				"session_id", sessionID,
				"turn", state.Turn,
				"turn_started", state.TurnStarted,
			)
		}
		before = state
		awaiting = state.Snapshot()
		awaiting.Status = domain.StatusAwaitingOracle
		awaiting.LastUtterance = utterance
		awaiting.Turn = token
		awaiting.TurnStarted = now
		return m.store.Save(ctx, sessionID, awaiting)
	})
	if errors.Is(err, domain.ErrBusy) {
		return busy, nil, err
	}
	if err != nil {
		return domain.Outcome{}, nil, err
	}

	m.engine.EmitProcessing(ctx, sessionID, true)
	m.notify(before, awaiting)
	defer m.engine.EmitProcessing(context.WithoutCancel(ctx), sessionID, false)

	turn, navErr := m.engine.Evaluate(ctx, awaiting, utterance)

	// Commit even if the caller went away, so the session doesn't stay stuck
	// in AwaitingOracle.
	commitCtx := context.WithoutCancel(ctx)
	var committed, prev, restored *domain.State
	discarded := false
	err = m.withEntry(commitCtx, sessionID, entry, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, sessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			discarded = true
			return nil
		}
		if err != nil {
			return err
		}
		if current.Turn != token {
			discarded = true
			committed = current
			return nil
		}
		next := turn.Next.Snapshot()
		next.Status = domain.StatusIdle
		next.Turn = ""
		next.TurnStarted = time.Time{}
		if err := m.store.Save(ctx, sessionID, next); err != nil {
			restored = m.releaseTurn(ctx, sessionID, before)
			return err
		}
		prev, committed = current, next
		return nil
	})
	if err != nil {
		if restored != nil {
			m.notify(awaiting, restored)
		}
		return domain.Outcome{}, nil, errors.Join(navErr, fmt.Errorf("failed to commit turn: %w", err))
	}
	if discarded {
		m.logger.Debug("turn discarded", "session_id", sessionID, "utterance", utterance)
		out := domain.Outcome{Kind: domain.OutcomeIdle, Utterance: utterance}
		return out, m.view(committed), navErr
	}

	turn.Commit(ctx)
	m.notify(prev, committed)
	if turn.Outcome.Kind == domain.OutcomeVisited {
		m.scheduleHighlight(sessionID, committed.Highlight)
	}
	return turn.Outcome, m.view(committed), navErr
}

// releaseTurn writes the pre-turn state back as idle. It returns nil if that
// fails too, leaving the turn to expire with the lease.
func (m *Manager) releaseTurn(ctx context.Context, sessionID string, before *domain.State) *domain.State {
	idle := before.Snapshot()
	idle.Status = domain.StatusIdle
	idle.Turn = ""
	idle.TurnStarted = time.Time{}
	if err := m.store.Save(ctx, sessionID, idle); err != nil {
		m.logger.Warn("failed to release turn (will expire via lease)",
			"session_id", sessionID,
			"err", err,
		)
		return nil
	}
	return idle
}

// Reset clears a session back to its initial state. A turn awaiting the
// Oracle is discarded when it returns.
func (m *Manager) Reset(ctx context.Context, sessionID string) (*domain.State, error) {
	var prev, state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		prev, err = m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		state = m.engine.Reset(ctx, prev)
		if err := m.store.Save(ctx, sessionID, state); err != nil {
			return err
		}
		m.stopHighlight(sessionID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.notify(prev, state)
	return state.Snapshot(), nil
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if _, err := m.store.Load(ctx, sessionID); err != nil {
			return err
		}
		m.stopHighlight(sessionID)
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Close stops pending highlight timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// view hides an expired highlight without writing it back.
func (m *Manager) view(state *domain.State) *domain.State {
	if state == nil {
		return nil
	}
	snap := state.Snapshot()
	if snap.HighlightedAt(m.engine.Now()) == "" {
		snap.Highlight = nil
	}
	return snap
}

func (m *Manager) scheduleHighlight(sessionID string, h *domain.Highlight) {
	if h == nil {
		return
	}
	delay := max(h.ExpiresAt.Sub(m.engine.Now()), 0)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if t, ok := m.timers[sessionID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		current, ok := m.timers[sessionID]
		if !ok || current != timer {
			m.mu.Unlock()
			return
		}
		delete(m.timers, sessionID)
		m.mu.Unlock()
		m.clearHighlight(sessionID, h.NodeID)
	})
	m.timers[sessionID] = timer
}

func (m *Manager) stopHighlight(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[sessionID]; ok {
		t.Stop()
		delete(m.timers, sessionID)
	}
}

func (m *Manager) clearHighlight(sessionID, nodeID string) {
	ctx := context.Background()
	var prev, cleared *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if state.Highlight == nil || state.Highlight.NodeID != nodeID {
			return nil
		}
		next, changed := m.engine.ExpireHighlight(ctx, state)
		if !changed {
			return nil
		}
		if err := m.store.Save(ctx, sessionID, next); err != nil {
			return err
		}
		prev, cleared = state, next
		return nil
	})
	if cleared != nil {
		m.notify(prev, cleared)
	}
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		m.logger.Warn("failed to clear highlight", "session_id", sessionID, "err", err)
	}
}

func (m *Manager) notify(prev, next *domain.State) {
	if m.observer == nil {
		return
	}
	if diff := domain.Diff(prev, next); diff != nil {
		m.observer(diff)
	}
}
