package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventVisitCommitted    EventType = "visit_committed"
	EventNoConfidentMatch  EventType = "no_confident_match"
	EventSessionComplete   EventType = "session_complete"
	EventProcessingChanged EventType = "processing_changed"
	EventHighlightCleared  EventType = "highlight_cleared"
	EventSessionReset      EventType = "session_reset"
	EventOracleCall        EventType = "oracle_call"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// VisitEvent is emitted when a node is committed as visited.
type VisitEvent struct {
	EventBase
	NodeID     string  `json:"node_id"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
	TotalScore float64 `json:"total_score"`
	Feedback   string  `json:"feedback,omitempty"`
}

// MatchEvent is emitted when an utterance did not match any candidate confidently.
type MatchEvent struct {
	EventBase
	Utterance  string  `json:"utterance"`
	BestNodeID string  `json:"best_node_id,omitempty"`
	Similarity float64 `json:"similarity"`
}

// ProcessingEvent reports the busy/idle flag of a session.
type ProcessingEvent struct {
	EventBase
	Processing bool `json:"processing"`
}

// SessionEvent covers completion, reset and highlight expiry.
type SessionEvent struct {
	EventBase
	NodeID string `json:"node_id,omitempty"`
}

// OracleEvent describes one call to the similarity oracle.
type OracleEvent struct {
	EventBase
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnVisit            func(context.Context, *VisitEvent)
	OnNoMatch          func(context.Context, *MatchEvent)
	OnComplete         func(context.Context, *SessionEvent)
	OnProcessing       func(context.Context, *ProcessingEvent)
	OnHighlightCleared func(context.Context, *SessionEvent)
	OnReset            func(context.Context, *SessionEvent)
	OnOracleCall       func(context.Context, *OracleEvent)
}

// ComposeHooks fans every callback out to each of the given hook sets, in order.
func ComposeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		out.OnVisit = chain(out.OnVisit, h.OnVisit)
		out.OnNoMatch = chain(out.OnNoMatch, h.OnNoMatch)
		out.OnComplete = chain(out.OnComplete, h.OnComplete)
		out.OnProcessing = chain(out.OnProcessing, h.OnProcessing)
		out.OnHighlightCleared = chain(out.OnHighlightCleared, h.OnHighlightCleared)
		out.OnReset = chain(out.OnReset, h.OnReset)
		out.OnOracleCall = chain(out.OnOracleCall, h.OnOracleCall)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
