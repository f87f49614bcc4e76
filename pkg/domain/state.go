package domain

import (
	"slices"
	"time"
)

// Status is the processing mode of a session.
type Status string

const (
	StatusIdle           Status = "idle"            // Ready for an utterance
	StatusAwaitingOracle Status = "awaiting_oracle" // An utterance is being scored
)

// Highlight marks the most recently visited node until it expires.
type Highlight struct {
	NodeID    string    `json:"node_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// State represents the snapshot of one traversal session.
type State struct {
	SessionID string `json:"session_id"`

	// Visited lists node ids in visit order. It only grows until a reset.
	Visited []string `json:"visited"`

	// Scores holds the score awarded to each visited node.
	Scores map[string]float64 `json:"scores"`

	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`

	Highlight     *Highlight `json:"highlight,omitempty"`
	LastUtterance string     `json:"last_utterance,omitempty"`
	Status        Status     `json:"status"`

	// Turn identifies the utterance awaiting the Oracle in stores shared by
	// several processes. It is empty while idle.
	Turn string `json:"turn,omitempty"`

	// TurnStarted is when Turn was claimed. A turn older than the manager's
	// lease is treated as abandoned.
	TurnStarted time.Time `json:"turn_started,omitzero"`

	// Complete is derived from Visited: true iff the terminal node was visited.
	Complete bool `json:"complete"`
}

// NewState creates a clean session state.
func NewState(sessionID string, maxScore float64) *State {
	return &State{
		SessionID: sessionID,
		Visited:   []string{},
		Scores:    make(map[string]float64),
		MaxScore:  maxScore,
		Status:    StatusIdle,
	}
}

// HasVisited reports whether the node id is in the visited set.
func (s *State) HasVisited(id string) bool {
	return slices.Contains(s.Visited, id)
}

// VisitedSet returns the visited ids as a set.
func (s *State) VisitedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Visited))
	for _, id := range s.Visited {
		set[id] = struct{}{}
	}
	return set
}

// HighlightedAt returns the highlighted node id if the highlight has not expired at now.
func (s *State) HighlightedAt(now time.Time) string {
	if s.Highlight == nil || !now.Before(s.Highlight.ExpiresAt) {
		return ""
	}
	return s.Highlight.NodeID
}

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Visited = slices.Clone(s.Visited)
	if c.Visited == nil {
		c.Visited = []string{}
	}
	c.Scores = make(map[string]float64, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	if s.Highlight != nil {
		h := *s.Highlight
		c.Highlight = &h
	}
	return &c
}

// Projection is the derived runtime view of a single node.
type Projection struct {
	NodeID      string   `json:"node_id"`
	Visited     bool     `json:"visited"`
	Available   bool     `json:"available"`
	Highlighted bool     `json:"highlighted"`
	Score       *float64 `json:"score,omitempty"`
}

// Progress summarizes how far a session has come.
type Progress struct {
	Visited    int     `json:"visited"`
	Total      int     `json:"total"`
	Available  int     `json:"available"`
	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`
	Percent    float64 `json:"percent"`
	Complete   bool    `json:"complete"`
}
