package domain

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Reset is set when the visited set shrank, which only happens on a session reset.
	// Clients should drop their local copy and apply the rest of the diff on a clean slate.
	Reset bool `json:"reset,omitempty"`

	// VisitedDelta contains *new* node ids appended to the visited list.
	VisitedDelta *VisitedDelta `json:"visited,omitempty"`

	// Scores contains per-node scores that were added or changed.
	Scores map[string]float64 `json:"scores,omitempty"`

	TotalScore *float64 `json:"total_score,omitempty"`

	// Highlighted carries the new highlighted node id; "" means the highlight cleared.
	Highlighted *string `json:"highlighted,omitempty"`

	Status   *Status `json:"status,omitempty"`
	Complete *bool   `json:"complete,omitempty"`
}

// VisitedDelta represents changes to the visited list.
type VisitedDelta struct {
	Appended []string `json:"appended"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		SessionID: newState.SessionID,
	}

	if oldState != nil && len(newState.Visited) < len(oldState.Visited) {
		diff.Reset = true
		oldState = nil
	}

	// 1. Visited / Scores
	diff.VisitedDelta = diffVisited(oldState, newState)
	diff.Scores = diffScores(oldState, newState)

	// 2. Scalars
	if oldState == nil || oldState.TotalScore != newState.TotalScore {
		total := newState.TotalScore
		diff.TotalScore = &total
	}
	oldHighlight, newHighlight := highlightID(oldState), highlightID(newState)
	if oldState == nil && newHighlight != "" || oldState != nil && oldHighlight != newHighlight {
		diff.Highlighted = &newHighlight
	}
	if oldState == nil || oldState.Status != newState.Status {
		status := newState.Status
		diff.Status = &status
	}
	if oldState == nil && newState.Complete || oldState != nil && oldState.Complete != newState.Complete {
		complete := newState.Complete
		diff.Complete = &complete
	}

	if diff.IsEmpty() {
		return nil
	}

	return diff
}

func highlightID(s *State) string {
	if s == nil || s.Highlight == nil {
		return ""
	}
	return s.Highlight.NodeID
}

// diffVisited assumes the append-only behavior of Visited between resets.
func diffVisited(old *State, new *State) *VisitedDelta {
	if len(new.Visited) == 0 {
		return nil
	}

	if old == nil {
		return &VisitedDelta{Appended: append([]string(nil), new.Visited...)}
	}

	oldLen := len(old.Visited)
	if len(new.Visited) > oldLen {
		return &VisitedDelta{
			Appended: append([]string(nil), new.Visited[oldLen:]...),
		}
	}

	return nil
}

func diffScores(old *State, new *State) map[string]float64 {
	delta := make(map[string]float64)
	for k, v := range new.Scores {
		if old == nil {
			delta[k] = v
			continue
		}
		if prev, ok := old.Scores[k]; !ok || prev != v {
			delta[k] = v
		}
	}

	// Return nil if delta is empty so omitempty can remove the key
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return !d.Reset &&
		d.VisitedDelta == nil &&
		len(d.Scores) == 0 &&
		d.TotalScore == nil &&
		d.Highlighted == nil &&
		d.Status == nil &&
		d.Complete == nil
}
