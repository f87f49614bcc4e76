package domain

// OutcomeKind classifies the result of one utterance submission.
type OutcomeKind string

const (
	// OutcomeVisited means the best candidate was committed as visited.
	OutcomeVisited OutcomeKind = "visited"
	// OutcomeNoMatch means no candidate cleared the confidence threshold.
	OutcomeNoMatch OutcomeKind = "no_confident_match"
	// OutcomeIdle means there was nothing to do (blank utterance or no candidates).
	OutcomeIdle OutcomeKind = "idle"
	// OutcomeLoading means the oracle is not ready yet.
	OutcomeLoading OutcomeKind = "loading"
	// OutcomeFailed means the oracle call failed; nothing changed.
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeBusy means another utterance was still in flight.
	OutcomeBusy OutcomeKind = "busy"
)

// Outcome is the engine's answer to a single utterance.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Utterance  string      `json:"utterance,omitempty"`
	NodeID     string      `json:"node_id,omitempty"`
	Similarity float64     `json:"similarity,omitempty"`
	Score      float64     `json:"score,omitempty"`
	Feedback   *Response   `json:"feedback,omitempty"`
	Candidates int         `json:"candidates"`
	Complete   bool        `json:"complete,omitempty"`
}

// Changed reports whether the outcome mutated the visited set.
func (o Outcome) Changed() bool {
	return o.Kind == OutcomeVisited
}

// FeedbackText returns the selected response text, or "" when none was available.
func (o Outcome) FeedbackText() string {
	if o.Feedback == nil {
		return ""
	}
	return o.Feedback.Text
}
