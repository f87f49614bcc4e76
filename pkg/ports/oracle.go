package ports

import "context"

// Candidate is a node offered to the Oracle for scoring.
type Candidate struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Oracle computes textual similarity between an utterance and candidate texts.
//
// Implementations own their model lifecycle: Init loads it, Ready reports whether
// Score may be called, Close releases it.
type Oracle interface {
	// Init prepares the underlying model. It may block until the model is loaded.
	Init(ctx context.Context) error

	// Ready reports whether Init has completed successfully.
	Ready() bool

	// Score returns one similarity in [0,1] per candidate, in candidate order.
	// It returns domain.ErrOracleUnavailable if called before the Oracle is ready.
	Score(ctx context.Context, query string, candidates []Candidate) ([]float64, error)

	// Close releases the model and any process or connection behind it.
	Close() error
}
