package runner

import (
	"context"

	"github.com/aretw0/convograph/pkg/domain"
)

// Session is the traversal session driven by the Runner.
// *runtime.Session satisfies it.
type Session interface {
	Submit(ctx context.Context, utterance string) (domain.Outcome, error)
	Reset(ctx context.Context) *domain.State
	Snapshot() *domain.State
	Projections() []domain.Projection
	Progress() domain.Progress
}

// IOHandler defines the strategy for interacting with the speaker.
// This allows switching between Text (CLI/TUI) and NDJSON (structured) modes.
type IOHandler interface {
	// Input reads the next utterance or command.
	Input(ctx context.Context) (string, error)

	// Outcome presents the result of one utterance.
	Outcome(ctx context.Context, out domain.Outcome, report *Report) error

	// Status presents the whole session view (nodes and progress).
	Status(ctx context.Context, report *Report) error

	// SystemOutput presents a meta-message (e.g. reload notices, command acks).
	// This is distinct from turn results.
	SystemOutput(ctx context.Context, msg string) error
}
