package runner

import (
	"github.com/aretw0/convograph/pkg/domain"
)

// Report combines state, node projections and progress for rich clients.
type Report struct {
	State       *domain.State       `json:"state"`
	Projections []domain.Projection `json:"projections"`
	Progress    domain.Progress     `json:"progress"`
}

// NewReport captures the current view of a session.
func NewReport(sess Session) *Report {
	return &Report{
		State:       sess.Snapshot(),
		Projections: sess.Projections(),
		Progress:    sess.Progress(),
	}
}
