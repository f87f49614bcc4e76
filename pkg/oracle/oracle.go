package oracle

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
)

// ScoreFunc computes one similarity per candidate.
type ScoreFunc func(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error)

// Func adapts a ScoreFunc to ports.Oracle. It becomes ready after Init and
// unready after Close.
type Func struct {
	score ScoreFunc
	ready atomic.Bool
}

// FromFunc wraps fn.
func FromFunc(fn ScoreFunc) *Func {
	return &Func{score: fn}
}

func (f *Func) Init(ctx context.Context) error {
	f.ready.Store(true)
	return nil
}

func (f *Func) Ready() bool { return f.ready.Load() }

func (f *Func) Score(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
	if !f.ready.Load() {
		return nil, domain.ErrOracleUnavailable
	}
	return f.score(ctx, query, candidates)
}

func (f *Func) Close() error {
	f.ready.Store(false)
	return nil
}

// Middleware decorates an Oracle's Score call.
type Middleware func(ports.Oracle) ports.Oracle

// Chain applies middlewares so the first one is outermost.
func Chain(o ports.Oracle, mws ...Middleware) ports.Oracle {
	for i := len(mws) - 1; i >= 0; i-- {
		o = mws[i](o)
	}
	return o
}

// scoreWrapper overrides Score and delegates the lifecycle to the wrapped Oracle.
type scoreWrapper struct {
	ports.Oracle
	score ScoreFunc
}

func (w *scoreWrapper) Score(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
	return w.score(ctx, query, candidates)
}
