package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/pkg/domain"
)

// Loop commands. Anything else is submitted as an utterance.
const (
	CommandReset  = ":reset"
	CommandStatus = ":status"
	CommandQuit   = ":quit"
)

// Runner handles the utterance loop of a session using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs NDJSON).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	Headless       bool
	ExitOnComplete bool
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run reads utterances until :quit, end of input, or an interrupt signal, all of
// which return nil. When ctx itself ends, Run returns ctx.Err().
func (r *Runner) Run(ctx context.Context, sess Session) error {
	handler := r.resolveHandler()

	signals := NewSignalManager(ctx)
	defer signals.Stop()

	if !r.Headless {
		if err := handler.Status(ctx, NewReport(sess)); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}

	for {
		loopCtx := signals.Context()

		line, err := handler.Input(loopCtx)
		if err != nil {
			signals.CheckRace()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if signals.Interrupted() {
				r.Logger.Debug("Runner input: interrupted")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		done, err := r.step(loopCtx, handler, sess, strings.TrimSpace(line))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if signals.Interrupted() {
				return nil
			}
			return err
		}
		if done {
			return nil
		}
	}
}

// step handles one input line. It reports whether the loop should stop.
func (r *Runner) step(ctx context.Context, handler IOHandler, sess Session, line string) (bool, error) {
	switch line {
	case CommandQuit, ":exit":
		return true, nil
	case CommandReset:
		sess.Reset(ctx)
		if err := handler.SystemOutput(ctx, "Session reset."); err != nil {
			return false, err
		}
		return false, handler.Status(ctx, NewReport(sess))
	case CommandStatus:
		return false, handler.Status(ctx, NewReport(sess))
	}

	out, err := sess.Submit(ctx, line)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrOracleUnavailable):
		r.Logger.Debug("turn not processed", "kind", out.Kind, "err", err)
	case errors.Is(err, domain.ErrOracleFailure):
		r.Logger.Warn("oracle failure", "err", err)
	default:
		return false, fmt.Errorf("submit failed: %w", err)
	}

	if err := handler.Outcome(ctx, out, NewReport(sess)); err != nil {
		return false, fmt.Errorf("output error: %w", err)
	}
	r.Logger.Debug("turn", "kind", out.Kind, "node_id", out.NodeID, "similarity", out.Similarity, "score", out.Score, "candidates", out.Candidates)
	return out.Complete && r.ExitOnComplete && out.Changed(), nil
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	// Memoize to prevent creating new pumps on subsequent Run() calls
	r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	return r.Handler
}
