package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/convograph"
	"github.com/aretw0/convograph/internal/presentation/tui"
	"github.com/aretw0/convograph/pkg/observability"
	"github.com/aretw0/convograph/pkg/runner"
)

// Execute handles the 'run' command, dispatching to session or watch mode.
func Execute(ctx context.Context, opts Options) error {
	if opts.Config == nil || opts.Config.GraphPath == "" {
		return errors.New("a graph document is required")
	}
	if opts.Watch {
		if opts.Headless || opts.JSON {
			return errors.New("--watch cannot be combined with --headless or --json")
		}
		return RunWatch(ctx, opts)
	}
	return RunSession(ctx, opts)
}

// RunSession runs one utterance loop over the graph.
func RunSession(ctx context.Context, opts Options) error {
	interactive := !opts.JSON && !opts.Headless
	logger := createLogger(opts.Config, opts.Debug, interactive)
	out := opts.stdout()

	if interactive {
		tui.PrintBanner(out)
	}

	path := opts.Config.GraphPath
	o, err := createOracle(ctx, opts.Config.Oracle, nodeContents(path), logger)
	if err != nil {
		return err
	}
	defer o.Close()

	var extra []convograph.Option
	if opts.Debug {
		extra = append(extra, convograph.WithLifecycleHooks(observability.LoggingHooks(logger)))
	}
	engine, err := createEngine(path, opts.Config, o, logger, extra...)
	if err != nil {
		return err
	}
	defer engine.Close()

	handler := createHandler(opts, logger)
	if !engine.Ready() {
		initOracleAsync(ctx, engine, logger, func() {
			_ = handler.SystemOutput(ctx, "Similarity model ready.")
		})
	}

	sess := engine.NewSession(ctx, opts.sessionID())
	defer sess.Close()
	logger.Info("Session Created", "session_id", opts.sessionID(), "graph", engine.Name)

	r := runner.NewRunner(
		runner.WithLogger(logger),
		runner.WithHeadless(opts.Headless),
		runner.WithExitOnComplete(opts.ExitOnComplete),
		runner.WithInputHandler(handler),
	)
	if err := r.Run(ctx, sess); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run failed: %w", err)
	}

	if interactive {
		p := sess.Progress()
		printSystemMessage(out, "Finished with %d/%d node(s) visited.", p.Visited, p.Total)
	}
	return nil
}

// createHandler picks the NDJSON or text handler. Text output is rendered as
// markdown when stdout is a terminal.
func createHandler(opts Options, logger *slog.Logger) runner.IOHandler {
	sanitizer := runner.Sanitizer{MaxBytes: opts.Config.MaxInputSize}
	if opts.JSON {
		h := runner.NewJSONHandler(opts.stdin(), opts.stdout())
		h.Sanitizer = sanitizer
		return h
	}
	var hopts []runner.TextHandlerOption
	if tui.IsTerminal(opts.stdout()) {
		render, err := tui.NewRenderer(opts.stdout())
		if err != nil {
			logger.Warn("Markdown renderer unavailable", "err", err)
		} else {
			hopts = append(hopts, runner.WithTextHandlerRenderer(render))
		}
	}
	h := runner.NewTextHandler(opts.stdin(), opts.stdout(), hopts...)
	h.Sanitizer = sanitizer
	return h
}
