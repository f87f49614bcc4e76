package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/convograph/internal/presentation/tui"
	"github.com/aretw0/convograph/pkg/adapters/file"
	"github.com/aretw0/convograph/pkg/ports"
	"github.com/aretw0/convograph/pkg/runner"
)

// reloadSettle lets editors finish writing before the document is re-read.
const reloadSettle = 100 * time.Millisecond

// RunWatch runs the utterance loop and restarts it with a fresh session every
// time the document changes. The Oracle and the IO handler survive reloads so
// the model loads once and there is a single stdin reader.
func RunWatch(ctx context.Context, opts Options) error {
	logger := createLogger(opts.Config, opts.Debug, true)
	out := opts.stdout()
	ctx, stop := signalContext(ctx)
	defer stop()
	tui.PrintBanner(out)

	path := opts.Config.GraphPath
	o, err := createOracle(ctx, opts.Config.Oracle, nodeContents(path), logger)
	if err != nil {
		return err
	}
	defer o.Close()

	handler := createHandler(opts, logger)
	go func() {
		if err := o.Init(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Error("Oracle initialization failed", "err", err)
			}
			return
		}
		_ = handler.SystemOutput(ctx, "Similarity model ready.")
	}()

	logger.Info("Starting Watcher", "path", path)
	printSystemMessage(out, "Watching '%s'.", path)

	for {
		reload, err := runWatchIteration(ctx, opts, o, handler, logger)
		if err != nil {
			return err
		}
		if !reload {
			return nil
		}
		logger.Info("Watcher restarting")
	}
}

// runWatchIteration runs one session and reports whether the loop should
// start again because the document changed.
func runWatchIteration(parent context.Context, opts Options, o ports.Oracle, handler runner.IOHandler, logger *slog.Logger) (bool, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	path := opts.Config.GraphPath
	out := opts.stdout()

	engine, err := createEngine(path, opts.Config, o, logger)
	if err != nil {
		printSystemMessage(out, "%v", err)
		printSystemMessage(out, "Waiting for changes...")
		return waitForChange(ctx, file.NewSource(path, file.WithLogger(logger)))
	}
	defer engine.Close()

	changes, err := engine.Watch(ctx)
	if err != nil {
		return false, fmt.Errorf("watch failed: %w", err)
	}

	sess := engine.NewSession(ctx, opts.sessionID())
	defer sess.Close()

	r := runner.NewRunner(
		runner.WithLogger(logger),
		runner.WithInputHandler(handler),
	)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx, sess) }()

	select {
	case <-parent.Done():
		runCancel()
		<-done
		return false, nil
	case _, ok := <-changes:
		runCancel()
		<-done
		if !ok {
			return false, nil
		}
		time.Sleep(reloadSettle)
		printSystemMessage(out, "Change detected in '%s', starting a fresh session.", path)
		return true, nil
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Runtime error", "err", err)
			return false, err
		}
		return false, nil
	}
}

func waitForChange(ctx context.Context, src ports.Watchable) (bool, error) {
	changes, err := src.Watch(ctx)
	if err != nil {
		return false, fmt.Errorf("watch failed: %w", err)
	}
	select {
	case <-ctx.Done():
		return false, nil
	case _, ok := <-changes:
		time.Sleep(reloadSettle)
		return ok, nil
	}
}
