package cli

import (
	"context"
	"errors"

	"github.com/aretw0/convograph/pkg/protocol"
)

// RunWorker serves the configured Oracle over the worker protocol on stdin and
// stdout until input ends. A process provider is rejected: a worker cannot
// delegate to another worker.
func RunWorker(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg.Oracle.Provider == "process" {
		return errors.New("worker mode needs an in-process oracle provider (lexical, ollama or genai)")
	}
	logger := createLogger(cfg, opts.Debug, false)
	ctx, stop := signalContext(ctx)
	defer stop()

	o, err := createOracle(ctx, cfg.Oracle, nil, logger)
	if err != nil {
		return err
	}
	defer o.Close()

	logger.Info("Worker ready", "provider", cfg.Oracle.Provider)
	err = protocol.Serve(ctx, opts.stdin(), opts.stdout(), o, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
