package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/convograph"
	"github.com/aretw0/convograph/internal/config"
	"github.com/aretw0/convograph/pkg/adapters/embedding"
	"github.com/aretw0/convograph/pkg/adapters/lexical"
	"github.com/aretw0/convograph/pkg/adapters/process"
	"github.com/aretw0/convograph/pkg/graph"
	"github.com/aretw0/convograph/pkg/oracle"
	"github.com/aretw0/convograph/pkg/ports"
)

// createOracle builds the configured Oracle wrapped in the breaker and the
// timeout. The breaker is outermost so timeouts count as failures.
// warmup texts are embedded during Init by the embedding providers.
func createOracle(ctx context.Context, cfg config.OracleConfig, warmup []string, logger *slog.Logger) (ports.Oracle, error) {
	var base ports.Oracle
	switch cfg.Provider {
	case "", "lexical":
		base = lexical.New()
	case "ollama":
		base = embedding.NewOracle(
			embedding.NewOllamaEmbedder(cfg.OllamaEndpoint, cfg.OllamaModel),
			embedding.WithLogger(logger),
			embedding.WithWarmup(warmup),
		)
	case "genai":
		embedder, err := embedding.NewGenAIEmbedder(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.GenAITaskType)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai embedder: %w", err)
		}
		base = embedding.NewOracle(embedder, embedding.WithLogger(logger), embedding.WithWarmup(warmup))
	case "process":
		worker, err := process.ResolveWorker(cfg.WorkerCommand)
		if err != nil {
			return nil, err
		}
		base = process.NewClient(worker, process.WithLogger(logger), process.WithStderr(os.Stderr))
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}

	breaker := oracle.DefaultBreakerConfig("oracle:" + cfg.Provider)
	if cfg.BreakerFailureRatio > 0 {
		breaker.FailureThreshold = cfg.BreakerFailureRatio
	}
	if cfg.BreakerMinRequests > 0 {
		breaker.MinRequests = cfg.BreakerMinRequests
	}
	if cfg.BreakerOpenTimeout > 0 {
		breaker.Timeout = cfg.BreakerOpenTimeout
	}

	return oracle.Chain(base,
		oracle.Breaker(breaker, logger),
		oracle.Timeout(cfg.Timeout),
	), nil
}

// engineOptions translates the scoring configuration into facade options.
func engineOptions(cfg *config.Config, logger *slog.Logger) ([]convograph.Option, error) {
	policy, err := convograph.ParsePolicy(cfg.Scoring.Policy)
	if err != nil {
		return nil, err
	}
	return []convograph.Option{
		convograph.WithLogger(logger),
		convograph.WithScoringPolicy(policy),
		convograph.WithConfidenceThreshold(cfg.Scoring.Threshold),
		convograph.WithHighlightTTL(cfg.Scoring.HighlightTTL),
	}, nil
}

// createEngine loads the graph at path with the given Oracle. The caller owns o.
func createEngine(path string, cfg *config.Config, o ports.Oracle, logger *slog.Logger, extra ...convograph.Option) (*convograph.Engine, error) {
	opts, err := engineOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, convograph.WithOracle(o))
	opts = append(opts, extra...)

	engine, err := convograph.New(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}

// nodeContents returns the node texts of the document at path, or nil when it
// cannot be loaded. Engine creation reports the load error.
func nodeContents(path string) []string {
	g, err := graph.LoadFile(path)
	if err != nil {
		return nil
	}
	out := make([]string, 0, g.Len())
	for _, n := range g.Nodes() {
		out = append(out, n.Content)
	}
	return out
}

// initOracleAsync loads the model in the background so turns report a loading
// outcome meanwhile. onReady runs once Init succeeds.
func initOracleAsync(ctx context.Context, engine *convograph.Engine, logger *slog.Logger, onReady func()) {
	go func() {
		if err := engine.InitOracle(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Error("Oracle initialization failed", "err", err)
			}
			return
		}
		if onReady != nil {
			onReady()
		}
	}()
}
