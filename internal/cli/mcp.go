package cli

import (
	"context"
	"fmt"

	"github.com/aretw0/convograph"
	"github.com/aretw0/convograph/pkg/adapters/mcp"
	"github.com/aretw0/convograph/pkg/domain"
)

// ServeMCP exposes the session tools over stdio, or SSE when port > 0.
// Logs go to stderr so stdio stays a clean JSON-RPC channel.
func ServeMCP(ctx context.Context, opts Options, transport string, port int) error {
	logger := createLogger(opts.Config, opts.Debug, false)
	ctx, stop := signalContext(ctx)
	defer stop()

	b, err := openBackend(ctx, opts, logger, domain.LifecycleHooks{})
	if err != nil {
		return err
	}
	defer b.Close()

	srv := mcp.NewServer(b.manager, convograph.Version, mcp.WithLogger(logger), mcp.WithMaxInputSize(opts.Config.MaxInputSize))
	switch transport {
	case "", "stdio":
		logger.Info("MCP Server listening (stdio)", "graph", b.engine.Name)
		return srv.ServeStdio()
	case "sse":
		return srv.ServeSSE(ctx, port)
	default:
		return fmt.Errorf("unknown transport %q (use stdio or sse)", transport)
	}
}
