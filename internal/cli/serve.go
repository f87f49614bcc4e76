package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/convograph"
	"github.com/aretw0/convograph/internal/config"
	"github.com/aretw0/convograph/pkg/adapters/file"
	"github.com/aretw0/convograph/pkg/adapters/memory"
	"github.com/aretw0/convograph/pkg/adapters/redis"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/observability"
	"github.com/aretw0/convograph/pkg/persistence/middleware"
	"github.com/aretw0/convograph/pkg/ports"
	"github.com/aretw0/convograph/pkg/session"

	httpadapter "github.com/aretw0/convograph/pkg/adapters/http"
)

// backend is the engine, Oracle and session manager shared by the network surfaces.
type backend struct {
	engine  *convograph.Engine
	manager *session.Manager
	closers []func() error
}

func (b *backend) Close() {
	if b.manager != nil {
		b.manager.Close()
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackend wires the Oracle, the engine and a session manager backed by
// redis or a session directory when configured, memory otherwise. The Oracle loads in the background.
func openBackend(ctx context.Context, opts Options, logger *slog.Logger, hooks domain.LifecycleHooks, mopts ...session.Option) (*backend, error) {
	cfg := opts.Config
	b := &backend{}

	o, err := createOracle(ctx, cfg.Oracle, nodeContents(cfg.GraphPath), logger)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, o.Close)

	engine, err := createEngine(cfg.GraphPath, cfg, o, logger, convograph.WithLifecycleHooks(hooks))
	if err != nil {
		_ = o.Close()
		return nil, err
	}
	b.engine = engine

	var store ports.StateStore = memory.NewStore()
	mopts = append(mopts, session.WithLogger(logger))
	switch {
	case cfg.UseRedis():
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			_ = o.Close()
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
		b.closers = append(b.closers, rs.Close)
		store = rs
		mopts = append(mopts, session.WithLocker(redis.NewLocker(rs.Client(), cfg.Redis.Prefix)))
		logger.Info("Using redis session store", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	case cfg.State.Dir != "":
		store = file.NewStore(cfg.State.Dir)
		logger.Info("Using file session store", "dir", cfg.State.Dir)
	}

	store, err = protectStore(cfg.State, store)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.manager = session.NewManager(engine.Runtime(), store, mopts...)
	initOracleAsync(ctx, engine, logger, nil)
	return b, nil
}

// protectStore masks and/or encrypts the persisted utterance as configured.
func protectStore(cfg config.StateConfig, store ports.StateStore) (ports.StateStore, error) {
	var mws []middleware.Middleware
	if cfg.Redact {
		patterns := cfg.RedactPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPIIPatterns
		}
		if _, err := middleware.CompilePatterns(patterns); err != nil {
			return nil, err
		}
		mws = append(mws, middleware.NewPIIMiddleware(patterns))
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback key: %w", err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	return middleware.Chain(store, mws...), nil
}

// Serve starts the REST/SSE server and blocks until ctx ends.
func Serve(ctx context.Context, opts Options) error {
	cfg := opts.Config
	logger := createLogger(cfg, opts.Debug, false)
	ctx, stop := signalContext(ctx)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, "convograph", strings.TrimSpace(convograph.Version), cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("Tracing disabled", "err", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	hooks := domain.ComposeHooks(metrics.Hooks(), observability.LoggingHooks(logger))

	streams := httpadapter.NewStreamManager(logger)
	b, err := openBackend(ctx, opts, logger, hooks, session.WithObserver(streams.Publish))
	if err != nil {
		return err
	}
	defer b.Close()

	srv := httpadapter.NewServer(b.manager,
		httpadapter.WithLogger(logger),
		httpadapter.WithStreams(streams),
		httpadapter.WithVersion(strings.TrimSpace(convograph.Version)),
		httpadapter.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		httpadapter.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...),
		httpadapter.WithMaxInputSize(cfg.MaxInputSize),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP Server listening", "address", httpServer.Addr, "graph", b.engine.Name)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Shutdown signal received, shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}
