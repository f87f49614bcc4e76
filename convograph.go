package convograph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/internal/runtime"
	"github.com/aretw0/convograph/pkg/adapters/file"
	"github.com/aretw0/convograph/pkg/adapters/lexical"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
	"github.com/aretw0/convograph/pkg/ports"
)

// Session is an in-process traversal session. See Engine.NewSession.
type Session = runtime.Session

// SessionOption configures a Session.
type SessionOption = runtime.SessionOption

// ScoringPolicy turns a similarity into node points.
type ScoringPolicy = runtime.ScoringPolicy

// Built-in scoring policies.
type (
	DifficultyPolicy = runtime.DifficultyPolicy
	PercentagePolicy = runtime.PercentagePolicy
)

// ParsePolicy maps "difficulty" or "percentage" to a ScoringPolicy.
func ParsePolicy(name string) (ScoringPolicy, error) { return runtime.ParsePolicy(name) }

// WithObserver registers a callback receiving every session state change as a diff.
func WithObserver(fn func(*domain.StateDiff)) SessionOption { return runtime.WithObserver(fn) }

// Engine is the high-level entry point for the convograph library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime *runtime.Engine
	graph   *graph.Graph
	source  ports.DocumentSource
	oracle  ports.Oracle
	logger  *slog.Logger

	ownsOracle  bool
	runtimeOpts []runtime.EngineOption

	// Name is the document base name without extension.
	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithOracle injects the similarity oracle. The default is the offline lexical oracle.
// The caller keeps ownership: Engine.Close does not close an injected oracle.
func WithOracle(o ports.Oracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithScoringPolicy replaces the default DifficultyPolicy.
func WithScoringPolicy(p ScoringPolicy) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithScoringPolicy(p))
	}
}

// WithConfidenceThreshold sets the similarity a match must strictly exceed (default 0.5).
func WithConfidenceThreshold(t float64) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithConfidenceThreshold(t))
	}
}

// WithHighlightTTL sets how long a visited node stays highlighted (default 2s).
func WithHighlightTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithHighlightTTL(d))
	}
}

// WithSource injects a custom DocumentSource, bypassing the file source.
func WithSource(src ports.DocumentSource) Option {
	return func(e *Engine) {
		e.source = src
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(now))
	}
}

// WithTracer overrides the OpenTelemetry tracer used for turn spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithTracer(t))
	}
}

// New loads a graph document and builds an Engine over it.
// By default, it reads the file at documentPath (JSON or YAML by extension).
// If WithSource is provided, documentPath may be empty.
//
// The Oracle is not initialized here; call InitOracle (often in the background)
// and turns report a loading outcome until it is ready.
func New(documentPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.source == nil {
		if documentPath == "" {
			return nil, fmt.Errorf("documentPath is required when no custom source is provided")
		}
		absPath, err := filepath.Abs(documentPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.source = file.NewSource(absPath, file.WithLogger(eng.logger))
	}

	data, name, err := eng.source.Read(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read graph document: %w", err)
	}
	g, err := graph.LoadBytes(data, graph.FormatFromPath(name))
	if err != nil {
		var le *graph.LoadError
		if errors.As(err, &le) {
			le.Source = name
		}
		return nil, err
	}
	eng.graph = g

	if name != "" {
		base := filepath.Base(name)
		eng.Name = strings.TrimSuffix(base, filepath.Ext(base))
		eng.logger = eng.logger.With("graph", eng.Name)
	}
	for _, d := range g.DroppedEdges() {
		eng.logger.Warn("edge dropped", "index", d.Index, "from", d.Edge.From, "to", d.Edge.To, "reason", d.Reason)
	}

	if eng.oracle == nil {
		eng.oracle = lexical.New()
		eng.ownsOracle = true
	}

	runtimeOpts := append([]runtime.EngineOption{runtime.WithLogger(eng.logger)}, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(g, eng.oracle, runtimeOpts...)
	return eng, nil
}

// InitOracle loads the similarity model. It may block until the model is ready.
func (e *Engine) InitOracle(ctx context.Context) error {
	if e.oracle.Ready() {
		return nil
	}
	started := time.Now()
	if err := e.oracle.Init(ctx); err != nil {
		return fmt.Errorf("oracle init failed: %w", err)
	}
	e.logger.Info("oracle ready", "elapsed", time.Since(started))
	return nil
}

// Ready reports whether the Oracle can score utterances.
func (e *Engine) Ready() bool { return e.runtime.Ready() }

// NewSession starts an in-process session over the graph.
func (e *Engine) NewSession(ctx context.Context, sessionID string, opts ...SessionOption) *Session {
	return e.runtime.NewSession(ctx, sessionID, opts...)
}

// Graph returns the loaded graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Runtime returns the stateless traversal core, used by session.Manager and the adapters.
func (e *Engine) Runtime() *runtime.Engine { return e.runtime }

// Oracle returns the similarity oracle.
func (e *Engine) Oracle() ports.Oracle { return e.oracle }

// Source returns the document source the graph was read from.
func (e *Engine) Source() ports.DocumentSource { return e.source }

// Watch returns a channel that signals when the underlying document changes.
// Returns error if the source does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := e.source.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current source does not support watching")
}

// Close releases the default oracle. Injected oracles are left to the caller.
func (e *Engine) Close() error {
	if e.ownsOracle {
		return e.oracle.Close()
	}
	return nil
}
