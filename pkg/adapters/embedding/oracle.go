package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
)

// Oracle scores candidates by cosine similarity between embeddings. Candidate
// embeddings are cached by content, so only the query is embedded on most turns.
type Oracle struct {
	embedder  Embedder
	logger    *slog.Logger
	warmup    []string
	batchSize int
	ready     atomic.Bool

	mu    sync.RWMutex
	cache map[string][]float32
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Oracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWarmup embeds texts during Init so the first turns only embed the query.
func WithWarmup(texts []string) Option {
	return func(o *Oracle) {
		o.warmup = texts
	}
}

// WithBatchSize bounds how many texts go into one warmup request.
func WithBatchSize(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOracle wraps an embedder.
func NewOracle(embedder Embedder, opts ...Option) *Oracle {
	o := &Oracle{
		embedder:  embedder,
		logger:    logging.NewNop(),
		batchSize: 32,
		cache:     make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Init checks the backend and embeds the warmup texts.
func (o *Oracle) Init(ctx context.Context) error {
	started := time.Now()
	if hc, ok := o.embedder.(HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", o.embedder.Name(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(o.warmup); start += o.batchSize {
		batch := o.warmup[start:min(start+o.batchSize, len(o.warmup))]
		g.Go(func() error {
			vectors, err := o.embedder.Embed(gctx, batch)
			if err != nil {
				return err
			}
			o.store(batch, vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("warmup failed: %w", err)
	}

	o.ready.Store(true)
	o.logger.Info("embedding oracle ready", "embedder", o.embedder.Name(), "cached", len(o.warmup), "duration", time.Since(started))
	return nil
}

// Ready reports whether Init completed.
func (o *Oracle) Ready() bool { return o.ready.Load() }

// Score embeds the query (and any uncached candidates) and returns cosine
// similarities. Negative similarities are reported as 0.
func (o *Oracle) Score(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
	if !o.ready.Load() {
		return nil, domain.ErrOracleUnavailable
	}

	texts := []string{query}
	seen := make(map[string]bool)
	for _, c := range candidates {
		if _, ok := o.lookup(c.Content); !ok && !seen[c.Content] {
			seen[c.Content] = true
			texts = append(texts, c.Content)
		}
	}

	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	o.store(texts[1:], vectors[1:])

	queryVec := vectors[0]
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		vec, _ := o.lookup(c.Content)
		sim, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		scores[i] = max(0, min(1, sim))
	}
	return scores, nil
}

// Close marks the oracle unready and drops the cache.
func (o *Oracle) Close() error {
	o.ready.Store(false)
	o.mu.Lock()
	o.cache = make(map[string][]float32)
	o.mu.Unlock()
	return nil
}

func (o *Oracle) lookup(content string) ([]float32, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.cache[content]
	return v, ok
}

func (o *Oracle) store(texts []string, vectors [][]float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, t := range texts {
		if i < len(vectors) {
			o.cache[t] = vectors[i]
		}
	}
}
