// Package lexical provides an offline similarity Oracle based on bag-of-words
// cosine similarity. It needs no model, so it is ready as soon as Init returns.
package lexical

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
)

// Oracle scores texts by term-frequency cosine similarity after case folding
// and accent stripping.
type Oracle struct {
	ready     atomic.Bool
	stopwords map[string]struct{}
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithStopwords ignores the given words when comparing texts.
func WithStopwords(words ...string) Option {
	return func(o *Oracle) {
		for _, w := range words {
			for _, t := range Tokenize(w) {
				o.stopwords[t] = struct{}{}
			}
		}
	}
}

// New creates a lexical Oracle.
func New(opts ...Option) *Oracle {
	o := &Oracle{stopwords: make(map[string]struct{})}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Oracle) Init(ctx context.Context) error {
	o.ready.Store(true)
	return nil
}

func (o *Oracle) Ready() bool { return o.ready.Load() }

func (o *Oracle) Close() error {
	o.ready.Store(false)
	return nil
}

// Score returns the cosine similarity of term-frequency vectors.
func (o *Oracle) Score(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
	if !o.ready.Load() {
		return nil, domain.ErrOracleUnavailable
	}
	q := o.vector(query)
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = cosine(q, o.vector(c.Content))
	}
	return out, nil
}

func (o *Oracle) vector(text string) map[string]float64 {
	v := make(map[string]float64)
	for _, t := range Tokenize(text) {
		if _, stop := o.stopwords[t]; stop {
			continue
		}
		v[t]++
	}
	return v
}

// Tokenize folds case, strips combining marks and splits on anything that is
// not a letter or digit.
func Tokenize(text string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	folded := cases.Fold().String(stripped)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, av := range a {
		na += av * av
		if bv, ok := b[k]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		nb += bv * bv
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
