package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/convograph/pkg/domain"
)

// Problem is a single structural defect found while loading a document.
type Problem struct {
	Path   string // e.g. nodes[3].stage_id
	Reason string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Reason
	}
	return fmt.Sprintf("%s: %s", p.Path, p.Reason)
}

// LoadError aggregates every fatal problem found in a graph document.
// It unwraps to domain.ErrMalformedGraph.
type LoadError struct {
	Source   string
	Problems []Problem
	cause    error
}

func (e *LoadError) Error() string {
	prefix := "malformed graph"
	if e.Source != "" {
		prefix = fmt.Sprintf("malformed graph %q", e.Source)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", prefix, e.Problems[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d problems:\n", prefix, len(e.Problems))
	for i, p := range e.Problems {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
	}
	return b.String()
}

// Unwrap lets errors.Is match both the sentinel and any decoding cause.
func (e *LoadError) Unwrap() []error {
	if e.cause != nil {
		return []error{domain.ErrMalformedGraph, e.cause}
	}
	return []error{domain.ErrMalformedGraph}
}

// Problems returns the structural problems if err is a LoadError.
func Problems(err error) []Problem {
	if le, ok := err.(*LoadError); ok {
		return le.Problems
	}
	return nil
}
