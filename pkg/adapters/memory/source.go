package memory

import (
	"context"
	"slices"
	"sync"
)

// Source implements ports.DocumentSource over an in-memory document.
// Replace swaps the document and signals watchers, which makes it handy for tests
// and for embedding a graph in a binary.
type Source struct {
	mu       sync.RWMutex
	data     []byte
	name     string
	watchers []chan struct{}
}

// NewSource creates a source. The name drives format detection ("graph.yaml", "graph.json").
func NewSource(data []byte, name string) *Source {
	return &Source{data: slices.Clone(data), name: name}
}

// Read returns a copy of the current document.
func (s *Source) Read(ctx context.Context) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data), s.name, nil
}

// Replace swaps the document and notifies watchers.
func (s *Source) Replace(data []byte) {
	s.mu.Lock()
	s.data = slices.Clone(data)
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch returns a channel signaled after each Replace. It is closed when ctx ends.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.watchers = slices.DeleteFunc(s.watchers, func(c chan struct{}) bool { return c == ch })
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
