package ports

import "context"

// DocumentSource supplies the raw bytes of a graph document.
type DocumentSource interface {
	// Read returns the current document and a name used to infer its format (e.g. a file path).
	Read(ctx context.Context) (data []byte, name string, err error)
}

// Watchable defines an interface for sources that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying document changes.
	// It abstracts away the specific event details, signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
