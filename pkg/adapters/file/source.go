package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/convograph/internal/logging"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Source implements ports.DocumentSource and ports.Watchable for a graph document on disk.
type Source struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithDebounce sets the quiet period before a change is signaled.
func WithDebounce(d time.Duration) SourceOption {
	return func(s *Source) { s.debounce = d }
}

// WithLogger sets the logger for watch errors.
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a source for the document at path.
func NewSource(path string, opts ...SourceOption) *Source {
	s := &Source{path: path, debounce: DefaultDebounce, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document path.
func (s *Source) Path() string { return s.path }

// Read returns the document bytes and its path.
func (s *Source) Read(ctx context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, s.path, fmt.Errorf("failed to read graph document: %w", err)
	}
	return data, s.path, nil
}

// Watch signals after the document is written, created or renamed into place.
// The parent directory is watched so atomic saves (write temp + rename) are seen.
// The channel is closed when ctx ends.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(s.path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	out := make(chan struct{}, 1)
	go s.run(ctx, watcher, abs, out)
	return out, nil
}

func (s *Source) run(ctx context.Context, watcher *fsnotify.Watcher, target string, out chan<- struct{}) {
	defer close(out)
	defer watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			select {
			case out <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("graph watch error", "path", s.path, "err", err)
		}
	}
}
