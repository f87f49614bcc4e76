package runner

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// linePump reads lines on a background goroutine so Input can honor context
// cancellation while a read is blocked.
type linePump struct {
	reader *bufio.Reader
	lines  chan inputResult
	once   sync.Once
}

type inputResult struct {
	text string
	err  error
}

func newLinePump(r io.Reader) *linePump {
	return &linePump{reader: bufio.NewReader(r)}
}

func (p *linePump) start() {
	p.once.Do(func() {
		p.lines = make(chan inputResult)
		go p.pump()
	})
}

func (p *linePump) pump() {
	for {
		text, err := p.reader.ReadString('\n')

		// If we got text (even with EOF), send it
		if text != "" {
			p.lines <- inputResult{text: text}
		}

		if err != nil {
			if err == io.EOF {
				close(p.lines)
				return
			}
			p.lines <- inputResult{err: err}
			// Backoff for non-fatal errors to prevent CPU spikes on persistent failure
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// next blocks until a line arrives, the stream ends or ctx is done.
func (p *linePump) next(ctx context.Context) (string, error) {
	p.start()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	}
}

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
