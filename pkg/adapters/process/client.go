// Package process provides an Oracle backed by an external worker process
// speaking the protocol package's JSON-lines messages over stdio.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/ports"
	"github.com/aretw0/convograph/pkg/protocol"
)

// ErrWorkerExited is returned for requests pending when the worker process exits.
var ErrWorkerExited = errors.New("worker process exited")

// Client is a ports.Oracle that delegates scoring to a worker process.
// Requests are correlated with replies by id; replies without an id are
// delivered to the oldest pending request.
type Client struct {
	cfg         WorkerConfig
	logger      *slog.Logger
	stderr      io.Writer
	stopTimeout time.Duration

	ready atomic.Bool

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *protocol.Encoder
	pending map[string]chan protocol.Message
	order   []string
	done    chan struct{} // closed when the read loop ends
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStderr forwards the worker's stderr (default: os.Stderr).
func WithStderr(w io.Writer) Option {
	return func(c *Client) {
		c.stderr = w
	}
}

// WithStopTimeout bounds how long Close waits before killing the worker.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.stopTimeout = d
	}
}

// NewClient creates a client for the worker described by cfg. The process is
// started by Init.
func NewClient(cfg WorkerConfig, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		logger:      logging.NewNop(),
		stderr:      os.Stderr,
		stopTimeout: 3 * time.Second,
		pending:     make(map[string]chan protocol.Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init starts the worker, sends init and waits for model_loaded.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.cmd != nil {
		c.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = os.Environ()
	for k, v := range c.cfg.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = c.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start worker %q: %w", c.cfg.Command, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.enc = protocol.NewEncoder(stdin)
	c.done = make(chan struct{})
	go c.readLoop(protocol.NewDecoder(stdout))
	c.mu.Unlock()

	c.logger.Debug("worker started", "command", c.cfg.Command, "pid", cmd.Process.Pid)

	reply, err := c.roundTrip(ctx, protocol.Message{Type: protocol.TypeInit})
	if err != nil {
		return fmt.Errorf("worker init: %w", err)
	}
	if reply.Type != protocol.TypeModelLoaded {
		return fmt.Errorf("worker init: %s", describe(reply))
	}
	c.ready.Store(true)
	c.logger.Info("worker model loaded", "command", c.cfg.Command)
	return nil
}

// Ready reports whether the worker answered model_loaded.
func (c *Client) Ready() bool { return c.ready.Load() }

// Score sends one similarity request and waits for its reply.
func (c *Client) Score(ctx context.Context, query string, candidates []ports.Candidate) ([]float64, error) {
	if !c.ready.Load() {
		return nil, domain.ErrOracleUnavailable
	}
	reply, err := c.roundTrip(ctx, protocol.Message{
		Type:      protocol.TypeSimilarity,
		UserInput: query,
		Nodes:     candidates,
	})
	if err != nil {
		return nil, err
	}
	if reply.Type != protocol.TypeSimilarityResult {
		return nil, fmt.Errorf("worker: %s", describe(reply))
	}
	return protocol.ScoresFromResults(candidates, reply.Results), nil
}

// Close stops the worker: stdin is closed, then the process is killed if it
// has not exited within the stop timeout.
func (c *Client) Close() error {
	c.ready.Store(false)

	c.mu.Lock()
	cmd, stdin, done := c.cmd, c.stdin, c.done
	c.mu.Unlock()
	if cmd == nil {
		return nil
	}

	_ = stdin.Close()
	select {
	case <-done:
	case <-time.After(c.stopTimeout):
		c.logger.Warn("worker did not exit, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
	err := cmd.Wait()

	c.mu.Lock()
	c.cmd = nil
	c.mu.Unlock()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	msg.ID = uuid.NewString()
	reply := make(chan protocol.Message, 1)

	c.mu.Lock()
	if c.enc == nil {
		c.mu.Unlock()
		return protocol.Message{}, domain.ErrOracleUnavailable
	}
	done := c.done
	c.pending[msg.ID] = reply
	c.order = append(c.order, msg.ID)
	enc := c.enc
	c.mu.Unlock()

	defer c.forget(msg.ID)

	if err := enc.Encode(msg); err != nil {
		return protocol.Message{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	select {
	case r := <-reply:
		return r, nil
	case <-done:
		// The read loop may have delivered just before exiting.
		select {
		case r := <-reply:
			return r, nil
		default:
			return protocol.Message{}, ErrWorkerExited
		}
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

func (c *Client) readLoop(dec *protocol.Decoder) {
	defer func() {
		c.ready.Store(false)
		close(c.done)
	}()
	for {
		msg, err := dec.Decode()
		if errors.Is(err, protocol.ErrInvalidMessage) {
			c.logger.Warn("worker sent malformed message", "error", err)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("worker stream error", "error", err)
			}
			return
		}
		c.deliver(msg)
	}
}

func (c *Client) deliver(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := msg.ID
	if id == "" && len(c.order) > 0 {
		id = c.order[0]
	}
	ch, ok := c.pending[id]
	if !ok {
		c.logger.Debug("dropping unmatched worker reply", "type", msg.Type, "id", msg.ID)
		return
	}
	ch <- msg
	c.removeLocked(id)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

func (c *Client) removeLocked(id string) {
	delete(c.pending, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func describe(m protocol.Message) string {
	if m.Type == protocol.TypeError && m.Message != "" {
		return m.Message
	}
	return fmt.Sprintf("unexpected %q reply", m.Type)
}
