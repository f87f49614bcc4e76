package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/convograph/internal/config"
	"github.com/aretw0/convograph/internal/logging"
)

// Options is the configuration shared by every command. Config carries the
// environment plus flag overrides; the rest are per-invocation switches.
type Options struct {
	Config *config.Config

	Debug          bool
	JSON           bool
	Headless       bool
	Watch          bool
	ExitOnComplete bool
	SessionID      string

	In  io.Reader
	Out io.Writer
}

func (o Options) stdin() io.Reader {
	if o.In != nil {
		return o.In
	}
	return os.Stdin
}

func (o Options) stdout() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

func (o Options) sessionID() string {
	if o.SessionID != "" {
		return o.SessionID
	}
	return "local"
}

// createLogger configures the application logger. It writes to Stderr to keep
// Stdout for the utterance loop. Interactive runs stay quiet unless debug is on.
func createLogger(cfg *config.Config, debug, interactive bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	if interactive {
		return logging.NewNop()
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(level)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
