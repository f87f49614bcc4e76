package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/convograph/pkg/domain"
)

// ContentRenderer is a function that transforms feedback text before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Writer   io.Writer
	Renderer ContentRenderer
	// Prompt prints "> " before each read. It defaults to true when the
	// reader is a terminal.
	Prompt    bool
	Sanitizer Sanitizer

	input *linePump
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithPrompt forces the input prompt on or off.
func WithPrompt(enabled bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = enabled
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Writer: w,
		Prompt: IsTerminal(r),
		input:  newLinePump(r),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	for {
		// Only show prompt if context is not yet done
		if h.Prompt && ctx.Err() == nil {
			fmt.Fprint(h.Writer, "> ")
		}

		text, err := h.input.next(ctx)
		if err != nil {
			return "", err
		}

		clean, err := h.Sanitizer.Clean(text)
		if err != nil {
			fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
			continue
		}
		return clean, nil
	}
}

func (h *TextHandler) Outcome(ctx context.Context, out domain.Outcome, report *Report) error {
	switch out.Kind {
	case domain.OutcomeVisited:
		fmt.Fprintf(h.Writer, "✓ %s (similarity %.2f, +%.1f)\n", out.NodeID, out.Similarity, out.Score)
		if text := out.FeedbackText(); text != "" {
			fmt.Fprintln(h.Writer, h.render(text))
		}
	case domain.OutcomeNoMatch:
		fmt.Fprintf(h.Writer, "No confident match among %d available node(s).\n", out.Candidates)
	case domain.OutcomeLoading:
		fmt.Fprintln(h.Writer, "The similarity model is still loading. Try again in a moment.")
	case domain.OutcomeFailed:
		fmt.Fprintln(h.Writer, "The similarity model failed. Nothing changed.")
	case domain.OutcomeBusy:
		fmt.Fprintln(h.Writer, "Still processing the previous utterance.")
	case domain.OutcomeIdle:
		return nil
	}

	if report != nil {
		fmt.Fprintln(h.Writer, progressLine(report.Progress))
	}
	if out.Complete {
		fmt.Fprintln(h.Writer, "Graph complete!")
	}
	return nil
}

func (h *TextHandler) Status(ctx context.Context, report *Report) error {
	for _, p := range report.Projections {
		mark := "[ ]"
		switch {
		case p.Visited:
			mark = "[x]"
		case p.Available:
			mark = "[>]"
		}
		line := fmt.Sprintf("%s %s", mark, p.NodeID)
		if p.Score != nil {
			line += fmt.Sprintf(" (%.1f)", *p.Score)
		}
		if p.Highlighted {
			line += " *"
		}
		fmt.Fprintln(h.Writer, line)
	}
	fmt.Fprintln(h.Writer, progressLine(report.Progress))
	return nil
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return nil
}

func (h *TextHandler) render(text string) string {
	if h.Renderer == nil {
		return text
	}
	rendered, err := h.Renderer(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(rendered)
}

func progressLine(p domain.Progress) string {
	return fmt.Sprintf("Progress: %d/%d visited, score %.1f/%.1f (%.0f%%)",
		p.Visited, p.Total, p.TotalScore, p.MaxScore, p.Percent)
}
