package runner

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/convograph/pkg/domain"
)

// EventType tags each NDJSON line.
type EventType string

const (
	EventOutcome EventType = "outcome"
	EventStatus  EventType = "status"
	EventSystem  EventType = "system"
)

// Event is one NDJSON output line.
type Event struct {
	Type        EventType           `json:"type"`
	Outcome     *domain.Outcome     `json:"outcome,omitempty"`
	State       *domain.State       `json:"state,omitempty"`
	Projections []domain.Projection `json:"projections,omitempty"`
	Progress    *domain.Progress    `json:"progress,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// JSONHandler implements the IOHandler interface for newline-delimited JSON.
//
// Input lines may be a JSON string, an object with a "text" field, or plain text.
type JSONHandler struct {
	Sanitizer Sanitizer

	mu      sync.Mutex
	encoder *json.Encoder
	input   *linePump
}

// NewJSONHandler creates a handler for NDJSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		encoder: json.NewEncoder(w),
		input:   newLinePump(r),
	}
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	for {
		line, err := h.input.next(ctx)
		if err != nil {
			return "", err
		}
		text := decodeInputLine(strings.TrimSpace(line))

		clean, err := h.Sanitizer.Clean(text)
		if err != nil {
			if encErr := h.emit(Event{Type: EventSystem, Message: err.Error()}); encErr != nil {
				return "", encErr
			}
			continue
		}
		return clean, nil
	}
}

func decodeInputLine(line string) string {
	var s string
	if err := json.Unmarshal([]byte(line), &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			return obj.Text
		}
	}
	return line
}

func (h *JSONHandler) Outcome(ctx context.Context, out domain.Outcome, report *Report) error {
	ev := Event{Type: EventOutcome, Outcome: &out}
	if report != nil {
		ev.State = report.State
		ev.Progress = &report.Progress
	}
	return h.emit(ev)
}

func (h *JSONHandler) Status(ctx context.Context, report *Report) error {
	return h.emit(Event{
		Type:        EventStatus,
		State:       report.State,
		Projections: report.Projections,
		Progress:    &report.Progress,
	})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.emit(Event{Type: EventSystem, Message: msg})
}

func (h *JSONHandler) emit(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoder.Encode(ev)
}
