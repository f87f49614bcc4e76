package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/aretw0/convograph/internal/logging"
	"github.com/aretw0/convograph/pkg/ports"
)

// Serve answers protocol requests from r on w using oracle, until r is
// exhausted or ctx is canceled. Malformed lines are answered with an error
// message and do not stop the loop.
func Serve(ctx context.Context, r io.Reader, w io.Writer, oracle ports.Oracle, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	dec := NewDecoder(r)
	enc := NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if !errors.Is(err, ErrInvalidMessage) {
				return err
			}
			logger.Warn("worker received malformed message", "error", err)
			if encErr := enc.Encode(Message{Type: TypeError, Message: err.Error()}); encErr != nil {
				return encErr
			}
			continue
		}

		reply := handle(ctx, msg, oracle, logger)
		if err := enc.Encode(reply); err != nil {
			return err
		}
	}
}

func handle(ctx context.Context, msg Message, oracle ports.Oracle, logger *slog.Logger) Message {
	switch msg.Type {
	case TypeInit:
		if err := oracle.Init(ctx); err != nil {
			logger.Error("failed to load model", "error", err)
			return Message{Type: TypeError, ID: msg.ID, Message: "Failed to load model: " + err.Error()}
		}
		logger.Info("model loaded")
		return Message{Type: TypeModelLoaded, ID: msg.ID}

	case TypeSimilarity:
		if !oracle.Ready() {
			return Message{Type: TypeError, ID: msg.ID, Message: "similarity called before model was ready"}
		}
		scores, err := oracle.Score(ctx, msg.UserInput, msg.Nodes)
		if err != nil {
			logger.Warn("similarity failed", "error", err)
			return Message{Type: TypeError, ID: msg.ID, Message: "Failed to compute similarity: " + err.Error()}
		}
		results := make([]Result, len(msg.Nodes))
		for i, n := range msg.Nodes {
			var s float64
			if i < len(scores) {
				s = scores[i]
			}
			results[i] = Result{NodeID: n.ID, Similarity: s, Content: n.Content}
		}
		sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
		return Message{Type: TypeSimilarityResult, ID: msg.ID, Results: results}

	default:
		return Message{Type: TypeError, ID: msg.ID, Message: "unknown message type: " + string(msg.Type)}
	}
}
