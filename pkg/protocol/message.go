// Package protocol implements the similarity worker message protocol: JSON
// objects, one per line, exchanged over a byte stream (typically a child
// process's stdio).
//
//	-> {"type":"init"}
//	<- {"type":"model_loaded"} | {"type":"error","message":"..."}
//	-> {"type":"similarity","id":"...","userInput":"...","nodes":[{"id":"...","content":"..."}]}
//	<- {"type":"similarity_result","id":"...","results":[{"nodeId":"...","similarity":0.8,"content":"..."}]}
//
// Results are sorted by descending similarity. The optional id correlates a
// reply with its request; workers echo it back when present.
package protocol

import (
	"github.com/aretw0/convograph/pkg/ports"
)

// MessageType identifies a protocol message.
type MessageType string

const (
	TypeInit             MessageType = "init"
	TypeModelLoaded      MessageType = "model_loaded"
	TypeError            MessageType = "error"
	TypeSimilarity       MessageType = "similarity"
	TypeSimilarityResult MessageType = "similarity_result"
)

// Message is the union of every protocol message.
type Message struct {
	Type      MessageType       `json:"type"`
	ID        string            `json:"id,omitempty"`
	UserInput string            `json:"userInput,omitempty"`
	Nodes     []ports.Candidate `json:"nodes,omitempty"`
	Results   []Result          `json:"results,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Result is one scored candidate.
type Result struct {
	NodeID     string  `json:"nodeId"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content,omitempty"`
}

// ScoresFromResults maps results back onto candidates by id, preserving
// candidate order. Candidates missing from results score 0.
func ScoresFromResults(candidates []ports.Candidate, results []Result) []float64 {
	byID := make(map[string]float64, len(results))
	for _, r := range results {
		if _, dup := byID[r.NodeID]; !dup {
			byID[r.NodeID] = r.Similarity
		}
	}
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = byID[c.ID]
	}
	return out
}
