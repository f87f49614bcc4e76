package domain

import "strings"

// EdgeType distinguishes gating edges from layout hints.
type EdgeType string

const (
	// EdgeIntraStage links nodes of the same stage. It never gates availability.
	EdgeIntraStage EdgeType = "intra_stage"
	// EdgeInterStage links nodes across stages and acts as a prerequisite gate.
	EdgeInterStage EdgeType = "inter_stage"
)

// DefaultDifficulty is applied to nodes that do not declare one.
const DefaultDifficulty = 1

// Stage is an ordered grouping of nodes representing a phase of the conversation.
type Stage struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Order int    `json:"order" yaml:"order"`
}

// Response is a canned feedback variant with its pre-authored quality score.
type Response struct {
	Text  string  `json:"response_text" yaml:"response_text"`
	Score float64 `json:"score" yaml:"score"`
}

// Node is a single utterance target in the graph.
type Node struct {
	ID         string     `json:"id" yaml:"id"`
	StageID    string     `json:"stage_id" yaml:"stage_id"`
	OrderIndex int        `json:"order_index" yaml:"order_index"`
	Content    string     `json:"content" yaml:"content"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	NodeType   string     `json:"node_type,omitempty" yaml:"node_type,omitempty"`
	Difficulty int        `json:"difficulty" yaml:"difficulty"`
	Responses  []Response `json:"responses,omitempty" yaml:"responses,omitempty"`
}

// DisplayName returns the authored name, falling back to a humanized node type.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	if n.NodeType != "" {
		return strings.ReplaceAll(n.NodeType, "_", " ")
	}
	return n.ID
}

// Edge is a directed prerequisite link between two nodes.
type Edge struct {
	From string   `json:"from_node" yaml:"from_node"`
	To   string   `json:"to_node" yaml:"to_node"`
	Type EdgeType `json:"edge_type" yaml:"edge_type"`
}
