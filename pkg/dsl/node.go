package dsl

import "github.com/aretw0/convograph/pkg/domain"

// StageBuilder adds nodes to one stage.
type StageBuilder struct {
	stage   domain.Stage
	builder *Builder
	next    int
}

// Name sets the stage display name.
func (s *StageBuilder) Name(name string) *StageBuilder {
	s.stage.Name = name
	return s
}

// Node appends a node to the stage. Its order_index follows the previous node.
func (s *StageBuilder) Node(id, content string) *NodeBuilder {
	n := &NodeBuilder{
		node: domain.Node{
			ID:         id,
			StageID:    s.stage.ID,
			OrderIndex: s.next,
			Content:    content,
		},
		builder: s.builder,
	}
	s.next++
	s.builder.nodes = append(s.builder.nodes, n)
	return n
}

// NodeBuilder configures a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Name sets the display name.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.node.Name = name
	return n
}

// Type sets the node type, used as display name fallback.
func (n *NodeBuilder) Type(nodeType string) *NodeBuilder {
	n.node.NodeType = nodeType
	return n
}

// Difficulty sets the difficulty used by the difficulty scoring policy.
func (n *NodeBuilder) Difficulty(d int) *NodeBuilder {
	n.node.Difficulty = d
	return n
}

// Response adds a canned feedback variant.
func (n *NodeBuilder) Response(text string, score float64) *NodeBuilder {
	n.node.Responses = append(n.node.Responses, domain.Response{Text: text, Score: score})
	return n
}

// After makes each of the given nodes a prerequisite of this one. Only
// prerequisites in another stage gate availability.
func (n *NodeBuilder) After(ids ...string) *NodeBuilder {
	for _, id := range ids {
		n.builder.Edge(id, n.node.ID, domain.EdgeInterStage)
	}
	return n
}

// Follows links this node to a predecessor in the same stage. The edge is a
// layout hint and never gates.
func (n *NodeBuilder) Follows(id string) *NodeBuilder {
	n.builder.Edge(id, n.node.ID, domain.EdgeIntraStage)
	return n
}

// Build returns the node as configured so far.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}
