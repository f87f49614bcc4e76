package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/convograph/pkg/domain"
	graphstore "github.com/aretw0/convograph/pkg/graph"
)

// GraphOverlay contains session state to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes   []string
	AvailableNodes []string
	Highlighted    string
}

// OverlayFromProjections builds an overlay from a session's node projections.
func OverlayFromProjections(projections []domain.Projection) *GraphOverlay {
	overlay := &GraphOverlay{}
	for _, p := range projections {
		switch {
		case p.Visited:
			overlay.VisitedNodes = append(overlay.VisitedNodes, p.NodeID)
		case p.Available:
			overlay.AvailableNodes = append(overlay.AvailableNodes, p.NodeID)
		}
		if p.Highlighted {
			overlay.Highlighted = p.NodeID
		}
	}
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart with one subgraph per stage.
// It applies semantic styling:
// - Terminal node: ((Circle))
// - Default: [Rectangle]
// Gating (inter-stage) edges are solid; intra-stage layout edges are dotted.
// It also applies overlay styles (Visited/Available/Highlighted) if provided.
func GenerateMermaid(g *graphstore.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	terminal, _ := g.Terminal()
	for _, stage := range g.Stages() {
		title := stage.Name
		if title == "" {
			title = stage.ID
		}
		fmt.Fprintf(&sb, "    subgraph stage_%s[\"%s\"]\n", sanitizeMermaidID(stage.ID), escapeLabel(title))
		for _, node := range g.NodesInStage(stage.ID) {
			opener, closer := "[", "]"
			if node.ID == terminal {
				opener, closer = "((", "))"
			}
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", sanitizeMermaidID(node.ID), opener, escapeLabel(node.DisplayName()), closer)
		}
		sb.WriteString("    end\n")
	}

	for _, e := range g.Edges() {
		arrow := "-.->"
		if g.IsGate(e) {
			arrow = "-->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef available fill:#f1f8e9,stroke:#558b2f,stroke-dasharray:4,color:#000;\n")
		sb.WriteString("    classDef highlighted fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		writeClass(&sb, g, overlay.AvailableNodes, "available")
		writeClass(&sb, g, overlay.VisitedNodes, "visited")
		if overlay.Highlighted != "" && g.Has(overlay.Highlighted) {
			fmt.Fprintf(&sb, "    class %s highlighted;\n", sanitizeMermaidID(overlay.Highlighted))
		}
	}

	return sb.String()
}

func writeClass(sb *strings.Builder, g *graphstore.Graph, ids []string, class string) {
	seen := make(map[string]bool)
	for _, id := range ids {
		// Skip ids the graph no longer has, e.g. after a hot reload.
		if !g.Has(id) {
			continue
		}
		safeID := sanitizeMermaidID(id)
		if !seen[safeID] {
			seen[safeID] = true
			fmt.Fprintf(sb, "    class %s %s;\n", safeID, class)
		}
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
	// "end" closes a subgraph.
	if strings.EqualFold(s, "end") {
		s += "_"
	}
	return s
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
