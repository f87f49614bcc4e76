package cli

import (
	"encoding/json"
	"fmt"
	"io"

	mermaid "github.com/aretw0/convograph/internal/presentation/graph"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
)

// graphDocument is the JSON export of a loaded graph.
type graphDocument struct {
	Name     string         `json:"name"`
	Terminal string         `json:"terminal,omitempty"`
	Stages   []domain.Stage `json:"stages"`
	Nodes    []domain.Node  `json:"nodes"`
	Edges    []domain.Edge  `json:"edges"`
}

// PrintGraph loads the document at path and prints it as Mermaid or normalized JSON.
func PrintGraph(path, format string, w io.Writer) error {
	g, err := graph.LoadFile(path)
	if err != nil {
		return err
	}

	switch format {
	case "", "mermaid":
		_, err = io.WriteString(w, mermaid.GenerateMermaid(g, nil))
		return err
	case "json":
		terminal, _ := g.Terminal()
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(graphDocument{
			Name:     path,
			Terminal: terminal,
			Stages:   g.Stages(),
			Nodes:    g.Nodes(),
			Edges:    g.Edges(),
		})
	default:
		return fmt.Errorf("unknown format %q (use mermaid or json)", format)
	}
}
