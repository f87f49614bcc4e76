package graph

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a graph document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the document format from a file extension. JSON is the default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// The raw* types mirror the document shape. Identifiers are decoded weakly so
// numeric ids in the source become canonical strings.

type rawDocument struct {
	Stages []rawStage `mapstructure:"stages" validate:"dive"`
	Nodes  []rawNode  `mapstructure:"nodes" validate:"dive"`
	Edges  []rawEdge  `mapstructure:"edges"`
}

type rawStage struct {
	ID    string `mapstructure:"id" validate:"required"`
	Name  string `mapstructure:"name"`
	Order *int   `mapstructure:"order"`
}

type rawResponse struct {
	Text  string  `mapstructure:"response_text"`
	Score float64 `mapstructure:"score"`
}

type rawNodeMeta struct {
	Name       string        `mapstructure:"name"`
	Difficulty *int          `mapstructure:"difficulty" validate:"omitempty,gte=0"`
	Responses  []rawResponse `mapstructure:"responses" validate:"dive"`
}

type rawNode struct {
	ID         string `mapstructure:"id" validate:"required"`
	StageID    string `mapstructure:"stage_id" validate:"required"`
	OrderIndex int    `mapstructure:"order_index"`
	Content    string `mapstructure:"content"`
	NodeType   string `mapstructure:"node_type"`

	// Flat variants of the meta fields are accepted for hand-written YAML.
	Name       string        `mapstructure:"name"`
	Difficulty *int          `mapstructure:"difficulty" validate:"omitempty,gte=0"`
	Responses  []rawResponse `mapstructure:"responses" validate:"dive"`

	Meta rawNodeMeta `mapstructure:"meta"`
}

type rawEdgeMeta struct {
	EdgeType string `mapstructure:"edge_type"`
}

type rawEdge struct {
	From     string      `mapstructure:"from_node"`
	To       string      `mapstructure:"to_node"`
	Source   string      `mapstructure:"source"`
	Target   string      `mapstructure:"target"`
	EdgeType string      `mapstructure:"edge_type"`
	Meta     rawEdgeMeta `mapstructure:"meta"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// decode parses data into the raw document model.
func decode(data []byte, format Format) (*rawDocument, error) {
	var generic map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	}
	if generic == nil {
		return nil, fmt.Errorf("document is empty")
	}

	var doc rawDocument
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &doc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// structuralProblems turns validator failures into document paths.
func structuralProblems(doc *rawDocument) []Problem {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []Problem{{Reason: err.Error()}}
	}
	problems := make([]Problem, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is rawDocument.nodes[3].stage_id; drop the root type.
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		problems = append(problems, Problem{Path: path, Reason: describeTag(fe)})
	}
	return problems
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func (n rawNode) name() string {
	if n.Meta.Name != "" {
		return n.Meta.Name
	}
	return n.Name
}

func (n rawNode) difficulty() *int {
	if n.Meta.Difficulty != nil {
		return n.Meta.Difficulty
	}
	return n.Difficulty
}

func (n rawNode) responses() []rawResponse {
	if len(n.Meta.Responses) > 0 {
		return n.Meta.Responses
	}
	return n.Responses
}

func (e rawEdge) endpoints() (string, string) {
	from, to := e.From, e.To
	if from == "" {
		from = e.Source
	}
	if to == "" {
		to = e.Target
	}
	return from, to
}

func (e rawEdge) edgeType() string {
	if e.Meta.EdgeType != "" {
		return e.Meta.EdgeType
	}
	return e.EdgeType
}
