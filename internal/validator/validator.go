package validator

import (
	"fmt"
	"slices"

	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/graph"
)

// Severity ranks a finding. Errors make the document unusable for a complete
// traversal; warnings are worth a look.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding codes.
const (
	CodeStructure       = "structure"
	CodeDroppedEdge     = "dropped_edge"
	CodeUnreachableNode = "unreachable_node"
	CodeEmptyStage      = "empty_stage"
	CodeMissingTerminal = "missing_terminal"
	CodeBackwardGate    = "backward_gate"
)

// Finding is one reported problem.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Subject == "" {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Subject, f.Message)
}

// Report collects every finding for a document.
type Report struct {
	Source   string    `json:"source,omitempty"`
	Findings []Finding `json:"findings"`
}

// OK reports whether the document has no errors.
func (r *Report) OK() bool {
	return len(r.Errors()) == 0
}

// Errors returns the error-level findings.
func (r *Report) Errors() []Finding { return r.filter(SeverityError) }

// Warnings returns the warning-level findings.
func (r *Report) Warnings() []Finding { return r.filter(SeverityWarning) }

func (r *Report) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) add(s Severity, code, subject, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Severity: s, Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile loads and checks a document. Structural problems (duplicate ids,
// unknown stages, missing fields) become error findings; the returned graph is
// nil in that case. err is only set when the file cannot be read or decoded.
func ValidateFile(path string) (*Report, *graph.Graph, error) {
	g, err := graph.LoadFile(path)
	if err != nil {
		problems := graph.Problems(err)
		if len(problems) == 0 {
			return nil, nil, err
		}
		r := &Report{Source: path}
		for _, p := range problems {
			r.add(SeverityError, CodeStructure, p.Path, "%s", p.Reason)
		}
		return r, nil, nil
	}
	r := Validate(g)
	r.Source = path
	return r, g, nil
}

// Validate checks a loaded graph.
func Validate(g *graph.Graph) *Report {
	r := &Report{}

	for _, d := range g.DroppedEdges() {
		r.add(SeverityWarning, CodeDroppedEdge, fmt.Sprintf("edges[%d]", d.Index),
			"%s -> %s dropped: %s", d.Edge.From, d.Edge.To, d.Reason)
	}

	stageOrder := make(map[string]int)
	for i, s := range g.Stages() {
		stageOrder[s.ID] = i
		if len(g.NodesInStage(s.ID)) == 0 {
			r.add(SeverityWarning, CodeEmptyStage, s.ID, "stage has no nodes")
		}
	}

	terminal, ok := g.Terminal()
	if !ok {
		r.add(SeverityError, CodeMissingTerminal, "", "the last stage has no nodes, so the graph can never complete")
	}

	for _, e := range g.Edges() {
		if !g.IsGate(e) {
			continue
		}
		from, _ := g.Node(e.From)
		to, _ := g.Node(e.To)
		if stageOrder[from.StageID] > stageOrder[to.StageID] {
			r.add(SeverityWarning, CodeBackwardGate, e.From+" -> "+e.To,
				"gate points from stage %q back to earlier stage %q", from.StageID, to.StageID)
		}
	}

	reachable := Reachable(g)
	for _, n := range g.Nodes() {
		if _, ok := reachable[n.ID]; ok {
			continue
		}
		msg := "no visiting order can make this node available"
		if n.ID == terminal {
			msg = "the terminal node can never become available"
		}
		r.add(SeverityError, CodeUnreachableNode, n.ID, "%s", msg)
	}

	return r
}

// Reachable returns the nodes that some visiting order can make available:
// the fixed point of the OR gate, starting from the nodes without gates.
func Reachable(g *graph.Graph) map[string]struct{} {
	reached := make(map[string]struct{}, g.Len())
	for changed := true; changed; {
		changed = false
		for _, n := range g.Nodes() {
			if _, ok := reached[n.ID]; ok {
				continue
			}
			gates := g.Gates(n.ID)
			if len(gates) == 0 || slices.ContainsFunc(gates, func(e domain.Edge) bool {
				_, ok := reached[e.From]
				return ok
			}) {
				reached[n.ID] = struct{}{}
				changed = true
			}
		}
	}
	return reached
}
