package graph

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// MachineSnapshot is the serializable form of one side's machine.
type MachineSnapshot struct {
	Side        model.Side   `json:"side"`
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
	PartOf      []PartOf     `json:"part_of,omitempty"`
}

// Snapshot is the serializable form of a Graph, shaped for the graph
// persistence and query API collaborators.
type Snapshot struct {
	BuiltAt       time.Time                     `json:"built_at"`
	Stats         Stats                         `json:"stats"`
	Machines      []MachineSnapshot             `json:"machines"`
	Elements      []Element                     `json:"elements"`
	Relationships []Relationship                `json:"relationships"`
	Involvements  []Involvement                 `json:"involvements,omitempty"`
	Observations  []Observation                 `json:"observations,omitempty"`
	Conflicts     []normalize.CrossSideConflict `json:"conflicts,omitempty"`
	Divergences   []resolve.Divergence          `json:"divergences,omitempty"`
}

// Snapshot copies the graph into its serializable form. Empty machines are
// omitted.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{
		BuiltAt:       g.builtAt,
		Stats:         g.stats,
		Elements:      g.Elements(),
		Relationships: g.Relationships(),
		Involvements:  g.Involvements(),
		Observations:  g.Observations(),
		Conflicts:     g.Conflicts(),
		Divergences:   g.Divergences(),
	}
	for _, side := range model.Sides {
		m := g.machines[side]
		if m == nil || len(m.states) == 0 {
			continue
		}
		s.Machines = append(s.Machines, MachineSnapshot{
			Side:        side,
			States:      m.States(),
			Transitions: m.Transitions(),
			PartOf:      g.PartOf(side),
		})
	}
	return s
}

// MermaidOption configures Mermaid output.
type MermaidOption func(*mermaidOptions)

type mermaidOptions struct {
	expand   bool
	evidence bool
}

// ExpandWildcards draws every ANY edge once from each non-stub state of
// the machine instead of from a single ANY pseudo-state.
func ExpandWildcards() MermaidOption {
	return func(o *mermaidOptions) { o.expand = true }
}

// WithCorroboration appends the corroboration count to edge labels.
func WithCorroboration() MermaidOption {
	return func(o *mermaidOptions) { o.evidence = true }
}

var mermaidUnsafe = strings.NewReplacer(":", " -", `"`, "'", ";", ",", "\n", " ")

// Mermaid renders the machine of side as a stateDiagram-v2.
func (g *Graph) Mermaid(side model.Side, opts ...MermaidOption) string {
	var o mermaidOptions
	for _, fn := range opts {
		fn(&o)
	}
	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")
	m := g.machines[side]
	if m == nil || len(m.states) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "    %%%% %s machine: %d states, %d transitions\n", side, len(m.states), len(m.transitions))
	b.WriteString("    classDef stub stroke-dasharray: 5 5\n")
	b.WriteString("    classDef wildcard fill:#eee\n")

	ids := make(map[string]string, len(m.states))
	for i, s := range m.states {
		id := fmt.Sprintf("s%d", i)
		ids[s.Name] = id
		fmt.Fprintf(&b, "    state \"%s\" as %s\n", mermaidUnsafe.Replace(s.Name), id)
	}
	for _, s := range m.states {
		if s.Kind == model.KindInitial {
			fmt.Fprintf(&b, "    [*] --> %s\n", ids[s.Name])
		}
	}
	for _, s := range m.states {
		if s.Kind == model.KindFinal {
			fmt.Fprintf(&b, "    %s --> [*]\n", ids[s.Name])
		}
	}

	label := func(t Transition) string {
		l := mermaidUnsafe.Replace(t.Message)
		if o.evidence {
			l += fmt.Sprintf(" (%d)", t.CorroborationCount)
		}
		return l
	}
	for _, i := range m.ranked(concrete(m)) {
		t := m.transitions[i]
		fmt.Fprintf(&b, "    %s --> %s : %s\n", ids[t.From], ids[t.To], label(t))
	}
	if len(m.wildcards) > 0 {
		if o.expand {
			for _, i := range m.ranked(m.wildcards) {
				t := m.transitions[i]
				for _, s := range m.states {
					if s.Stub || s.Name == t.To {
						continue
					}
					fmt.Fprintf(&b, "    %s --> %s : %s [any]\n", ids[s.Name], ids[t.To], label(t))
				}
			}
		} else {
			b.WriteString("    state \"ANY\" as any\n")
			for _, i := range m.ranked(m.wildcards) {
				t := m.transitions[i]
				fmt.Fprintf(&b, "    any --> %s : %s\n", ids[t.To], label(t))
			}
			b.WriteString("    class any wildcard\n")
		}
	}
	for _, p := range m.partOf {
		fmt.Fprintf(&b, "    note right of %s : part of %s\n", ids[p.Child], mermaidUnsafe.Replace(p.Parent))
	}
	var stubs []string
	for _, s := range m.states {
		if s.Stub {
			stubs = append(stubs, ids[s.Name])
		}
	}
	if len(stubs) > 0 {
		fmt.Fprintf(&b, "    class %s stub\n", strings.Join(stubs, ","))
	}
	return b.String()
}

func concrete(m *Machine) []int {
	out := make([]int, 0, len(m.transitions)-len(m.wildcards))
	for i, t := range m.transitions {
		if !t.Wildcard {
			out = append(out, i)
		}
	}
	return out
}

var nodeID = regexp.MustCompile(`[^A-Za-z0-9_]`)

// MermaidTopology renders the element relationship graph as a flowchart.
func (g *Graph) MermaidTopology() string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	ids := make(map[string]string, len(g.elements))
	id := func(name string) string {
		if v, ok := ids[name]; ok {
			return v
		}
		v := "e_" + nodeID.ReplaceAllString(name, "_")
		ids[name] = v
		return v
	}
	for _, e := range g.elements {
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", id(e.Name), mermaidUnsafe.Replace(e.Name))
	}
	for _, r := range g.relationships {
		fmt.Fprintf(&b, "    %s -->|%s| %s\n", id(r.From), r.Type, id(r.To))
	}
	return b.String()
}
