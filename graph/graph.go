// Package graph assembles canonical states, transitions and element
// relationships into frozen per-side state machines and answers read-only
// queries over them.
package graph

import (
	"fmt"
	"time"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// State is a node of a side's machine.
type State struct {
	Name         string           `json:"name"`
	Side         model.Side       `json:"side"`
	Kind         model.Kind       `json:"kind"`
	Parent       string           `json:"parent,omitempty"`
	Stub         bool             `json:"stub,omitempty"`
	Inherited    bool             `json:"inherited,omitempty"`
	Descriptions []string         `json:"descriptions,omitempty"`
	Aliases      []string         `json:"aliases,omitempty"`
	Evidence     []model.Evidence `json:"evidence,omitempty"`
}

// Transition is a canonical TRANSITIONS_TO edge.
type Transition = resolve.Transition

// Element is a network element node.
type Element = normalize.Element

// PartOf links a substate to its parent.
type PartOf struct {
	Side   model.Side `json:"side"`
	Child  string     `json:"child"`
	Parent string     `json:"parent"`
}

// Relationship is an element-to-element edge of the topology view.
type Relationship struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Type     string   `json:"type"`
	Texts    []string `json:"texts,omitempty"`
	ChunkIDs []string `json:"chunk_ids"`
}

// Involvement is an INVOLVED_IN edge from an element to a transition it
// sends or receives.
type Involvement struct {
	Element string      `json:"element"`
	Role    string      `json:"role"`
	Edge    resolve.Key `json:"edge"`
}

// ObservationKind classifies a non-fatal build finding.
type ObservationKind string

const (
	ObsStubState         ObservationKind = "stub_state"
	ObsInitialIncoming   ObservationKind = "initial_with_incoming"
	ObsUnreachable       ObservationKind = "unreachable"
	ObsCrossSideConflict ObservationKind = "cross_side_conflict"
	ObsDivergence        ObservationKind = "divergence"
)

// Observation is a finding recorded during the build. Stub states are the
// StubStateWarning of the build report.
type Observation struct {
	Kind    ObservationKind `json:"kind"`
	Side    model.Side      `json:"side"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Detail  string          `json:"detail"`
}

// Stats summarises a build.
type Stats struct {
	States        int `json:"states"`
	Transitions   int `json:"transitions"`
	Wildcards     int `json:"wildcards"`
	Stubs         int `json:"stubs"`
	Malformed     int `json:"malformed"`
	Conflicts     int `json:"conflicts"`
	Divergences   int `json:"divergences"`
	SelfLoops     int `json:"self_loops"`
	PartOf        int `json:"part_of"`
	Elements      int `json:"elements"`
	Relationships int `json:"relationships"`
	Components    int `json:"components"`
	Unreachable   int `json:"unreachable"`
}

// IntegrityError aborts a build. It names the edge or state that could not
// be resolved.
type IntegrityError struct {
	Side   model.Side
	Edge   *resolve.Key
	State  string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.Edge != nil {
		return fmt.Sprintf("graph: integrity error on %s edge %q -[%s]-> %q: %s",
			e.Side, e.Edge.From, e.Edge.Message, e.Edge.To, e.Reason)
	}
	return fmt.Sprintf("graph: integrity error on %s state %q: %s", e.Side, e.State, e.Reason)
}

// Machine is the state machine of one side.
type Machine struct {
	Side        model.Side
	states      []State
	index       map[string]int
	transitions []Transition
	out         map[string][]int
	in          map[string][]int
	wildcards   []int
	partOf      []PartOf
	children    map[string][]string
}

func newMachine(side model.Side) *Machine {
	return &Machine{
		Side:     side,
		index:    make(map[string]int),
		out:      make(map[string][]int),
		in:       make(map[string][]int),
		children: make(map[string][]string),
	}
}

func (m *Machine) has(name string) bool {
	_, ok := m.index[normalize.Key(name)]
	return ok
}

func (m *Machine) add(s State) {
	m.index[normalize.Key(s.Name)] = len(m.states)
	m.states = append(m.states, s)
}

func (m *Machine) lookup(name string) (State, bool) {
	i, ok := m.index[normalize.Key(name)]
	if !ok {
		return State{}, false
	}
	return m.states[i], true
}

// States returns the machine's states in build order.
func (m *Machine) States() []State {
	return append([]State(nil), m.states...)
}

// Transitions returns the machine's edges, wildcards included.
func (m *Machine) Transitions() []Transition {
	return append([]Transition(nil), m.transitions...)
}

// Graph is the immutable output of a build. All methods are safe for
// concurrent use.
type Graph struct {
	machines      map[model.Side]*Machine
	table         *normalize.Table
	elements      []Element
	relationships []Relationship
	involvements  []Involvement
	observations  []Observation
	conflicts     []normalize.CrossSideConflict
	divergences   []resolve.Divergence
	stats         Stats
	builtAt       time.Time
}

// Machine returns the machine of side, or nil.
func (g *Graph) Machine(side model.Side) *Machine {
	return g.machines[side]
}

// States returns the states of side.
func (g *Graph) States(side model.Side) []State {
	if m := g.machines[side]; m != nil {
		return m.States()
	}
	return nil
}

// State finds a state by canonical name or any alias seen during
// normalization.
func (g *Graph) State(side model.Side, name string) (State, bool) {
	m := g.machines[side]
	if m == nil {
		return State{}, false
	}
	if s, ok := m.lookup(name); ok {
		return s, true
	}
	if g.table != nil {
		if ts, ok := g.table.Lookup(side, name); ok {
			return m.lookup(ts.Name)
		}
	}
	return State{}, false
}

// Transitions returns every edge of side, wildcards included.
func (g *Graph) Transitions(side model.Side) []Transition {
	if m := g.machines[side]; m != nil {
		return m.Transitions()
	}
	return nil
}

// PartOf returns the substate links of side.
func (g *Graph) PartOf(side model.Side) []PartOf {
	if m := g.machines[side]; m != nil {
		return append([]PartOf(nil), m.partOf...)
	}
	return nil
}

// Substates returns the direct substates of a state.
func (g *Graph) Substates(side model.Side, name string) []string {
	m := g.machines[side]
	if m == nil {
		return nil
	}
	s, ok := g.State(side, name)
	if !ok {
		return nil
	}
	return append([]string(nil), m.children[s.Name]...)
}

func (g *Graph) Elements() []Element { return append([]Element(nil), g.elements...) }
func (g *Graph) Relationships() []Relationship { return append([]Relationship(nil), g.relationships...) }
func (g *Graph) Involvements() []Involvement { return append([]Involvement(nil), g.involvements...) }
func (g *Graph) Observations() []Observation { return append([]Observation(nil), g.observations...) }
func (g *Graph) Divergences() []resolve.Divergence { return append([]resolve.Divergence(nil), g.divergences...) }
func (g *Graph) Conflicts() []normalize.CrossSideConflict {
	return append([]normalize.CrossSideConflict(nil), g.conflicts...)
}

// Stats returns the build statistics.
func (g *Graph) Stats() Stats { return g.stats }

// BuiltAt returns when the graph was built.
func (g *Graph) BuiltAt() time.Time { return g.builtAt }

// ObservationsOf returns the observations of one kind.
func (g *Graph) ObservationsOf(kind ObservationKind) []Observation {
	var out []Observation
	for _, o := range g.observations {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func keyOf(name string) string { return normalize.Key(name) }
