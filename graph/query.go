package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
)

// ErrUnknownState is matched by every *UnknownStateError.
var ErrUnknownState = errors.New("graph: unknown state")

// UnknownStateError reports a query for a state the graph does not hold.
type UnknownStateError struct {
	Side        model.Side
	Name        string
	Suggestions []string
}

func (e *UnknownStateError) Error() string {
	msg := fmt.Sprintf("graph: unknown state %q on %s side", e.Name, e.Side)
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

func (e *UnknownStateError) Is(target error) bool { return target == ErrUnknownState }

func (g *Graph) mustState(side model.Side, name string) (State, error) {
	if s, ok := g.State(side, name); ok {
		return s, nil
	}
	return State{}, &UnknownStateError{Side: side, Name: name, Suggestions: g.Suggest(side, name, 3)}
}

// Suggest returns up to n state names of side that fuzzily match name.
func (g *Graph) Suggest(side model.Side, name string, n int) []string {
	m := g.machines[side]
	if m == nil || n <= 0 {
		return nil
	}
	names := make([]string, len(m.states))
	lowered := make([]string, len(m.states))
	for i, s := range m.states {
		names[i] = s.Name
		lowered[i] = strings.ToLower(s.Name)
	}
	pattern := strings.ToLower(strings.Join(strings.Fields(name), " "))
	matches := fuzzy.Find(pattern, lowered)
	var out []string
	for _, mt := range matches {
		out = append(out, names[mt.Index])
		if len(out) == n {
			break
		}
	}
	return out
}

// TransitionsFrom returns the outgoing edges of state ordered by
// corroboration descending, then message. Wildcard edges are appended
// after the concrete ones only when requested.
func (g *Graph) TransitionsFrom(side model.Side, state string, opts ...QueryOption) ([]Transition, error) {
	o := applyQuery(opts)
	s, err := g.mustState(side, state)
	if err != nil {
		return nil, err
	}
	m := g.machines[side]
	out := make([]Transition, 0, len(m.out[s.Name]))
	for _, i := range m.ranked(m.out[s.Name]) {
		out = append(out, m.transitions[i])
	}
	if o.wildcards {
		for _, i := range m.ranked(m.wildcards) {
			out = append(out, m.transitions[i])
		}
	}
	return out, nil
}

// TransitionsInto returns the edges entering state, wildcards included.
func (g *Graph) TransitionsInto(side model.Side, state string) ([]Transition, error) {
	s, err := g.mustState(side, state)
	if err != nil {
		return nil, err
	}
	m := g.machines[side]
	out := make([]Transition, 0, len(m.in[s.Name]))
	for _, i := range m.ranked(m.in[s.Name]) {
		out = append(out, m.transitions[i])
	}
	return out, nil
}

// Wildcards returns the ANY edges of side.
func (g *Graph) Wildcards(side model.Side) []Transition {
	m := g.machines[side]
	if m == nil {
		return nil
	}
	out := make([]Transition, 0, len(m.wildcards))
	for _, i := range m.ranked(m.wildcards) {
		out = append(out, m.transitions[i])
	}
	return out
}

// TraceStep is one applied message of a procedure trace.
type TraceStep struct {
	Index        int          `json:"index"`
	Message      string       `json:"message"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	Wildcard     bool         `json:"wildcard,omitempty"`
	ViaParent    string       `json:"via_parent,omitempty"`
	Transition   Transition   `json:"transition"`
	Alternatives []Transition `json:"alternatives,omitempty"`
}

// Blocked marks the first message of a trace with no matching edge.
type Blocked struct {
	Step    int    `json:"step"`
	Message string `json:"message"`
	State   string `json:"state"`
}

// Trace is the result of ProcedureTrace. A blocked trace is a normal
// result: it usually documents a rejected or out-of-order request.
type Trace struct {
	Side      model.Side  `json:"side"`
	Entry     string      `json:"entry"`
	States    []string    `json:"states"`
	Steps     []TraceStep `json:"steps"`
	Blocked   *Blocked    `json:"blocked,omitempty"`
	Completed bool        `json:"completed"`
}

// Final returns the state the trace ended in.
func (t Trace) Final() string {
	if len(t.States) == 0 {
		return ""
	}
	return t.States[len(t.States)-1]
}

// ProcedureTrace applies messages in order starting at entry. For each
// message it takes the best outgoing edge of the current state (highest
// corroboration, then specificity, then target name), then of its parent
// states, then a wildcard edge. The other candidates are kept as
// alternatives. The first message without a candidate blocks the trace.
func (g *Graph) ProcedureTrace(side model.Side, entry string, messages []string) (Trace, error) {
	s, err := g.mustState(side, entry)
	if err != nil {
		return Trace{}, err
	}
	m := g.machines[side]
	tr := Trace{Side: side, Entry: s.Name, States: []string{s.Name}}
	cur := s.Name

	for i, raw := range messages {
		msg := normalize.MessageName(raw)
		cands, via := m.candidates(cur, msg)
		if len(cands) == 0 {
			tr.Blocked = &Blocked{Step: i, Message: msg, State: cur}
			return tr, nil
		}
		best := cands[0]
		step := TraceStep{
			Index:      i,
			Message:    msg,
			From:       cur,
			To:         best.To,
			Wildcard:   best.Wildcard,
			ViaParent:  via,
			Transition: best,
		}
		if len(cands) > 1 {
			step.Alternatives = cands[1:]
		}
		tr.Steps = append(tr.Steps, step)
		tr.States = append(tr.States, best.To)
		cur = best.To
	}
	tr.Completed = true
	return tr, nil
}

// candidates returns the edges labelled msg usable from state, best first.
// via names the ancestor whose edges were used, if any.
func (m *Machine) candidates(state, msg string) ([]Transition, string) {
	for name, via := state, ""; name != ""; {
		if c := m.matching(m.out[name], msg); len(c) > 0 {
			return c, via
		}
		st, ok := m.lookup(name)
		if !ok || st.Parent == "" {
			break
		}
		name = st.Parent
		via = st.Parent
	}
	return m.matching(m.wildcards, msg), ""
}

func (m *Machine) matching(idx []int, msg string) []Transition {
	var out []Transition
	for _, i := range idx {
		if m.transitions[i].Message == msg {
			out = append(out, m.transitions[i])
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.CorroborationCount != y.CorroborationCount {
			return x.CorroborationCount > y.CorroborationCount
		}
		if x.Specificity != y.Specificity {
			return x.Specificity > y.Specificity
		}
		return x.To < y.To
	})
	return out
}
