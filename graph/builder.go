package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// Input is everything the Builder consumes from earlier stages.
type Input struct {
	Table         *normalize.Table
	Resolved      *resolve.Result
	Relationships []normalize.Relationship
	Malformed     int
}

// BuildOption configures a Builder.
type BuildOption func(*Builder)

// WithStrictInitial turns INITIAL states with incoming edges into build
// errors instead of observations.
func WithStrictInitial(strict bool) BuildOption {
	return func(b *Builder) { b.strictInitial = strict }
}

// WithClock overrides the build timestamp source.
func WithClock(now func() time.Time) BuildOption {
	return func(b *Builder) { b.now = now }
}

// Builder constructs a Graph from normalized, resolved input.
type Builder struct {
	strictInitial bool
	now           func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuildOption) *Builder {
	b := &Builder{now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

type buildState struct {
	in       Input
	g        *Graph
	declared map[model.Side]map[string]normalize.State
}

// Build assembles the graph. Referenced but undeclared states become stubs
// with a warning; an endpoint that cannot be resolved at all returns an
// *IntegrityError and no graph.
func (b *Builder) Build(ctx context.Context, in Input) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Table == nil || in.Resolved == nil {
		return nil, fmt.Errorf("graph.Build: missing table or resolved transitions")
	}
	start := b.now()

	bs := &buildState{
		in: in,
		g: &Graph{
			machines:    make(map[model.Side]*Machine),
			table:       in.Table,
			conflicts:   in.Table.Conflicts(),
			divergences: in.Resolved.Divergences,
			builtAt:     start,
		},
		declared: make(map[model.Side]map[string]normalize.State),
	}
	for _, side := range model.Sides {
		bs.g.machines[side] = newMachine(side)
		bs.declared[side] = make(map[string]normalize.State)
		for _, s := range in.Table.States(side) {
			if s.Declared {
				bs.declared[side][s.Key] = s
			}
		}
	}

	// Declared states first, in table order.
	for _, side := range model.Sides {
		for _, s := range in.Table.States(side) {
			if !s.Declared {
				continue
			}
			if err := bs.ensureState(side, s.Name); err != nil {
				return nil, err
			}
		}
	}

	for _, t := range in.Resolved.Transitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := bs.addTransition(t); err != nil {
			return nil, err
		}
	}

	if err := bs.checkInitial(b.strictInitial); err != nil {
		return nil, err
	}
	bs.addRelationships()
	bs.addInvolvements()
	bs.addReviewObservations()

	g := bs.g
	g.stats.Components, g.stats.Unreachable = bs.analyzeConnectivity()
	for _, side := range model.Sides {
		m := g.machines[side]
		g.stats.States += len(m.states)
		g.stats.Transitions += len(m.transitions)
		g.stats.Wildcards += len(m.wildcards)
		g.stats.PartOf += len(m.partOf)
		for _, s := range m.states {
			if s.Stub {
				g.stats.Stubs++
			}
		}
	}
	g.stats.SelfLoops = in.Resolved.SelfLoops
	g.stats.Malformed = in.Malformed
	g.stats.Conflicts = len(g.conflicts)
	g.stats.Divergences = len(g.divergences)
	g.stats.Elements = len(g.elements)
	g.stats.Relationships = len(g.relationships)

	slog.Info("graph: build complete",
		"states", g.stats.States,
		"transitions", g.stats.Transitions,
		"wildcards", g.stats.Wildcards,
		"stubs", g.stats.Stubs,
		"malformed", g.stats.Malformed,
		"conflicts", g.stats.Conflicts,
		"elapsed", b.now().Sub(start).Round(time.Millisecond))
	return g, nil
}

func (bs *buildState) addTransition(t Transition) error {
	key := t.Key
	fail := func(reason string) error {
		return &IntegrityError{Side: t.Side, Edge: &key, Reason: reason}
	}
	switch {
	case strings.TrimSpace(t.To) == "":
		return fail("empty to_state")
	case model.IsSentinel(t.To):
		return fail("to_state is a sentinel")
	case strings.TrimSpace(t.Message) == "":
		return fail("empty message")
	case !t.Wildcard && strings.TrimSpace(t.From) == "":
		return fail("empty from_state")
	case !t.Wildcard && model.IsSentinel(t.From):
		return fail("sentinel from_state on a concrete edge")
	case len(t.Evidence) == 0:
		return fail("no evidence")
	}

	side := t.Side
	if side == "" {
		side = model.SideUnspecified
	}
	if !t.Wildcard {
		if err := bs.ensureState(side, t.From); err != nil {
			return err
		}
	}
	if err := bs.ensureState(side, t.To); err != nil {
		return err
	}

	m := bs.g.machines[side]
	i := len(m.transitions)
	m.transitions = append(m.transitions, t)
	if t.Wildcard {
		m.wildcards = append(m.wildcards, i)
	} else {
		m.out[t.From] = append(m.out[t.From], i)
	}
	m.in[t.To] = append(m.in[t.To], i)
	return nil
}

// ensureState adds name to the side's machine. Resolution order: declared
// on the side, declared on UNSPECIFIED, else a stub. Parents of substates
// are ensured the same way and linked with PART_OF.
func (bs *buildState) ensureState(side model.Side, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &IntegrityError{Side: side, State: name, Reason: "empty state name"}
	}
	if model.IsSentinel(name) {
		return &IntegrityError{Side: side, State: name, Reason: "sentinel used as a concrete state"}
	}
	m := bs.g.machines[side]
	if m.has(name) {
		return nil
	}

	entry, known := bs.in.Table.Lookup(side, name)
	if !known {
		entry = normalize.State{Name: name, Key: normalize.Key(name), Side: side, Kind: model.KindUnspecified}
		if i := strings.LastIndex(name, "."); i > 0 && i < len(name)-1 {
			entry.Parent = name[:i]
		}
	}

	st := State{
		Name:         entry.Name,
		Side:         side,
		Kind:         entry.Kind,
		Parent:       entry.Parent,
		Descriptions: entry.Descriptions,
		Aliases:      entry.Aliases,
		Evidence:     entry.Evidence,
	}
	if st.Kind == "" {
		st.Kind = model.KindUnspecified
	}

	switch {
	case entry.Declared:
	case side != model.SideUnspecified && bs.declaredOn(model.SideUnspecified, entry.Key):
		shared := bs.declared[model.SideUnspecified][entry.Key]
		st.Kind = shared.Kind
		st.Inherited = true
		st.Descriptions = append(append([]string(nil), st.Descriptions...), shared.Descriptions...)
		st.Evidence = append(append([]model.Evidence(nil), st.Evidence...), shared.Evidence...)
	default:
		st.Stub = true
		st.Kind = model.KindUnspecified
		detail := "referenced but never declared"
		bs.g.observations = append(bs.g.observations, Observation{
			Kind: ObsStubState, Side: side, State: st.Name, Detail: detail,
		})
		slog.Warn("graph: stub state created", "side", side, "state", st.Name, "reason", detail)
	}
	m.add(st)

	if st.Parent != "" {
		if err := bs.ensureState(side, st.Parent); err != nil {
			return err
		}
		parent, _ := m.lookup(st.Parent)
		m.partOf = append(m.partOf, PartOf{Side: side, Child: st.Name, Parent: parent.Name})
		m.children[parent.Name] = append(m.children[parent.Name], st.Name)
	}
	return nil
}

func (bs *buildState) declaredOn(side model.Side, key string) bool {
	_, ok := bs.declared[side][key]
	return ok
}

// checkInitial records INITIAL states that receive edges other than
// self-loops. Extraction shows rejection paths back into initial states,
// so by default this is an observation only.
func (bs *buildState) checkInitial(strict bool) error {
	for _, side := range model.Sides {
		m := bs.g.machines[side]
		for _, s := range m.states {
			if s.Kind != model.KindInitial {
				continue
			}
			var msgs []string
			for _, i := range m.in[s.Name] {
				t := m.transitions[i]
				if t.SelfLoop() {
					continue
				}
				msgs = append(msgs, t.From+" -["+t.Message+"]->")
			}
			if len(msgs) == 0 {
				continue
			}
			if strict {
				return &IntegrityError{Side: side, State: s.Name, Reason: "INITIAL state has incoming edges"}
			}
			bs.g.observations = append(bs.g.observations, Observation{
				Kind:   ObsInitialIncoming,
				Side:   side,
				State:  s.Name,
				Detail: fmt.Sprintf("%d incoming edge(s): %s", len(msgs), strings.Join(msgs, ", ")),
			})
		}
	}
	return nil
}

func (bs *buildState) addRelationships() {
	bs.g.elements = bs.in.Table.Elements()

	type relKey struct{ from, to, typ string }
	idx := make(map[relKey]int)
	for _, r := range bs.in.Relationships {
		k := relKey{r.From, r.To, RelationshipType(r.Text)}
		i, ok := idx[k]
		if !ok {
			i = len(bs.g.relationships)
			idx[k] = i
			bs.g.relationships = append(bs.g.relationships, Relationship{From: k.from, To: k.to, Type: k.typ})
		}
		rel := &bs.g.relationships[i]
		if r.Text != "" && !containsString(rel.Texts, r.Text) {
			rel.Texts = append(rel.Texts, r.Text)
		}
		if !containsString(rel.ChunkIDs, r.ChunkID) {
			rel.ChunkIDs = append(rel.ChunkIDs, r.ChunkID)
		}
	}
}

func (bs *buildState) addInvolvements() {
	seen := make(map[Involvement]bool)
	add := func(inv Involvement) {
		if inv.Element == "" || seen[inv] {
			return
		}
		seen[inv] = true
		bs.g.involvements = append(bs.g.involvements, inv)
	}
	for _, side := range model.Sides {
		for _, t := range bs.g.machines[side].transitions {
			add(Involvement{Element: t.FromElement, Role: RoleSends, Edge: t.Key})
			add(Involvement{Element: t.ToElement, Role: RoleReceives, Edge: t.Key})
		}
	}
}

func (bs *buildState) addReviewObservations() {
	for _, c := range bs.g.conflicts {
		bs.g.observations = append(bs.g.observations, Observation{
			Kind: ObsCrossSideConflict, Side: c.Side, State: c.Name, Detail: c.Reason,
		})
	}
	for _, d := range bs.g.divergences {
		bs.g.observations = append(bs.g.observations, Observation{
			Kind:    ObsDivergence,
			Side:    d.Side,
			State:   d.From,
			Message: d.Message,
			Detail:  "leads to " + strings.Join(d.Targets, ", "),
		})
	}
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
