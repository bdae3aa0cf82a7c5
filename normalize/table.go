package normalize

import "github.com/brunobiangulo/nasgraph/model"

// Table is the frozen canonical vocabulary of one run. It is safe for
// concurrent reads; slices returned by its methods must not be modified.
type Table struct {
	states    map[model.Side][]State
	index     map[model.Side]map[string]int
	loose     map[model.Side]map[string]int
	elements  []Element
	conflicts []CrossSideConflict
	fuzzy     bool
}

// Freeze stops all further registration and returns the read-only table.
// Calling Freeze again returns the same table.
func (n *Normalizer) Freeze() *Table {
	if n.frozen != nil {
		return n.frozen
	}
	t := &Table{
		states: make(map[model.Side][]State),
		index:  make(map[model.Side]map[string]int),
		loose:  make(map[model.Side]map[string]int),
		fuzzy:  n.fuzzy,
	}
	for _, side := range model.Sides {
		st := n.sides[side]
		pos := make(map[string]int, len(st.order))
		states := make([]State, 0, len(st.order))
		for i, ck := range st.order {
			states = append(states, *st.states[ck])
			pos[ck] = i
		}
		idx := make(map[string]int, len(st.alias))
		for k, ck := range st.alias {
			idx[k] = pos[ck]
		}
		lidx := make(map[string]int, len(st.loose))
		for k, ck := range st.loose {
			lidx[k] = pos[ck]
		}
		t.states[side] = states
		t.index[side] = idx
		t.loose[side] = lidx
	}
	for _, ck := range n.elementOrder {
		t.elements = append(t.elements, *n.elements[ck])
	}
	t.conflicts = append([]CrossSideConflict(nil), n.conflicts...)
	n.frozen = t
	return t
}

// States returns the states of side in registration order.
func (t *Table) States(side model.Side) []State {
	return t.states[side]
}

// Lookup finds the canonical state for name on side, accepting any alias
// that was seen during normalization.
func (t *Table) Lookup(side model.Side, name string) (State, bool) {
	if i, ok := t.index[side][Key(displayForm(name))]; ok {
		return t.states[side][i], true
	}
	if t.fuzzy {
		if lk := LooseKey(name); lk != "" {
			if i, ok := t.loose[side][lk]; ok {
				return t.states[side][i], true
			}
		}
	}
	return State{}, false
}

// Elements returns the canonical network elements in first-seen order.
func (t *Table) Elements() []Element {
	return t.elements
}

// Conflicts returns the cross-side conflicts flagged during normalization.
func (t *Table) Conflicts() []CrossSideConflict {
	return t.conflicts
}
