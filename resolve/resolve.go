// Package resolve merges normalized transition claims into canonical
// transitions keyed by (side, from, message, to). Evidence is concatenated,
// never dropped, and confidence is exposed as a corroboration count.
package resolve

import (
	"log/slog"
	"sort"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
)

// Key identifies a canonical transition. From is model.Any for wildcards.
type Key struct {
	Side    model.Side `json:"side"`
	From    string     `json:"from"`
	Message string     `json:"message"`
	To      string     `json:"to"`
}

// Transition is a canonical transition with its merged evidence.
type Transition struct {
	Key
	Wildcard           bool             `json:"wildcard"`
	FromElement        string           `json:"from_element,omitempty"`
	ToElement          string           `json:"to_element,omitempty"`
	Evidence           []model.Evidence `json:"evidence"`
	ChunkIDs           []string         `json:"chunk_ids"`
	CorroborationCount int              `json:"corroboration_count"`
	Specificity        int              `json:"specificity"`
}

// SelfLoop reports whether the transition leaves its state unchanged.
func (t Transition) SelfLoop() bool {
	return !t.Wildcard && t.From == t.To
}

// Divergence records one (side, from, message) that leads to several
// successor states. All edges are kept; Targets is ordered by corroboration.
type Divergence struct {
	Side    model.Side `json:"side"`
	From    string     `json:"from"`
	Message string     `json:"message"`
	Targets []string   `json:"targets"`
}

// Result is the output of Resolve.
type Result struct {
	Transitions []Transition `json:"transitions"`
	Divergences []Divergence `json:"divergences,omitempty"`
	Raw         int          `json:"raw"`
	Wildcards   int          `json:"wildcards"`
	SelfLoops   int          `json:"self_loops"`
}

// Resolve groups ts by key in input order. The output is sorted by side,
// from, message and to, so equal inputs give equal outputs.
func Resolve(ts []normalize.Transition) *Result {
	groups := make(map[Key]*Transition)
	var order []Key

	for _, t := range ts {
		from := t.From
		if t.Wildcard || model.IsSentinel(from) {
			from = model.Any
		}
		k := Key{Side: t.Side, From: from, Message: t.Message, To: t.To}
		g, ok := groups[k]
		if !ok {
			g = &Transition{Key: k, Wildcard: from == model.Any}
			groups[k] = g
			order = append(order, k)
		}
		if g.FromElement == "" {
			g.FromElement = t.FromElement
		}
		if g.ToElement == "" {
			g.ToElement = t.ToElement
		}
		g.Evidence = append(g.Evidence, t.Evidence)
	}

	res := &Result{Raw: len(ts), Transitions: make([]Transition, 0, len(order))}
	for _, k := range order {
		g := groups[k]
		g.ChunkIDs = model.ChunkIDs(g.Evidence)
		g.CorroborationCount = len(g.ChunkIDs)
		g.Specificity = specificity(g.Evidence)
		if g.Wildcard {
			res.Wildcards++
		}
		if g.SelfLoop() {
			res.SelfLoops++
		}
		res.Transitions = append(res.Transitions, *g)
	}
	sort.SliceStable(res.Transitions, func(i, j int) bool {
		return less(res.Transitions[i].Key, res.Transitions[j].Key)
	})
	res.Divergences = divergences(res.Transitions)

	slog.Info("resolve: transitions merged",
		"raw", res.Raw,
		"canonical", len(res.Transitions),
		"wildcards", res.Wildcards,
		"self_loops", res.SelfLoops,
		"divergences", len(res.Divergences))
	return res
}

// specificity is the largest number of detail fields any single evidence
// record supplies.
func specificity(ev []model.Evidence) int {
	best := 0
	for _, e := range ev {
		n := 0
		for _, s := range []string{e.Trigger, e.Condition, e.Timing, e.FromElement, e.ToElement} {
			if s != "" {
				n++
			}
		}
		if e.Step != nil {
			n++
		}
		if n > best {
			best = n
		}
	}
	return best
}

func divergences(ts []Transition) []Divergence {
	type head struct {
		side          model.Side
		from, message string
	}
	byHead := make(map[head][]Transition)
	var order []head
	for _, t := range ts {
		h := head{t.Side, t.From, t.Message}
		if _, ok := byHead[h]; !ok {
			order = append(order, h)
		}
		byHead[h] = append(byHead[h], t)
	}

	var out []Divergence
	for _, h := range order {
		group := byHead[h]
		if len(group) < 2 {
			continue
		}
		Rank(group)
		d := Divergence{Side: h.side, From: h.from, Message: h.message}
		for _, t := range group {
			d.Targets = append(d.Targets, t.To)
		}
		out = append(out, d)
	}
	return out
}

// Rank orders ts by corroboration descending, then message and target name.
func Rank(ts []Transition) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.CorroborationCount != b.CorroborationCount {
			return a.CorroborationCount > b.CorroborationCount
		}
		if a.Message != b.Message {
			return a.Message < b.Message
		}
		return a.To < b.To
	})
}

func sideIndex(s model.Side) int {
	for i, x := range model.Sides {
		if x == s {
			return i
		}
	}
	return len(model.Sides)
}

func less(a, b Key) bool {
	if a.Side != b.Side {
		return sideIndex(a.Side) < sideIndex(b.Side)
	}
	if a.From != b.From {
		return a.From < b.From
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	return a.To < b.To
}
