package graph

import (
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// Path is the result of PathBetween. Found is false when no path exists
// within the hop limit; that is a normal result, not an error.
type Path struct {
	Found       bool         `json:"found"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Hops        int          `json:"hops"`
	States      []string     `json:"states,omitempty"`
	Transitions []Transition `json:"transitions,omitempty"`
}

// QueryOption configures a read query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	wildcards bool
}

// WithWildcards lets a query use ANY edges. They describe a policy that
// applies from every state, so they are off by default.
func WithWildcards() QueryOption {
	return func(o *queryOptions) { o.wildcards = true }
}

func applyQuery(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// PathBetween finds a shortest path by hop count from a to b using BFS.
// maxHops <= 0 means unlimited. Outgoing edges are explored in ranked
// order, so among equally short paths the better corroborated one wins.
func (g *Graph) PathBetween(side model.Side, a, b string, maxHops int, opts ...QueryOption) (Path, error) {
	o := applyQuery(opts)
	from, err := g.mustState(side, a)
	if err != nil {
		return Path{}, err
	}
	to, err := g.mustState(side, b)
	if err != nil {
		return Path{}, err
	}
	p := Path{From: from.Name, To: to.Name}
	if from.Name == to.Name {
		p.Found = true
		p.States = []string{from.Name}
		return p, nil
	}

	m := g.machines[side]
	wild := m.ranked(m.wildcards)

	type hop struct {
		prev string
		edge int
	}
	visited := map[string]hop{from.Name: {edge: -1}}
	queue := []string{from.Name}

	for depth := 0; len(queue) > 0 && (maxHops <= 0 || depth < maxHops); depth++ {
		var next []string
		for _, cur := range queue {
			edges := m.ranked(m.out[cur])
			if o.wildcards {
				edges = append(edges, wild...)
			}
			for _, i := range edges {
				t := m.transitions[i]
				if _, ok := visited[t.To]; ok {
					continue
				}
				visited[t.To] = hop{prev: cur, edge: i}
				if t.To == to.Name {
					var path []Transition
					for n := t.To; n != from.Name; {
						h := visited[n]
						path = append(path, m.transitions[h.edge])
						n = h.prev
					}
					for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
						path[l], path[r] = path[r], path[l]
					}
					p.Found = true
					p.Hops = len(path)
					p.Transitions = path
					p.States = []string{from.Name}
					for _, e := range path {
						p.States = append(p.States, e.To)
					}
					return p, nil
				}
				next = append(next, t.To)
			}
		}
		queue = next
	}
	return p, nil
}

// ranked returns edge indices ordered by corroboration, then message and
// target.
func (m *Machine) ranked(idx []int) []int {
	ts := make([]Transition, len(idx))
	pos := make(map[resolve.Key]int, len(idx))
	for j, i := range idx {
		ts[j] = m.transitions[i]
		pos[m.transitions[i].Key] = i
	}
	resolve.Rank(ts)
	out := make([]int, len(ts))
	for j, t := range ts {
		out[j] = pos[t.Key]
	}
	return out
}
