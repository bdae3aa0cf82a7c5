package graph

import (
	"log/slog"

	"github.com/brunobiangulo/nasgraph/model"
)

// analyzeConnectivity counts weakly connected components over concrete
// edges and PART_OF links, and flags states not reachable from any INITIAL
// state of their machine. Machines without an INITIAL state are not
// checked for reachability.
func (bs *buildState) analyzeConnectivity() (components, unreachable int) {
	for _, side := range model.Sides {
		m := bs.g.machines[side]
		if len(m.states) == 0 {
			continue
		}

		// Undirected adjacency for components.
		adj := make([][]int, len(m.states))
		link := func(a, b string) {
			ai, okA := m.index[keyOf(a)]
			bi, okB := m.index[keyOf(b)]
			if !okA || !okB || ai == bi {
				return
			}
			adj[ai] = append(adj[ai], bi)
			adj[bi] = append(adj[bi], ai)
		}
		for _, t := range m.transitions {
			if !t.Wildcard {
				link(t.From, t.To)
			}
		}
		for _, p := range m.partOf {
			link(p.Child, p.Parent)
		}

		visited := make([]bool, len(m.states))
		comps := 0
		largest := 0
		for i := range m.states {
			if visited[i] {
				continue
			}
			comps++
			size := 0
			queue := []int{i}
			visited[i] = true
			for len(queue) > 0 {
				node := queue[0]
				queue = queue[1:]
				size++
				for _, nb := range adj[node] {
					if !visited[nb] {
						visited[nb] = true
						queue = append(queue, nb)
					}
				}
			}
			if size > largest {
				largest = size
			}
		}
		components += comps

		n := bs.markUnreachable(m)
		unreachable += n
		slog.Debug("graph: connectivity analysed",
			"side", side, "components", comps, "largest", largest, "unreachable", n)
	}
	return components, unreachable
}

// markUnreachable walks forward from INITIAL states. A wildcard edge makes
// its target reachable once any state is. Being in a state implies being in
// its parent and in some substate, so PART_OF is followed both ways.
func (bs *buildState) markUnreachable(m *Machine) int {
	var queue []string
	seen := make(map[string]bool)
	visit := func(name string) {
		if !seen[name] {
			seen[name] = true
			queue = append(queue, name)
		}
	}
	for _, s := range m.states {
		if s.Kind == model.KindInitial {
			visit(s.Name)
		}
	}
	if len(queue) == 0 {
		return 0
	}
	for _, i := range m.wildcards {
		visit(m.transitions[i].To)
	}
	parents := make(map[string]string, len(m.partOf))
	for _, p := range m.partOf {
		parents[p.Child] = p.Parent
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, i := range m.out[name] {
			visit(m.transitions[i].To)
		}
		if p, ok := parents[name]; ok {
			visit(p)
		}
		for _, c := range m.children[name] {
			visit(c)
		}
	}

	n := 0
	for _, s := range m.states {
		if seen[s.Name] {
			continue
		}
		n++
		bs.g.observations = append(bs.g.observations, Observation{
			Kind:   ObsUnreachable,
			Side:   m.Side,
			State:  s.Name,
			Detail: "not reachable from any INITIAL state",
		})
	}
	return n
}
