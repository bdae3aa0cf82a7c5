package eval

import (
	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// Coverage measures how much of the graph the passing tests exercised.
type Coverage struct {
	Transitions          int     `json:"transitions"`
	TransitionsExercised int     `json:"transitions_exercised"`
	TransitionRate       float64 `json:"transition_rate"`
	States               int     `json:"states"`
	StatesVisited        int     `json:"states_visited"`
	StateRate            float64 `json:"state_rate"`
	AvgCorroboration     float64 `json:"avg_corroboration"`
}

// computeCoverage counts the distinct canonical transitions matched by
// passing tests and the states they touch. AvgCorroboration averages the
// corroboration count of the exercised transitions.
func computeCoverage(g *graph.Graph, results []TestResult) Coverage {
	index := make(map[resolve.Key]int)
	var c Coverage
	for _, side := range model.Sides {
		for _, t := range g.Transitions(side) {
			index[t.Key] = t.CorroborationCount
		}
		c.States += len(g.States(side))
	}
	c.Transitions = len(index)

	exercised := make(map[resolve.Key]bool)
	type sideState struct {
		side model.Side
		name string
	}
	visited := make(map[sideState]bool)
	for _, r := range results {
		if !r.Passed {
			continue
		}
		for _, k := range r.Matched {
			if _, ok := index[k]; !ok {
				continue
			}
			exercised[k] = true
			if k.From != model.Any {
				visited[sideState{k.Side, k.From}] = true
			}
			visited[sideState{k.Side, k.To}] = true
		}
		if r.Category == CategoryState && r.Final != "" {
			visited[sideState{r.Side, r.Final}] = true
		}
	}

	c.TransitionsExercised = len(exercised)
	c.StatesVisited = len(visited)
	c.TransitionRate = ratio(c.TransitionsExercised, c.Transitions)
	c.StateRate = ratio(c.StatesVisited, c.States)

	sum := 0
	for k := range exercised {
		sum += index[k]
	}
	if len(exercised) > 0 {
		c.AvgCorroboration = float64(sum) / float64(len(exercised))
	}
	return c
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
