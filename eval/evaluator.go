// Package eval checks a built state-machine graph against a dataset of
// expected transitions, paths, procedure traces and states.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// Source supplies the graph under test. nasgraph.Engine satisfies it.
type Source interface {
	Graph() (*graph.Graph, error)
}

// Evaluator runs datasets against the current graph of a Source.
type Evaluator struct {
	src Source
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(src Source) *Evaluator {
	return &Evaluator{src: src}
}

// Report holds the results of an evaluation run.
type Report struct {
	Dataset       string                   `json:"dataset"`
	TotalTests    int                      `json:"total_tests"`
	Passed        int                      `json:"passed"`
	Failed        int                      `json:"failed"`
	Errors        int                      `json:"errors"`
	Coverage      Coverage                 `json:"coverage"`
	CategoryRates map[string]CategoryStats `json:"category_rates,omitempty"`
	Results       []TestResult             `json:"results"`
	RunTime       time.Duration            `json:"run_time"`
}

// CategoryStats counts outcomes within one test category.
type CategoryStats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// Rate is the pass percentage of the category.
func (c CategoryStats) Rate() float64 { return passRate(c.Passed, c.Total) }

// TestResult is the outcome of a single test case.
type TestResult struct {
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Side      model.Side    `json:"side"`
	Passed    bool          `json:"passed"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Matched   []resolve.Key `json:"matched,omitempty"`
	Hops      int           `json:"hops,omitempty"`
	Final     string        `json:"final,omitempty"`
	ElapsedUs int64         `json:"elapsed_us"`
}

// Run evaluates every test of dataset against the source's current graph.
// A failing test is recorded in the report; only an unavailable graph
// fails the run.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset) (*Report, error) {
	g, err := e.src.Graph()
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}

	start := time.Now()
	report := &Report{
		Dataset:       dataset.Name,
		TotalTests:    len(dataset.Tests),
		CategoryRates: make(map[string]CategoryStats),
	}

	for i, test := range dataset.Tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := runTest(g, test)
		report.Results = append(report.Results, result)

		status := "PASS"
		switch {
		case result.Error != "":
			status = "ERROR"
			report.Errors++
		case !result.Passed:
			status = "FAIL"
		}
		slog.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(dataset.Tests)),
			"status", status,
			"category", test.Category,
			"elapsed_us", result.ElapsedUs,
			"name", truncate(test.Name, 80))

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		cs := report.CategoryRates[test.Category]
		cs.Total++
		if result.Passed {
			cs.Passed++
		}
		report.CategoryRates[test.Category] = cs
	}

	report.Coverage = computeCoverage(g, report.Results)
	report.RunTime = time.Since(start)
	return report, nil
}

func runTest(g *graph.Graph, test TestCase) TestResult {
	start := time.Now()
	side := test.Side
	if side == "" {
		side = model.SideUE
	}
	res := TestResult{Name: test.Name, Category: test.Category, Side: side}

	var err error
	switch test.Category {
	case CategoryTransition:
		err = checkTransition(g, side, test, &res)
	case CategoryWildcard:
		err = checkWildcard(g, side, test, &res)
	case CategoryPath:
		err = checkPath(g, side, test, &res)
	case CategoryTrace:
		err = checkTrace(g, side, test, &res)
	case CategoryState:
		err = checkState(g, side, test, &res)
	default:
		err = fmt.Errorf("unknown category %q", test.Category)
	}
	if err != nil {
		res.Passed = false
		res.Error = err.Error()
		if errors.Is(err, graph.ErrUnknownState) {
			// an expected state that the graph lacks is a failure, not a harness error
			res.Error = ""
			res.Detail = err.Error()
		}
	}
	res.ElapsedUs = time.Since(start).Microseconds()
	return res
}

func checkTransition(g *graph.Graph, side model.Side, test TestCase, res *TestResult) error {
	out, err := g.TransitionsFrom(side, test.From)
	if err != nil {
		return err
	}
	to, err := canonical(g, side, test.To)
	if err != nil {
		return err
	}
	msg := normalize.MessageName(test.Message)
	for _, t := range out {
		if t.Message != msg || t.To != to {
			continue
		}
		res.Matched = append(res.Matched, t.Key)
		if t.CorroborationCount < test.MinCorroboration {
			res.Detail = fmt.Sprintf("corroboration %d < %d", t.CorroborationCount, test.MinCorroboration)
			return nil
		}
		res.Passed = true
		return nil
	}
	res.Detail = fmt.Sprintf("no %s edge to %s", msg, to)
	if alt := targetsOf(out, msg); len(alt) > 0 {
		res.Detail += fmt.Sprintf(" (goes to %s)", strings.Join(alt, ", "))
	}
	return nil
}

func checkWildcard(g *graph.Graph, side model.Side, test TestCase, res *TestResult) error {
	to, err := canonical(g, side, test.To)
	if err != nil {
		return err
	}
	msg := normalize.MessageName(test.Message)
	for _, t := range g.Wildcards(side) {
		if t.Message == msg && t.To == to && t.CorroborationCount >= test.MinCorroboration {
			res.Matched = append(res.Matched, t.Key)
			res.Passed = true
			return nil
		}
	}
	res.Detail = fmt.Sprintf("no wildcard %s edge to %s", msg, to)
	return nil
}

func checkPath(g *graph.Graph, side model.Side, test TestCase, res *TestResult) error {
	var opts []graph.QueryOption
	if test.Wildcards {
		opts = append(opts, graph.WithWildcards())
	}
	p, err := g.PathBetween(side, test.From, test.To, test.MaxHops, opts...)
	if err != nil {
		return err
	}
	res.Hops = p.Hops
	for _, t := range p.Transitions {
		res.Matched = append(res.Matched, t.Key)
	}
	switch {
	case test.Unreachable:
		res.Passed = !p.Found
		if p.Found {
			res.Detail = fmt.Sprintf("reachable in %d hops", p.Hops)
		}
	case p.Found:
		res.Passed = true
	default:
		res.Detail = "no path"
	}
	return nil
}

func checkTrace(g *graph.Graph, side model.Side, test TestCase, res *TestResult) error {
	tr, err := g.ProcedureTrace(side, test.From, test.Messages)
	if err != nil {
		return err
	}
	res.Final = tr.Final()
	for _, s := range tr.Steps {
		res.Matched = append(res.Matched, s.Transition.Key)
	}

	if test.BlockedAt != nil {
		switch {
		case tr.Blocked == nil:
			res.Detail = "trace completed"
		case tr.Blocked.Step != *test.BlockedAt:
			res.Detail = fmt.Sprintf("blocked at step %d", tr.Blocked.Step)
		default:
			res.Passed = true
		}
		return nil
	}
	if tr.Blocked != nil {
		res.Detail = fmt.Sprintf("blocked at step %d on %s in %s", tr.Blocked.Step, tr.Blocked.Message, tr.Blocked.State)
		return nil
	}
	if test.To != "" {
		want, err := canonical(g, side, test.To)
		if err != nil {
			return err
		}
		if res.Final != want {
			res.Detail = fmt.Sprintf("ended in %s, want %s", res.Final, want)
			return nil
		}
	}
	res.Passed = true
	return nil
}

func checkState(g *graph.Graph, side model.Side, test TestCase, res *TestResult) error {
	st, ok := g.State(side, test.From)
	if !ok {
		res.Detail = fmt.Sprintf("%s not in %s machine", test.From, side)
		return nil
	}
	res.Final = st.Name
	if test.Kind != "" && st.Kind != test.Kind {
		res.Detail = fmt.Sprintf("kind %s, want %s", st.Kind, test.Kind)
		return nil
	}
	res.Passed = true
	return nil
}

// canonical resolves name to the graph's display name for side.
func canonical(g *graph.Graph, side model.Side, name string) (string, error) {
	st, ok := g.State(side, name)
	if !ok {
		return "", &graph.UnknownStateError{Side: side, Name: name, Suggestions: g.Suggest(side, name, 3)}
	}
	return st.Name, nil
}

func targetsOf(ts []graph.Transition, msg string) []string {
	var out []string
	for _, t := range ts {
		if t.Message == msg {
			out = append(out, t.To)
		}
	}
	return out
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Conformance Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d | Errors: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed, r.Errors)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Microsecond))

	fmt.Fprintf(&b, "Coverage:\n")
	fmt.Fprintf(&b, "  Transitions:          %d/%d (%.1f%%)\n",
		r.Coverage.TransitionsExercised, r.Coverage.Transitions, r.Coverage.TransitionRate*100)
	fmt.Fprintf(&b, "  States:               %d/%d (%.1f%%)\n",
		r.Coverage.StatesVisited, r.Coverage.States, r.Coverage.StateRate*100)
	fmt.Fprintf(&b, "  Avg corroboration:    %.2f\n\n", r.Coverage.AvgCorroboration)

	if len(r.CategoryRates) > 0 {
		cats := make([]string, 0, len(r.CategoryRates))
		for cat := range r.CategoryRates {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category:\n")
		for _, cat := range cats {
			cs := r.CategoryRates[cat]
			fmt.Fprintf(&b, "  %-12s %d/%d (%.1f%%)\n", cat, cs.Passed, cs.Total, cs.Rate())
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		if res.Error != "" {
			status = "ERROR"
		}
		fmt.Fprintf(&b, "[%s] %d. %s (%s, %s)\n", status, i+1, res.Name, res.Category, res.Side)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
		} else if res.Detail != "" {
			fmt.Fprintf(&b, "  %s\n", res.Detail)
		}
	}
	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
