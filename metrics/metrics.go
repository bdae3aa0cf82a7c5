package metrics

import (
	"time"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
)

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordIngest records one ingestion pass.
func (r *Registry) RecordIngest(chunks int, malformedByReason map[string]int) {
	r.ChunksIngestedTotal.Add(float64(chunks))
	for reason, n := range malformedByReason {
		r.MalformedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordStage records the duration of one pipeline stage.
func (r *Registry) RecordStage(stage string, duration time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBuild records a finished build. A nil graph counts as a failure.
func (r *Registry) RecordBuild(g *graph.Graph, duration time.Duration) {
	r.BuildDuration.Observe(duration.Seconds())
	if g == nil {
		r.BuildsTotal.WithLabelValues("failed").Inc()
		return
	}
	r.BuildsTotal.WithLabelValues("succeeded").Inc()
	for _, side := range model.Sides {
		r.GraphStates.WithLabelValues(string(side)).Set(float64(len(g.States(side))))
		r.GraphTransitions.WithLabelValues(string(side)).Set(float64(len(g.Transitions(side))))
		r.GraphWildcards.WithLabelValues(string(side)).Set(float64(len(g.Wildcards(side))))
	}
	st := g.Stats()
	r.GraphStubs.Set(float64(st.Stubs))
	r.GraphConflicts.Set(float64(st.Conflicts))
	r.GraphDivergences.Set(float64(st.Divergences))
	r.GraphLastBuild.Set(float64(g.BuiltAt().Unix()))
}

// RecordQuery records a graph query.
func (r *Registry) RecordQuery(queryType string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.QueriesTotal.WithLabelValues(queryType, status).Inc()
	r.QueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// RecordTrace records a procedure trace outcome.
func (r *Registry) RecordTrace(tr graph.Trace, err error, duration time.Duration) {
	r.RecordQuery("trace", err, duration)
	if err == nil && tr.Blocked != nil {
		r.BlockedTraces.Inc()
	}
}
