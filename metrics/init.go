package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasgraph_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nasgraph_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	r.HTTPRequestsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "nasgraph_http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)
}

func (r *Registry) initPipelineMetrics() {
	r.ChunksIngestedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "nasgraph_chunks_ingested_total",
			Help: "Extraction records accepted by the ingestor",
		},
	)
	r.MalformedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasgraph_malformed_records_total",
			Help: "Items dropped during ingestion, by reason",
		},
		[]string{"reason"},
	)
	r.BuildsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasgraph_builds_total",
			Help: "Graph builds by outcome",
		},
		[]string{"status"},
	)
	r.BuildDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nasgraph_build_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
	)
	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nasgraph_stage_duration_seconds",
			Help:    "Duration of a single pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
}

func (r *Registry) initGraphMetrics() {
	r.GraphStates = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_states",
			Help: "States in the current graph",
		},
		[]string{"side"},
	)
	r.GraphTransitions = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_transitions",
			Help: "Canonical transitions in the current graph",
		},
		[]string{"side"},
	)
	r.GraphWildcards = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_wildcard_transitions",
			Help: "ANY-source transitions in the current graph",
		},
		[]string{"side"},
	)
	r.GraphStubs = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_stub_states",
			Help: "States referenced but never declared",
		},
	)
	r.GraphConflicts = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_cross_side_conflicts",
			Help: "Cross-side naming conflicts flagged for review",
		},
	)
	r.GraphDivergences = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_divergences",
			Help: "(state, message) pairs leading to more than one target",
		},
	)
	r.GraphLastBuild = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "nasgraph_graph_last_build_timestamp_seconds",
			Help: "Unix time of the last successful build",
		},
	)
}

func (r *Registry) initQueryMetrics() {
	r.QueriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasgraph_queries_total",
			Help: "Graph queries by type and outcome",
		},
		[]string{"type", "status"},
	)
	r.QueryDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nasgraph_query_duration_seconds",
			Help:    "Graph query latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"type"},
	)
	r.BlockedTraces = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "nasgraph_traces_blocked_total",
			Help: "Procedure traces that stopped on an unmatched message",
		},
	)
}
