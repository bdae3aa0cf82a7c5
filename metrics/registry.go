// Package metrics exposes Prometheus metrics for the pipeline, the graph
// and the HTTP API.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics of a nasgraph process.
type Registry struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Pipeline
	ChunksIngestedTotal prometheus.Counter
	MalformedTotal      *prometheus.CounterVec
	BuildsTotal         *prometheus.CounterVec
	BuildDuration       prometheus.Histogram
	StageDuration       *prometheus.HistogramVec

	// Graph
	GraphStates       *prometheus.GaugeVec
	GraphTransitions  *prometheus.GaugeVec
	GraphWildcards    *prometheus.GaugeVec
	GraphStubs        prometheus.Gauge
	GraphConflicts    prometheus.Gauge
	GraphDivergences  prometheus.Gauge
	GraphLastBuild    prometheus.Gauge

	// Query
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	BlockedTraces prometheus.Counter

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric initialized, plus the
// Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.initHTTPMetrics()
	r.initPipelineMetrics()
	r.initGraphMetrics()
	r.initQueryMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
