package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/record"
	"github.com/brunobiangulo/nasgraph/resolve"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("reading metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric %v", m.Desc())
	return 0
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.HTTPRequestsTotal == nil || r.BuildsTotal == nil || r.GraphStates == nil || r.QueriesTotal == nil {
		t.Fatal("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Fatal("prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("GET", "/transitions", "200", 10*time.Millisecond)
	r.RecordHTTPRequest("GET", "/transitions", "200", 20*time.Millisecond)
	r.RecordHTTPRequest("GET", "/transitions", "404", time.Millisecond)

	if got := value(t, r.HTTPRequestsTotal.WithLabelValues("GET", "/transitions", "200")); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := value(t, r.HTTPRequestsTotal.WithLabelValues("GET", "/transitions", "404")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}

func TestRecordIngest(t *testing.T) {
	r := NewRegistry()
	r.RecordIngest(5, map[string]int{"missing message": 2, "undecodable": 1})
	r.RecordIngest(3, nil)

	if got := value(t, r.ChunksIngestedTotal); got != 8 {
		t.Errorf("expected 8 chunks, got %v", got)
	}
	if got := value(t, r.MalformedTotal.WithLabelValues("missing message")); got != 2 {
		t.Errorf("expected 2 malformed, got %v", got)
	}
}

func TestRecordBuild(t *testing.T) {
	ctx := context.Background()
	recs, err := record.Decode([]byte(`{"chunk_id": "c1", "transitions": [
		{"from_state": "5GMM-DEREGISTERED", "to_state": "5GMM-REGISTERING", "message": "REGISTRATION REQUEST", "side": "UE"},
		{"from_state": "Unknown", "to_state": "5GMM-DEREGISTERED", "message": "DEREGISTRATION ACCEPT", "side": "UE"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	batch, err := record.NewIngestor().Ingest(ctx, recs)
	if err != nil {
		t.Fatal(err)
	}
	res, err := normalize.New().Normalize(batch)
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.NewBuilder().Build(ctx, graph.Input{Table: res.Table, Resolved: resolve.Resolve(res.Transitions)})
	if err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	r.RecordBuild(g, time.Second)
	r.RecordBuild(nil, time.Second)

	if got := value(t, r.GraphStates.WithLabelValues("UE")); got != 2 {
		t.Errorf("expected 2 UE states, got %v", got)
	}
	if got := value(t, r.GraphWildcards.WithLabelValues("UE")); got != 1 {
		t.Errorf("expected 1 wildcard, got %v", got)
	}
	if got := value(t, r.GraphStubs); got != 2 {
		t.Errorf("expected 2 stubs, got %v", got)
	}
	if got := value(t, r.BuildsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed build, got %v", got)
	}
}

func TestRecordTrace(t *testing.T) {
	r := NewRegistry()
	r.RecordTrace(graph.Trace{Blocked: &graph.Blocked{Step: 1}}, nil, time.Millisecond)
	r.RecordTrace(graph.Trace{Completed: true}, nil, time.Millisecond)
	r.RecordTrace(graph.Trace{}, errors.New("unknown state"), time.Millisecond)

	if got := value(t, r.BlockedTraces); got != 1 {
		t.Errorf("expected 1 blocked trace, got %v", got)
	}
	if got := value(t, r.QueriesTotal.WithLabelValues("trace", "error")); got != 1 {
		t.Errorf("expected 1 failed trace, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordStage("ingest", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"nasgraph_stage_duration_seconds", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in exposition output", want)
		}
	}
}
