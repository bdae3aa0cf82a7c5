//go:build cgo

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/nasgraph"
)

const corpus = `[
 {"chunk_id": "c1",
  "states": [{"name": "5GMM-DEREGISTERED", "type": "INITIAL", "side": "UE"}],
  "transitions": [
    {"from_state": "5GMM-DEREGISTERED", "to_state": "5GMM-REGISTERED-INITIATED", "message": "REGISTRATION REQUEST", "from_element": "UE", "to_element": "AMF", "side": "UE"},
    {"from_state": "5GMM-REGISTERED-INITIATED", "to_state": "5GMM-REGISTERED", "message": "REGISTRATION ACCEPT", "side": "UE"}]},
 {"chunk_id": "c2",
  "transitions": [
    {"from_state": "ANY", "to_state": "5GMM-DEREGISTERED", "message": "DEREGISTRATION ACCEPT", "side": "UE"}]}
]`

func newTestServer(t *testing.T) (*httptest.Server, nasgraph.Engine) {
	t.Helper()
	cfg := nasgraph.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "server.db")
	cfg.EmbeddingDim = 4
	engine, err := nasgraph.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	mux := http.NewServeMux()
	newHandler(engine).routes(mux)
	srv := httptest.NewServer(metricsMiddleware(engine.Metrics(), mux))
	t.Cleanup(srv.Close)
	return srv, engine
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func ingestAndBuild(t *testing.T, srv *httptest.Server) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))

	resp := postJSON(t, srv.URL+"/ingest", map[string]string{"path": path})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res nasgraph.IngestResult
	decode(t, resp, &res)
	assert.Equal(t, 2, res.Records)

	resp = postJSON(t, srv.URL+"/build", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestQueriesBeforeBuild(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/transitions?state=5GMM-DEREGISTERED")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/build", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = get(t, srv.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	decode(t, resp, &health)
	assert.Equal(t, false, health["graph"])
}

func TestTransitionsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ingestAndBuild(t, srv)

	resp := get(t, srv.URL+"/transitions?state=5gmm-deregistered&side=UE")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Transitions []struct {
			Message string `json:"message"`
			To      string `json:"to"`
		} `json:"transitions"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Transitions, 1)
	assert.Equal(t, "REGISTRATION REQUEST", body.Transitions[0].Message)

	resp = get(t, srv.URL+"/transitions?state=5GMM-DEREGISTERED&direction=in")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/transitions?state=5GMM-DEREGISTERD")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var nf struct {
		Suggestions []string `json:"suggestions"`
	}
	decode(t, resp, &nf)
	assert.Contains(t, nf.Suggestions, "5GMM-DEREGISTERED")

	resp = get(t, srv.URL+"/transitions?side=MME&state=X")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = get(t, srv.URL+"/transitions")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPathEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ingestAndBuild(t, srv)

	resp := get(t, srv.URL+"/path?from=5GMM-DEREGISTERED&to=5GMM-REGISTERED&max_hops=4")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p struct {
		Found  bool     `json:"found"`
		Hops   int      `json:"hops"`
		States []string `json:"states"`
	}
	decode(t, resp, &p)
	assert.True(t, p.Found)
	assert.Equal(t, 2, p.Hops)

	resp = get(t, srv.URL+"/path?from=5GMM-REGISTERED&to=5GMM-DEREGISTERED")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &p)
	assert.False(t, p.Found)

	resp = get(t, srv.URL+"/path?from=5GMM-REGISTERED&to=5GMM-DEREGISTERED&wildcards=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &p)
	assert.True(t, p.Found)

	resp = get(t, srv.URL+"/path?from=5GMM-REGISTERED&to=5GMM-DEREGISTERED&max_hops=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTraceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ingestAndBuild(t, srv)

	resp := postJSON(t, srv.URL+"/trace", map[string]any{
		"entry_state": "5GMM-DEREGISTERED",
		"side":        "UE",
		"messages":    []string{"REGISTRATION REQUEST", "REGISTRATION ACCEPT", "AUTHENTICATION REJECT"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr struct {
		States    []string `json:"states"`
		Completed bool     `json:"completed"`
		Blocked   *struct {
			Step    int    `json:"step"`
			Message string `json:"message"`
			State   string `json:"state"`
		} `json:"blocked"`
	}
	decode(t, resp, &tr)
	assert.False(t, tr.Completed)
	require.NotNil(t, tr.Blocked)
	assert.Equal(t, 2, tr.Blocked.Step)
	assert.Equal(t, "5GMM-REGISTERED", tr.Blocked.State)

	resp = postJSON(t, srv.URL+"/trace", map[string]any{"side": "UE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMermaidAndGraphEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ingestAndBuild(t, srv)

	resp := get(t, srv.URL+"/export/mermaid?side=UE")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "stateDiagram-v2"))

	resp = get(t, srv.URL+"/export/mermaid?view=topology")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/graph")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap struct {
		Stats struct {
			Transitions int `json:"transitions"`
			Wildcards   int `json:"wildcards"`
		} `json:"stats"`
	}
	decode(t, resp, &snap)
	assert.Equal(t, 3, snap.Stats.Transitions)
	assert.Equal(t, 1, snap.Stats.Wildcards)

	resp = get(t, srv.URL+"/states?side=UE")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = get(t, srv.URL+"/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = get(t, srv.URL+"/documents")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSimilarChunksEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ingestAndBuild(t, srv)

	resp := postJSON(t, srv.URL+"/chunks/similar", map[string]any{"embedding": []float32{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/chunks/similar", map[string]any{"embedding": []float32{1, 0, 0, 0}, "k": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ingestAndBuild(t, srv)

	resp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nasgraph_http_requests_total")
	assert.Contains(t, string(body), `path="POST /build"`)
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := authMiddleware("secret", ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graph", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := corsMiddleware("https://a.example, https://b.example", ok)

	req := httptest.NewRequest(http.MethodOptions, "/graph", nil)
	req.Header.Set("Origin", "https://b.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://b.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
