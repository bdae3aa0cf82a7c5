package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/nasgraph"
	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/store"
)

type handler struct {
	engine nasgraph.Engine
}

func newHandler(e nasgraph.Engine) *handler {
	return &handler{engine: e}
}

func (h *handler) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("POST /build", h.handleBuild)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /graph", h.handleGraph)
	mux.HandleFunc("GET /states", h.handleStates)
	mux.HandleFunc("GET /transitions", h.handleTransitions)
	mux.HandleFunc("GET /path", h.handlePath)
	mux.HandleFunc("POST /trace", h.handleTrace)
	mux.HandleFunc("GET /export/mermaid", h.handleMermaid)
	mux.HandleFunc("POST /chunks/similar", h.handleSimilar)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("GET /runs", h.handleRuns)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", h.engine.Metrics().Handler())
}

// recordExt lists the extensions ingested as chunk records; everything
// else is treated as a specification document.
var recordExt = map[string]bool{".json": true, ".jsonl": true, ".ndjson": true, ".xlsx": true}

// POST /ingest
// Accepts multipart file upload or JSON with a file or directory path.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	// Try multipart upload first
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal. The name is kept
			// since it becomes the chunk source.
			safeName := filepath.Base(header.Filename)
			tmpDir, err := os.MkdirTemp("", "nasgraph-upload-*")
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp dir", "error", err)
				return
			}
			defer os.RemoveAll(tmpDir)

			tmpPath := filepath.Join(tmpDir, safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()

			h.ingestPath(ctx, w, tmpPath, r.FormValue("force") != "")
			return
		}
	}

	var req struct {
		Path  string `json:"path"`
		Force bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if _, err := os.Stat(absPath); err != nil {
		writeError(w, http.StatusBadRequest, "path must exist")
		return
	}
	h.ingestPath(ctx, w, absPath, req.Force)
}

func (h *handler) ingestPath(ctx context.Context, w http.ResponseWriter, path string, force bool) {
	var (
		res *nasgraph.IngestResult
		err error
	)
	info, statErr := os.Stat(path)
	if statErr == nil && (info.IsDir() || recordExt[strings.ToLower(filepath.Ext(path))]) {
		res, err = h.engine.IngestRecords(ctx, path)
	} else {
		var opts []nasgraph.IngestOption
		if force {
			opts = append(opts, nasgraph.WithForceReparse())
		}
		res, err = h.engine.IngestDocument(ctx, path, opts...)
	}
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, nasgraph.ErrUnsupportedFormat),
			errors.Is(err, nasgraph.ErrCorpusUnreadable),
			errors.Is(err, nasgraph.ErrParsingFailed):
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		slog.Error("ingest error", "path", path, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /build
func (h *handler) handleBuild(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	rep, err := h.engine.Build(ctx)
	if err != nil {
		var ie *graph.IntegrityError
		switch {
		case errors.As(err, &ie):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":     err.Error(),
				"integrity": ie,
			})
		case errors.Is(err, nasgraph.ErrNoCorpus), errors.Is(err, nasgraph.ErrBuildInProgress):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "build failed")
			slog.Error("build error", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		slog.Error("stats error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /graph
func (h *handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.Graph()
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

// GET /states?side=
func (h *handler) handleStates(w http.ResponseWriter, r *http.Request) {
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	g, err := h.engine.Graph()
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"side":    side,
		"states":  g.States(side),
		"part_of": g.PartOf(side),
	})
}

// GET /transitions?state=&side=&direction=in|out&wildcards=true
func (h *handler) handleTransitions(w http.ResponseWriter, r *http.Request) {
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	state := q.Get("state")
	if state == "" {
		writeError(w, http.StatusBadRequest, "state is required")
		return
	}

	var (
		ts  []graph.Transition
		err error
	)
	switch q.Get("direction") {
	case "", "out":
		ts, err = h.engine.TransitionsFrom(side, state, queryOptions(r)...)
	case "in":
		var g *graph.Graph
		if g, err = h.engine.Graph(); err == nil {
			ts, err = g.TransitionsInto(side, state)
		}
	default:
		writeError(w, http.StatusBadRequest, "direction must be in or out")
		return
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"side":        side,
		"state":       state,
		"transitions": nonNil(ts),
	})
}

// GET /path?from=&to=&side=&max_hops=&wildcards=
func (h *handler) handlePath(w http.ResponseWriter, r *http.Request) {
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	maxHops := 0
	if v := q.Get("max_hops"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_hops must be a non-negative integer")
			return
		}
		maxHops = n
	}

	p, err := h.engine.PathBetween(side, from, to, maxHops, queryOptions(r)...)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /trace
func (h *handler) handleTrace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntryState string   `json:"entry_state"`
		Side       string   `json:"side"`
		Messages   []string `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.EntryState == "" {
		writeError(w, http.StatusBadRequest, "entry_state is required")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be UE or NETWORK")
		return
	}

	tr, err := h.engine.ProcedureTrace(side, req.EntryState, req.Messages)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// GET /export/mermaid?side=&expand=true&corroboration=true or ?view=topology
func (h *handler) handleMermaid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g, err := h.engine.Graph()
	if err != nil {
		writeQueryError(w, err)
		return
	}

	var out string
	if q.Get("view") == "topology" {
		out = g.MermaidTopology()
	} else {
		side, ok := sideParam(w, r)
		if !ok {
			return
		}
		var opts []graph.MermaidOption
		if boolParam(q.Get("expand")) {
			opts = append(opts, graph.ExpandWildcards())
		}
		if boolParam(q.Get("corroboration")) {
			opts = append(opts, graph.WithCorroboration())
		}
		out = g.Mermaid(side, opts...)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

// POST /chunks/similar
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Embedding []float32 `json:"embedding"`
		K         int       `json:"k,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Embedding) == 0 {
		writeError(w, http.StatusBadRequest, "embedding is required")
		return
	}
	if req.K <= 0 || req.K > 100 {
		req.K = 10
	}

	matches, err := h.engine.SimilarChunks(r.Context(), req.Embedding, req.K)
	if err != nil {
		if errors.Is(err, store.ErrNoEmbeddings) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		slog.Error("similar chunks error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": nonNil(matches)})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": nonNil(docs)})
}

// GET /runs?limit=
func (h *handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	runs, err := h.engine.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		slog.Error("list runs error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := h.engine.Graph()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"graph":  err == nil,
	})
}

// writeQueryError maps query failures onto status codes. A missing path or
// a blocked trace is not an error and never reaches here.
func writeQueryError(w http.ResponseWriter, err error) {
	var ue *graph.UnknownStateError
	switch {
	case errors.As(err, &ue):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":       err.Error(),
			"state":       ue.Name,
			"suggestions": ue.Suggestions,
		})
	case errors.Is(err, nasgraph.ErrNoGraph):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "query failed")
		slog.Error("query error", "error", err)
	}
}

func sideParam(w http.ResponseWriter, r *http.Request) (model.Side, bool) {
	side, ok := parseSide(r.URL.Query().Get("side"))
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be UE or NETWORK")
	}
	return side, ok
}

// parseSide defaults to the UE machine.
func parseSide(s string) (model.Side, bool) {
	if strings.TrimSpace(s) == "" {
		return model.SideUE, true
	}
	return model.ParseSide(s)
}

func queryOptions(r *http.Request) []graph.QueryOption {
	if boolParam(r.URL.Query().Get("wildcards")) {
		return []graph.QueryOption{graph.WithWildcards()}
	}
	return nil
}

func boolParam(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
