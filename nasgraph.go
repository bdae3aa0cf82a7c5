// Package nasgraph builds per-side NAS state machines from chunked
// extraction records and serves queries over the result.
package nasgraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/brunobiangulo/nasgraph/chunker"
	"github.com/brunobiangulo/nasgraph/extract"
	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/metrics"
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/neo4jdb"
	"github.com/brunobiangulo/nasgraph/parser"
	"github.com/brunobiangulo/nasgraph/record"
	"github.com/brunobiangulo/nasgraph/store"
)

// Engine is the main entry point: it stores chunk records, builds the
// graph from them and answers queries against the latest build.
type Engine interface {
	// IngestRecords stores the chunk records read from paths (files or
	// directories of .json, .jsonl and .xlsx files).
	IngestRecords(ctx context.Context, paths ...string) (*IngestResult, error)

	// IngestDocument parses, chunks and extracts a specification document
	// and stores the resulting records. Skips if the content hash is
	// unchanged.
	IngestDocument(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error)

	// Build runs the pipeline over every stored record, persists the
	// snapshot and makes it the graph queries see.
	Build(ctx context.Context) (*Report, error)

	// Load rebuilds the graph from the stored records in memory only: no
	// run is recorded and no snapshot is written. It fails with
	// ErrBuildInProgress while a Build or another Load is running.
	Load(ctx context.Context) (*Report, error)

	// Graph returns the latest built graph or ErrNoGraph.
	Graph() (*graph.Graph, error)

	TransitionsFrom(side model.Side, state string, opts ...graph.QueryOption) ([]graph.Transition, error)
	PathBetween(side model.Side, from, to string, maxHops int, opts ...graph.QueryOption) (graph.Path, error)
	ProcedureTrace(side model.Side, entry string, messages []string) (graph.Trace, error)

	// SimilarChunks finds the stored chunks nearest to embedding.
	SimilarChunks(ctx context.Context, embedding []float32, k int) ([]store.ChunkMatch, error)

	Stats(ctx context.Context) (*Stats, error)
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Documents(ctx context.Context) ([]store.Document, error)

	// Metrics returns the registry the engine records into.
	Metrics() *metrics.Registry

	// Close cleanly shuts down the engine.
	Close() error
}

// IngestResult reports what an ingest call stored.
type IngestResult struct {
	DocumentID int64    `json:"document_id,omitempty"`
	Paths      []string `json:"paths"`
	Chunks     int      `json:"chunks"`
	Records    int      `json:"records"`
	Skipped    bool     `json:"skipped,omitempty"`
}

// Stats combines the latest graph statistics with store counts.
type Stats struct {
	Graph     *graph.Stats   `json:"graph,omitempty"`
	BuiltAt   *time.Time     `json:"built_at,omitempty"`
	Store     *store.DBStats `json:"store"`
	LatestRun *store.Run     `json:"latest_run,omitempty"`
}

// IngestOption configures document ingestion.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	forceReparse bool
}

// WithForceReparse re-parses a document even if its hash is unchanged.
func WithForceReparse() IngestOption {
	return func(o *ingestOptions) { o.forceReparse = true }
}

// Option configures New.
type Option func(*engine)

// WithMetrics records into reg instead of a registry of the engine's own.
func WithMetrics(reg *metrics.Registry) Option {
	return func(e *engine) { e.metrics = reg }
}

type engine struct {
	cfg       Config
	store     *store.Store
	neo       *neo4jdb.Client
	metrics   *metrics.Registry
	parsers   *parser.Registry
	chunkr    *chunker.Chunker
	extractor *extract.Extractor

	current  atomic.Pointer[graph.Graph]
	building atomic.Bool
	closed   atomic.Bool
}

// New creates an engine with the given configuration.
func New(ctx context.Context, cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	neo, err := neo4jdb.NewClient(ctx, cfg.Neo4j)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connecting neo4j: %w", err)
	}

	var exOpts []extract.Option
	if cfg.Concurrency > 0 {
		exOpts = append(exOpts, extract.WithConcurrency(cfg.Concurrency))
	}
	e := &engine{
		cfg:     cfg,
		store:   s,
		neo:     neo,
		parsers: parser.NewRegistry(),
		chunkr: chunker.New(chunker.Config{
			MaxTokens: cfg.MaxChunkTokens,
			Overlap:   cfg.ChunkOverlap,
		}),
		extractor: extract.New(exOpts...),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRegistry()
	}
	return e, nil
}

// IngestRecords loads and stores chunk records.
func (e *engine) IngestRecords(ctx context.Context, paths ...string) (*IngestResult, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	res := &IngestResult{}
	for _, path := range paths {
		recs, err := record.LoadCorpus(path)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrCorpusUnreadable, err)
		}
		assignChunkIDs(recs)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if _, err := e.registerFile(ctx, path, "ready"); err != nil {
				return res, fmt.Errorf("registering %s: %w", path, err)
			}
		}
		n, err := e.store.UpsertChunks(ctx, recs)
		if err != nil {
			return res, fmt.Errorf("storing records: %w", err)
		}
		res.Paths = append(res.Paths, path)
		res.Records += n
		res.Chunks += n
		slog.Info("ingest: records stored", "path", path, "records", n)
	}
	return res, nil
}

// IngestDocument runs a document through parse, chunk and extract.
func (e *engine) IngestDocument(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	options := &ingestOptions{}
	for _, o := range opts {
		o(options)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	format := parser.FormatOf(absPath)
	if _, err := e.parsers.Get(format); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}
	res := &IngestResult{Paths: []string{absPath}}
	if !options.forceReparse {
		existing, err := e.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash && existing.Status == "ready" {
			res.DocumentID, res.Skipped = existing.ID, true
			return res, nil
		}
	}

	docID, err := e.registerFile(ctx, absPath, "processing")
	if err != nil {
		return nil, fmt.Errorf("upserting document: %w", err)
	}
	res.DocumentID = docID
	filename := filepath.Base(absPath)

	slog.Info("ingest: parsing document", "file", filename, "format", format, "doc_id", docID)
	parseStart := time.Now()
	parsed, err := e.parsers.ParseFile(ctx, absPath)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	chunks := e.chunkr.Chunk(filename, parsed.Sections)
	recs, err := e.extractor.Extract(ctx, chunks)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		return nil, fmt.Errorf("extracting records: %w", err)
	}

	// Re-ingest replaces everything the previous version contributed.
	if _, err := e.store.DeleteChunksBySource(ctx, filename); err != nil {
		return nil, fmt.Errorf("cleaning old records: %w", err)
	}
	n, err := e.store.UpsertChunks(ctx, recs)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "error")
		return nil, fmt.Errorf("storing records: %w", err)
	}
	res.Chunks, res.Records = len(chunks), n

	slog.Info("ingest: document ready",
		"file", filename, "doc_id", docID,
		"sections", len(parsed.Sections), "chunks", len(chunks), "records", n,
		"elapsed", time.Since(parseStart).Round(time.Millisecond))
	e.store.UpdateDocumentStatus(ctx, docID, "ready")
	return res, nil
}

func (e *engine) registerFile(ctx context.Context, path, status string) (int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	hash, err := fileHash(absPath)
	if err != nil {
		return 0, err
	}
	return e.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filepath.Base(absPath),
		Format:      parser.FormatOf(absPath),
		ContentHash: hash,
		Status:      status,
	})
}

// Build rebuilds the graph from every stored record.
func (e *engine) Build(ctx context.Context) (*Report, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	if !e.building.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer e.building.Store(false)

	start := time.Now()
	chunks, err := e.store.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoCorpus
	}
	runID, err := e.store.BeginRun(ctx, len(chunks))
	if err != nil {
		return nil, err
	}
	fail := func(cause error) (*Report, error) {
		e.metrics.RecordBuild(nil, time.Since(start))
		if err := e.store.FailRun(context.WithoutCancel(ctx), runID, cause); err != nil {
			slog.Warn("build: recording failed run", "run", runID, "error", err)
		}
		slog.Error("build: failed", "run", runID, "error", cause)
		return nil, cause
	}

	rep, err := Pipeline(ctx, chunks, e.pipelineOptions())
	if err != nil {
		return fail(err)
	}
	rep.RunID = runID
	e.metrics.RecordIngest(rep.Ingest.Chunks, rep.Ingest.MalformedByReason)
	for _, st := range rep.Stages {
		e.metrics.RecordStage(st.Stage, st.Duration)
	}

	if err := e.store.SaveGraph(ctx, runID, rep.Graph); err != nil {
		return fail(fmt.Errorf("saving snapshot: %w", err))
	}
	if err := e.neo.WriteGraph(ctx, runID, rep.Graph); err != nil {
		slog.Warn("build: neo4j mirror failed (non-fatal)", "run", runID, "error", err)
	}
	if err := e.store.FinishRun(ctx, runID, rep.Stats); err != nil {
		return fail(fmt.Errorf("finishing run: %w", err))
	}

	e.current.Store(rep.Graph)
	e.metrics.RecordBuild(rep.Graph, time.Since(start))
	slog.Info("build: graph ready",
		"run", runID,
		"states", rep.Stats.States,
		"transitions", rep.Stats.Transitions,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return rep, nil
}

func (e *engine) Load(ctx context.Context) (*Report, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	if !e.building.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer e.building.Store(false)
	chunks, err := e.store.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	rep, err := Pipeline(ctx, chunks, e.pipelineOptions())
	if err != nil {
		return nil, err
	}
	e.current.Store(rep.Graph)
	return rep, nil
}

func (e *engine) pipelineOptions() PipelineOptions {
	return PipelineOptions{
		Concurrency: e.cfg.Concurrency,
		Normalize:   e.cfg.normalizeOptions(),
		Build:       []graph.BuildOption{graph.WithStrictInitial(e.cfg.StrictInitial)},
	}
}

// Graph returns the latest built graph.
func (e *engine) Graph() (*graph.Graph, error) {
	g := e.current.Load()
	if g == nil {
		return nil, ErrNoGraph
	}
	return g, nil
}

func (e *engine) TransitionsFrom(side model.Side, state string, opts ...graph.QueryOption) ([]graph.Transition, error) {
	g, err := e.Graph()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ts, err := g.TransitionsFrom(side, state, opts...)
	e.metrics.RecordQuery("transitions_from", err, time.Since(start))
	return ts, err
}

func (e *engine) PathBetween(side model.Side, from, to string, maxHops int, opts ...graph.QueryOption) (graph.Path, error) {
	g, err := e.Graph()
	if err != nil {
		return graph.Path{}, err
	}
	start := time.Now()
	p, err := g.PathBetween(side, from, to, maxHops, opts...)
	e.metrics.RecordQuery("path_between", err, time.Since(start))
	return p, err
}

func (e *engine) ProcedureTrace(side model.Side, entry string, messages []string) (graph.Trace, error) {
	g, err := e.Graph()
	if err != nil {
		return graph.Trace{}, err
	}
	start := time.Now()
	tr, err := g.ProcedureTrace(side, entry, messages)
	e.metrics.RecordTrace(tr, err, time.Since(start))
	return tr, err
}

func (e *engine) SimilarChunks(ctx context.Context, embedding []float32, k int) ([]store.ChunkMatch, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	start := time.Now()
	matches, err := e.store.SimilarChunks(ctx, embedding, k)
	e.metrics.RecordQuery("similar_chunks", err, time.Since(start))
	return matches, err
}

func (e *engine) Stats(ctx context.Context) (*Stats, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	db, err := e.store.DBStats(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{Store: db}
	if g := e.current.Load(); g != nil {
		st, at := g.Stats(), g.BuiltAt()
		out.Graph, out.BuiltAt = &st, &at
	}
	run, err := e.store.LatestRun(ctx)
	switch {
	case err == nil:
		out.LatestRun = run
	case !errors.Is(err, store.ErrNoRuns):
		return nil, err
	}
	return out, nil
}

func (e *engine) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	return e.store.ListRuns(ctx, limit)
}

func (e *engine) Documents(ctx context.Context) ([]store.Document, error) {
	if e.closed.Load() {
		return nil, ErrStoreClosed
	}
	return e.store.ListDocuments(ctx)
}

func (e *engine) Metrics() *metrics.Registry { return e.metrics }

// Close shuts down the engine. Calling it twice is a no-op.
func (e *engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(e.neo.Close(ctx), e.store.Close())
}

// assignChunkIDs gives records without a chunk id or chunk index an id
// scoped to their source, so records of different files never collide.
func assignChunkIDs(recs []record.ChunkRecord) {
	pos := make(map[string]int)
	for i := range recs {
		r := &recs[i]
		source := r.Source
		if source == "" {
			source = r.Metadata.Source
		}
		n := pos[source]
		pos[source]++
		if r.ChunkID != "" || (source != "" && r.Metadata.ChunkIndex != nil) {
			continue
		}
		if source == "" {
			source = "chunk"
		}
		r.ChunkID = fmt.Sprintf("%s#%d", source, n)
	}
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
