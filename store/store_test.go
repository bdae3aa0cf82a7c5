//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/record"
	"github.com/brunobiangulo/nasgraph/resolve"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []record.ChunkRecord {
	return []record.ChunkRecord{
		{
			ChunkID: "24501.pdf#1",
			Source:  "24501.pdf",
			Section: "5.5.1.2",
			States:  []record.StateItem{{Name: "5GMM-DEREGISTERED", Type: "INITIAL", Side: "UE"}},
			Transitions: []record.TransitionItem{{
				FromState: "5GMM-DEREGISTERED", ToState: "5GMM-REGISTERED-INITIATED",
				Message: "REGISTRATION REQUEST", Side: "UE", FromElement: "UE", ToElement: "AMF",
				Timing: "T3510 started",
			}},
			Embedding: []float32{1, 0, 0, 0},
		},
		{
			ChunkID: "24501.pdf#2",
			Source:  "24501.pdf",
			Transitions: []record.TransitionItem{
				{FromState: "5GMM-REGISTERED-INITIATED", ToState: "5GMM-REGISTERED", Message: "REGISTRATION ACCEPT", Side: "UE"},
				{FromState: "Unknown", ToState: "5GMM-DEREGISTERED", Message: "DEREGISTRATION ACCEPT", Side: "UE"},
			},
			ElementRelationships: []record.RelationshipItem{{Element1: "UE", Element2: "AMF", Relationship: "sends NAS messages to"}},
			Embedding:            []float32{0, 1, 0, 0},
		},
		{
			ChunkID: "23502.pdf#1",
			Source:  "23502.pdf",
			Transitions: []record.TransitionItem{
				{FromState: "5GMM-REGISTERED.NORMAL-SERVICE", ToState: "5GMM-DEREGISTERED-INITIATED", Message: "DEREGISTRATION REQUEST", Side: "UE"},
			},
		},
	}
}

func buildGraph(t *testing.T, recs []record.ChunkRecord) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	batch, err := record.NewIngestor().Ingest(ctx, recs)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	res, err := normalize.New().Normalize(batch)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	g, err := graph.NewBuilder().Build(ctx, graph.Input{
		Table:         res.Table,
		Resolved:      resolve.Resolve(res.Transitions),
		Relationships: res.Relationships,
		Malformed:     batch.Stats.Malformed,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func count(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != len(migrations) {
		t.Fatalf("expected schema version %d, got %d", len(migrations), v)
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	s.Close()

	s, err = New(dbPath, 4)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s.Close()
	if n := count(t, s, "SELECT COUNT(*) FROM schema_version"); n != len(migrations) {
		t.Fatalf("expected %d migrations recorded once, got %d", len(migrations), n)
	}
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func TestUpsertDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{Path: "/specs/24501.pdf", Filename: "24501.pdf", Format: "pdf", ContentHash: "abc"}
	id, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}

	doc.ContentHash = "def"
	doc.Status = "ready"
	id2, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("updating document: %v", err)
	}
	if id != id2 {
		t.Fatalf("expected same id after update, got %d and %d", id, id2)
	}

	got, err := s.GetDocumentByPath(ctx, doc.Path)
	if err != nil {
		t.Fatalf("getting document: %v", err)
	}
	if got.ContentHash != "def" || got.Status != "ready" {
		t.Fatalf("unexpected document %+v", got)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	if err := s.UpdateDocumentStatus(ctx, id, "failed"); err != nil {
		t.Fatalf("updating status: %v", err)
	}
	got, _ = s.GetDocumentByPath(ctx, doc.Path)
	if got.Status != "failed" {
		t.Fatalf("expected status failed, got %q", got.Status)
	}
}

// ---------------------------------------------------------------------------
// Chunks and embeddings
// ---------------------------------------------------------------------------

func TestUpsertAndLoadChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertChunks(ctx, sampleRecords())
	if err != nil {
		t.Fatalf("upserting chunks: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 chunks written, got %d", n)
	}

	// Replacing by chunk id does not duplicate.
	if _, err := s.UpsertChunks(ctx, sampleRecords()[:1]); err != nil {
		t.Fatalf("re-upserting: %v", err)
	}

	recs, err := s.AllChunks(ctx)
	if err != nil {
		t.Fatalf("loading chunks: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(recs))
	}
	if recs[0].ChunkID != "23502.pdf#1" {
		t.Fatalf("expected chunks ordered by id, first is %q", recs[0].ChunkID)
	}
	if got := recs[1].Transitions[0].Timing; got != "T3510 started" {
		t.Fatalf("expected timing to survive the round trip, got %q", got)
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Chunks != 3 || stats.Embeddings != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestUpsertChunksAssignsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertChunks(ctx, []record.ChunkRecord{{Source: "x.json"}, {}}); err != nil {
		t.Fatalf("upserting: %v", err)
	}
	recs, err := s.AllChunks(ctx)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if len(recs) != 2 || recs[0].ChunkID != "chunk-0001" || recs[1].ChunkID != "chunk-0002" {
		t.Fatalf("unexpected ids %+v", recs)
	}
}

func TestDeleteChunksBySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}
	n, err := s.DeleteChunksBySource(ctx, "24501.pdf")
	if err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 chunks deleted, got %d", n)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM vec_chunks"); got != 0 {
		t.Fatalf("expected embeddings removed, got %d", got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM chunks"); got != 1 {
		t.Fatalf("expected 1 chunk left, got %d", got)
	}
}

func TestSimilarChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}
	if err := s.InsertEmbedding(ctx, "23502.pdf#1", []float32{0, 0, 1, 0}); err != nil {
		t.Fatalf("inserting embedding: %v", err)
	}
	// Replacing an embedding keeps one row per chunk.
	if err := s.InsertEmbedding(ctx, "23502.pdf#1", []float32{0, 0.9, 0.1, 0}); err != nil {
		t.Fatalf("replacing embedding: %v", err)
	}

	got, err := s.SimilarChunks(ctx, []float32{0, 1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ChunkID != "24501.pdf#2" || got[0].Source != "24501.pdf" {
		t.Fatalf("expected nearest chunk 24501.pdf#2, got %+v", got[0])
	}
	if got[1].ChunkID != "23502.pdf#1" {
		t.Fatalf("expected second match 23502.pdf#1, got %+v", got[1])
	}

	if err := s.InsertEmbedding(ctx, "missing", []float32{1, 0, 0, 0}); err == nil {
		t.Fatal("expected error for unknown chunk")
	}
	if _, err := s.SimilarChunks(ctx, []float32{1, 0}, 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbeddingsDisabled(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "novec.db"), 0)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}
	if _, err := s.SimilarChunks(ctx, []float32{1}, 1); !errors.Is(err, ErrNoEmbeddings) {
		t.Fatalf("expected ErrNoEmbeddings, got %v", err)
	}
	if _, err := s.DeleteChunksBySource(ctx, "24501.pdf"); err != nil {
		t.Fatalf("deleting without vec table: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Runs and graph snapshots
// ---------------------------------------------------------------------------

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestRun(ctx); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}

	failed, err := s.BeginRun(ctx, 3)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.FailRun(ctx, failed, errors.New("integrity")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	ok, err := s.BeginRun(ctx, 3)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.FinishRun(ctx, ok, graph.Stats{States: 4, Transitions: 3}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != ok || latest.Status != RunSucceeded {
		t.Fatalf("unexpected latest run %+v", latest)
	}
	if latest.Stats == nil || latest.Stats.States != 4 || latest.FinishedAt == nil {
		t.Fatalf("expected stats and finish time, got %+v", latest)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[1].Status != RunFailed || runs[1].Error != "integrity" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	if err := s.FinishRun(ctx, "nope", graph.Stats{}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestSaveGraphReplacesSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := buildGraph(t, sampleRecords())

	first, _ := s.BeginRun(ctx, 3)
	if err := s.SaveGraph(ctx, first, g); err != nil {
		t.Fatalf("saving graph: %v", err)
	}
	second, _ := s.BeginRun(ctx, 3)
	if err := s.SaveGraph(ctx, second, g); err != nil {
		t.Fatalf("saving graph again: %v", err)
	}

	st := g.Stats()
	if got := count(t, s, "SELECT COUNT(*) FROM states WHERE run_id = ?", second); got != st.States {
		t.Fatalf("expected %d states, got %d", st.States, got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM states WHERE run_id = ?", first); got != 0 {
		t.Fatalf("expected previous snapshot cleared, got %d states", got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM transitions"); got != st.Transitions {
		t.Fatalf("expected %d transitions, got %d", st.Transitions, got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM transitions WHERE wildcard = 1 AND from_state = 'ANY'"); got != 1 {
		t.Fatalf("expected 1 wildcard edge, got %d", got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM evidence"); got != 4 {
		t.Fatalf("expected 4 evidence rows, got %d", got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM part_of WHERE parent = '5GMM-REGISTERED'"); got != 1 {
		t.Fatalf("expected substate link, got %d", got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM relationships WHERE relation_type = 'SENDS'"); got != 1 {
		t.Fatalf("expected SENDS relationship, got %d", got)
	}
	if got := count(t, s, "SELECT COUNT(*) FROM observations WHERE kind = 'stub_state'"); got != st.Stubs {
		t.Fatalf("expected %d stub observations, got %d", st.Stubs, got)
	}
}
