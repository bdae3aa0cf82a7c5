//go:build cgo

package nasgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/record"
	"github.com/brunobiangulo/nasgraph/store"
)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.EmbeddingDim = 4
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEngineBeforeBuild(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Graph()
	assert.ErrorIs(t, err, ErrNoGraph)
	_, err = e.TransitionsFrom(model.SideUE, "5GMM-NULL")
	assert.ErrorIs(t, err, ErrNoGraph)
	_, err = e.Build(ctx)
	assert.ErrorIs(t, err, ErrNoCorpus)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Graph)
	assert.Nil(t, st.LatestRun)
}

func TestEngineIngestBuildQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.IngestRecords(ctx, writeFile(t, "registration.json", registrationCorpus))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)

	rep, err := e.Build(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 5, rep.Stats.Transitions)

	ts, err := e.TransitionsFrom(model.SideUE, "5GMM-NULL")
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "5GMM-REGISTERED-INITIATED", ts[0].To)

	p, err := e.PathBetween(model.SideUE, "5GMM-NULL", "5GMM-REGISTERED", 0)
	require.NoError(t, err)
	assert.True(t, p.Found)
	assert.Equal(t, 1, p.Hops)

	tr, err := e.ProcedureTrace(model.SideUE, "5GMM-NULL", []string{"REGISTRATION REQUEST MESSAGE", "REGISTRATION ACCEPT"})
	require.NoError(t, err)
	assert.True(t, tr.Completed)
	assert.Equal(t, "5GMM-REGISTERED", tr.Final())

	_, err = e.PathBetween(model.SideUE, "5GMM-NULL", "EMM-BOGUS", 3)
	assert.ErrorIs(t, err, ErrUnknownState)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Graph)
	assert.Equal(t, 3, st.Store.Chunks)
	assert.Equal(t, 1, st.Store.Documents)
	require.NotNil(t, st.LatestRun)
	assert.Equal(t, store.RunSucceeded, st.LatestRun.Status)

	runs, err := e.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestEngineFailedBuildKeepsPreviousGraph(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.EmbeddingDim = 0
	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	_, err = e.IngestRecords(ctx, writeFile(t, "ok.json",
		`[{"chunk_id": "a", "transitions": [{"from_state": "5GMM-DEREGISTERED", "to_state": "5GMM-REGISTERED", "message": "REGISTRATION ACCEPT", "side": "UE"}]}]`))
	require.NoError(t, err)
	_, err = e.Build(ctx)
	require.NoError(t, err)
	before, err := e.Graph()
	require.NoError(t, err)

	strict := cfg
	strict.StrictInitial = true
	e2 := e.(*engine)
	e2.cfg = strict
	_, err = e.IngestRecords(ctx, writeFile(t, "initial.json", registrationCorpus))
	require.NoError(t, err)
	_, err = e.Build(ctx)
	var ie *graph.IntegrityError
	require.ErrorAs(t, err, &ie)

	after, err := e.Graph()
	require.NoError(t, err)
	assert.Same(t, before, after)

	run, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.LatestRun.Status)
}

const registrationSpec = `# 5.5.1.2.2 Initial registration initiation

The UE in state 5GMM-DEREGISTERED shall initiate the registration procedure by sending a REGISTRATION REQUEST message to the AMF, starting timer T3510 and entering state 5GMM-REGISTERED-INITIATED.

Upon receipt of the REGISTRATION ACCEPT message, the UE shall enter state 5GMM-REGISTERED.
`

func TestEngineIngestDocument(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	path := writeFile(t, "24501.md", registrationSpec)

	res, err := e.IngestDocument(ctx, path)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Positive(t, res.Chunks)
	assert.Positive(t, res.Records)

	again, err := e.IngestDocument(ctx, path)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, res.DocumentID, again.DocumentID)

	_, err = e.IngestDocument(ctx, path, WithForceReparse())
	require.NoError(t, err)

	_, err = e.Build(ctx)
	require.NoError(t, err)
	ts, err := e.TransitionsFrom(model.SideUE, "5GMM-DEREGISTERED")
	require.NoError(t, err)
	require.NotEmpty(t, ts)
	assert.Equal(t, "REGISTRATION REQUEST", ts[0].Message)
	assert.Equal(t, "5GMM-REGISTERED-INITIATED", ts[0].To)
	assert.Equal(t, 1, ts[0].CorroborationCount)
}

func TestEngineUnsupportedFormat(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.IngestDocument(context.Background(), writeFile(t, "notes.rtf", "{\\rtf1}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEngineUnreadableCorpus(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.IngestRecords(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrCorpusUnreadable)
}

func TestEngineClosed(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err := e.Build(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestAssignChunkIDs(t *testing.T) {
	idx := 7
	recs := []record.ChunkRecord{
		{Source: "a.json"},
		{ChunkID: "keep"},
		{Source: "a.json"},
		{Metadata: record.Metadata{Source: "b.json", ChunkIndex: &idx}},
		{},
	}
	assignChunkIDs(recs)
	assert.Equal(t, "a.json#0", recs[0].ChunkID)
	assert.Equal(t, "keep", recs[1].ChunkID)
	assert.Equal(t, "a.json#1", recs[2].ChunkID)
	assert.Empty(t, recs[3].ChunkID)
	assert.Equal(t, "b.json#7", record.ChunkIDOf(recs[3], 3))
	assert.Equal(t, "chunk#1", recs[4].ChunkID)
}

func TestEngineLoadRecordsNoRun(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.IngestRecords(ctx, writeFile(t, "registration.json", registrationCorpus))
	require.NoError(t, err)

	rep, err := e.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.RunID)
	_, err = e.Graph()
	require.NoError(t, err)

	runs, err := e.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngineLoadWhileBuilding(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.IngestRecords(ctx, writeFile(t, "registration.json", registrationCorpus))
	require.NoError(t, err)

	eng := e.(*engine)
	eng.building.Store(true)
	_, err = e.Load(ctx)
	assert.ErrorIs(t, err, ErrBuildInProgress)
	_, err = e.Graph()
	assert.ErrorIs(t, err, ErrNoGraph)

	eng.building.Store(false)
	_, err = e.Load(ctx)
	require.NoError(t, err)
	assert.False(t, eng.building.Load())
}
