package nasgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/normalize"
	"github.com/brunobiangulo/nasgraph/record"
	"github.com/brunobiangulo/nasgraph/resolve"
)

// PipelineOptions configures a Pipeline run.
type PipelineOptions struct {
	// Concurrency bounds parallel chunk parsing; 0 means one per CPU.
	Concurrency int
	Normalize   []normalize.Option
	Build       []graph.BuildOption
}

// StageTiming is the wall time of one pipeline stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of a Pipeline run.
type Report struct {
	RunID                string                   `json:"run_id,omitempty"`
	Graph                *graph.Graph             `json:"-"`
	Stats                graph.Stats              `json:"stats"`
	Ingest               record.Stats             `json:"ingest"`
	Malformed            []record.MalformedRecord `json:"malformed,omitempty"`
	OrphanAnnotations    int                      `json:"orphan_annotations"`
	RawTransitions       int                      `json:"raw_transitions"`
	CanonicalTransitions int                      `json:"canonical_transitions"`
	Stages               []StageTiming            `json:"stages"`
}

// Pipeline runs ingest, normalize, resolve and build over chunks without
// touching storage. Equal chunk sets give equal graphs regardless of their
// order. A *graph.IntegrityError aborts the run.
func Pipeline(ctx context.Context, chunks []record.ChunkRecord, opts PipelineOptions) (*Report, error) {
	if len(chunks) == 0 {
		return nil, ErrNoCorpus
	}
	rep := &Report{}
	timed := func(stage string, start time.Time) {
		rep.Stages = append(rep.Stages, StageTiming{Stage: stage, Duration: time.Since(start)})
	}

	start := time.Now()
	var ingestOpts []record.IngestOption
	if opts.Concurrency > 0 {
		ingestOpts = append(ingestOpts, record.WithConcurrency(opts.Concurrency))
	}
	batch, err := record.NewIngestor(ingestOpts...).Ingest(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	timed("ingest", start)
	rep.Ingest = batch.Stats
	rep.Malformed = batch.Malformed

	start = time.Now()
	norm, err := normalize.New(opts.Normalize...).Normalize(batch)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	timed("normalize", start)
	rep.OrphanAnnotations = norm.OrphanAnnotations
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	resolved := resolve.Resolve(norm.Transitions)
	timed("resolve", start)
	rep.RawTransitions = resolved.Raw
	rep.CanonicalTransitions = len(resolved.Transitions)

	start = time.Now()
	g, err := graph.NewBuilder(opts.Build...).Build(ctx, graph.Input{
		Table:         norm.Table,
		Resolved:      resolved,
		Relationships: norm.Relationships,
		Malformed:     batch.Stats.Malformed + norm.Dropped,
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	timed("build", start)

	rep.Graph = g
	rep.Stats = g.Stats()
	slog.Info("pipeline: complete",
		"chunks", len(chunks),
		"states", rep.Stats.States,
		"transitions", rep.Stats.Transitions,
		"malformed", rep.Ingest.Malformed)
	return rep, nil
}
