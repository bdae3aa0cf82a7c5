package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ErrNoRuns is returned by LatestRun when nothing was ever built.
var ErrNoRuns = errors.New("store: no build runs")

// Run represents a row in the build_runs table.
type Run struct {
	ID         string       `json:"id"`
	Status     string       `json:"status"`
	Chunks     int          `json:"chunks"`
	Stats      *graph.Stats `json:"stats,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// BeginRun records the start of a build over chunks records and returns
// the new run id.
func (s *Store) BeginRun(ctx context.Context, chunks int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO build_runs (id, status, chunks, started_at) VALUES (?, ?, ?, ?)",
		id, RunRunning, chunks, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run successful and stores its statistics.
func (s *Store) FinishRun(ctx context.Context, id string, stats graph.Stats) error {
	return s.endRun(ctx, id, RunSucceeded, mustJSON(stats), "")
}

// FailRun marks a run failed with cause.
func (s *Store) FailRun(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.endRun(ctx, id, RunFailed, nil, msg)
}

func (s *Store) endRun(ctx context.Context, id, status string, stats any, msg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE build_runs SET status = ?, stats = ?, error = ?, finished_at = ? WHERE id = ?",
		status, stats, nullable(msg), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: unknown run %q", id)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return &runs[0], nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, chunks, stats, error, started_at, finished_at
		FROM build_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var stats, msg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Status, &r.Chunks, &stats, &msg, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		r.Error = msg.String
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if stats.Valid && stats.String != "" {
			var st graph.Stats
			if err := json.Unmarshal([]byte(stats.String), &st); err != nil {
				return nil, fmt.Errorf("decoding stats of run %s: %w", r.ID, err)
			}
			r.Stats = &st
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveGraph replaces the stored graph snapshot with g, tagged with runID.
// The snapshot is written in a single transaction; readers never see a
// partial graph.
func (s *Store) SaveGraph(ctx context.Context, runID string, g *graph.Graph) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"evidence", "transitions", "states", "part_of",
			"element_aliases", "elements", "relationships", "observations"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		for _, side := range model.Sides {
			if err := saveMachine(ctx, tx, runID, g, side); err != nil {
				return err
			}
		}
		if err := saveTopology(ctx, tx, runID, g); err != nil {
			return err
		}

		obs, err := tx.PrepareContext(ctx,
			"INSERT INTO observations (run_id, kind, side, state, message, detail) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer obs.Close()
		for _, o := range g.Observations() {
			if _, err := obs.ExecContext(ctx, runID, string(o.Kind), string(o.Side),
				nullable(o.State), nullable(o.Message), o.Detail); err != nil {
				return fmt.Errorf("storing observation: %w", err)
			}
		}
		return nil
	})
}

func saveMachine(ctx context.Context, tx *sql.Tx, runID string, g *graph.Graph, side model.Side) error {
	states, err := tx.PrepareContext(ctx, `
		INSERT INTO states (run_id, side, name, kind, parent, stub, inherited, descriptions, aliases)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer states.Close()
	for _, st := range g.States(side) {
		if _, err := states.ExecContext(ctx, runID, string(side), st.Name, string(st.Kind),
			nullable(st.Parent), st.Stub, st.Inherited,
			mustJSON(st.Descriptions), mustJSON(st.Aliases)); err != nil {
			return fmt.Errorf("storing state %s/%s: %w", side, st.Name, err)
		}
	}

	for _, p := range g.PartOf(side) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO part_of (run_id, side, child, parent) VALUES (?, ?, ?, ?)",
			runID, string(side), p.Child, p.Parent); err != nil {
			return fmt.Errorf("storing part_of %s: %w", p.Child, err)
		}
	}

	edges, err := tx.PrepareContext(ctx, `
		INSERT INTO transitions (run_id, side, from_state, message, to_state, wildcard,
			corroboration, specificity, from_element, to_element)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer edges.Close()
	ev, err := tx.PrepareContext(ctx, `
		INSERT INTO evidence (transition_id, chunk_id, trigger_text, condition_text, timing, step, raw_from, raw_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ev.Close()

	for _, t := range g.Transitions(side) {
		res, err := edges.ExecContext(ctx, runID, string(side), t.From, t.Message, t.To, t.Wildcard,
			t.CorroborationCount, t.Specificity, nullable(t.FromElement), nullable(t.ToElement))
		if err != nil {
			return fmt.Errorf("storing transition %s -[%s]-> %s: %w", t.From, t.Message, t.To, err)
		}
		tid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, e := range t.Evidence {
			var step any
			if e.Step != nil {
				step = *e.Step
			}
			if _, err := ev.ExecContext(ctx, tid, e.ChunkID, nullable(e.Trigger), nullable(e.Condition),
				nullable(e.Timing), step, nullable(e.RawFrom), nullable(e.RawTo)); err != nil {
				return fmt.Errorf("storing evidence for %s: %w", e.ChunkID, err)
			}
		}
	}
	return nil
}

func saveTopology(ctx context.Context, tx *sql.Tx, runID string, g *graph.Graph) error {
	for _, e := range g.Elements() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO elements (run_id, name, type, descriptions, chunk_ids) VALUES (?, ?, ?, ?, ?)",
			runID, e.Name, nullable(e.Type), mustJSON(e.Descriptions), mustJSON(e.ChunkIDs)); err != nil {
			return fmt.Errorf("storing element %s: %w", e.Name, err)
		}
		for _, a := range e.Aliases {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO element_aliases (run_id, element, alias) VALUES (?, ?, ?)",
				runID, e.Name, a); err != nil {
				return fmt.Errorf("storing alias %s: %w", a, err)
			}
		}
	}
	for _, r := range g.Relationships() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relationships (run_id, from_element, to_element, relation_type, texts, chunk_ids)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, r.From, r.To, r.Type, mustJSON(r.Texts), mustJSON(r.ChunkIDs)); err != nil {
			return fmt.Errorf("storing relationship %s-%s: %w", r.From, r.To, err)
		}
	}
	return nil
}
