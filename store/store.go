// Package store persists extraction records, build runs and graph
// snapshots in SQLite.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/nasgraph/record"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNoEmbeddings is returned by vector operations on a store opened with
// a zero embedding dimension.
var ErrNoEmbeddings = errors.New("store: embeddings disabled")

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ChunkMatch is a chunk returned by a similarity search.
type ChunkMatch struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Section string  `json:"section"`
	Score   float64 `json:"score"`
}

// Store wraps the SQLite database for all nasgraph persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at dbPath and applies the
// schema and pending migrations.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// UpsertDocument inserts or updates a document record. Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	if doc.Status == "" {
		doc.Status = "pending"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, filename, format, content_hash, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			status = excluded.status,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.Status, nullable(doc.Metadata))
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	// An UPSERT that updated may not report the existing row.
	if id == 0 {
		if err := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", doc.Path).Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	doc := &Document{}
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, format, content_hash, status, metadata, created_at, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.Format,
		&doc.ContentHash, &doc.Status, &metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Metadata = metadata.String
	return doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, format, content_hash, status, metadata, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var metadata sql.NullString
		if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.Format,
			&d.ContentHash, &d.Status, &metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Metadata = metadata.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates just the status field.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// --- Chunk operations ---

// UpsertChunks stores extraction records, replacing any earlier record with
// the same chunk id. Records without an id get the id record.ChunkIDOf
// assigns at their position. Embeddings of the configured dimension are
// stored alongside. Returns the number of records written.
func (s *Store) UpsertChunks(ctx context.Context, recs []record.ChunkRecord) (int, error) {
	var skipped int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (chunk_id, document_id, source, section, record, content_hash)
			VALUES (?, (SELECT id FROM documents WHERE filename = ? ORDER BY id DESC LIMIT 1), ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET
				document_id = excluded.document_id,
				source = excluded.source,
				section = excluded.section,
				record = excluded.record,
				content_hash = excluded.content_hash,
				updated_at = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, rec := range recs {
			rec.ChunkID = record.ChunkIDOf(rec, i)
			source := rec.Source
			if source == "" {
				source = rec.Metadata.Source
			}
			section := rec.Section
			if section == "" {
				section = rec.Metadata.Section
			}
			body, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding chunk %s: %w", rec.ChunkID, err)
			}
			hash := sha256.Sum256(body)
			if _, err := stmt.ExecContext(ctx, rec.ChunkID, source, source, section,
				string(body), hex.EncodeToString(hash[:])); err != nil {
				return fmt.Errorf("storing chunk %s: %w", rec.ChunkID, err)
			}

			if len(rec.Embedding) == 0 || s.embeddingDim == 0 {
				continue
			}
			if len(rec.Embedding) != s.embeddingDim {
				skipped++
				continue
			}
			if err := insertEmbedding(ctx, tx, rec.ChunkID, rec.Embedding); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		slog.Warn("store: embeddings with wrong dimension skipped", "count", skipped, "dim", s.embeddingDim)
	}
	return len(recs), nil
}

// AllChunks returns every stored record ordered by chunk id.
func (s *Store) AllChunks(ctx context.Context) ([]record.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id, record FROM chunks ORDER BY chunk_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.ChunkRecord
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var rec record.ChunkRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decoding chunk %s: %w", id, err)
		}
		rec.ChunkID = id
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteChunksBySource removes the records of one source and their
// embeddings. Returns the number of records removed.
func (s *Store) DeleteChunksBySource(ctx context.Context, source string) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if s.embeddingDim > 0 {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM vec_chunks WHERE chunk_id IN (
					SELECT id FROM chunks WHERE source = ?
				)`, source); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// --- Embedding operations ---

// InsertEmbedding stores a vector embedding for a stored chunk.
func (s *Store) InsertEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	if s.embeddingDim == 0 {
		return ErrNoEmbeddings
	}
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("store: embedding has %d dimensions, want %d", len(embedding), s.embeddingDim)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEmbedding(ctx, tx, chunkID, embedding)
	})
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, chunkID string, embedding []float32) error {
	var rowID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM chunks WHERE chunk_id = ?", chunkID).Scan(&rowID); err != nil {
		return fmt.Errorf("looking up chunk %s: %w", chunkID, err)
	}
	// vec0 tables do not support UPSERT.
	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE chunk_id = ?", rowID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
		rowID, serializeFloat32(embedding))
	return err
}

// SimilarChunks performs a KNN search returning the k chunks nearest to
// the query embedding.
func (s *Store) SimilarChunks(ctx context.Context, query []float32, k int) ([]ChunkMatch, error) {
	if s.embeddingDim == 0 {
		return nil, ErrNoEmbeddings
	}
	if len(query) != s.embeddingDim {
		return nil, fmt.Errorf("store: query has %d dimensions, want %d", len(query), s.embeddingDim)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, COALESCE(c.source, ''), COALESCE(c.section, ''), v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var distance float64
		if err := rows.Scan(&m.ChunkID, &m.Source, &m.Section, &distance); err != nil {
			return nil, err
		}
		m.Score = 1.0 - distance
		out = append(out, m)
	}
	return out, rows.Err()
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
	Embeddings    int `json:"embeddings"`
	Runs          int `json:"runs"`
	States        int `json:"states"`
	Transitions   int `json:"transitions"`
	Evidence      int `json:"evidence"`
	Elements      int `json:"elements"`
	Relationships int `json:"relationships"`
	Observations  int `json:"observations"`
}

// DBStats returns row counts of the main tables.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM build_runs", &stats.Runs},
		{"SELECT COUNT(*) FROM states", &stats.States},
		{"SELECT COUNT(*) FROM transitions", &stats.Transitions},
		{"SELECT COUNT(*) FROM evidence", &stats.Evidence},
		{"SELECT COUNT(*) FROM elements", &stats.Elements},
		{"SELECT COUNT(*) FROM relationships", &stats.Relationships},
		{"SELECT COUNT(*) FROM observations", &stats.Observations},
	}
	if s.embeddingDim > 0 {
		queries = append(queries, struct {
			query string
			dest  *int
		}{"SELECT COUNT(*) FROM vec_chunks", &stats.Embeddings})
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
