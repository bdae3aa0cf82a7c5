package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension; the table is skipped when it is zero.
func schemaSQL(embeddingDim int) string {
	vec := ""
	if embeddingDim > 0 {
		vec = fmt.Sprintf(`
-- Optional chunk embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
`, embeddingDim)
	}
	return `
-- Source documents with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Extraction records, one row per chunk
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    chunk_id TEXT NOT NULL UNIQUE,
    document_id INTEGER REFERENCES documents(id) ON DELETE SET NULL,
    source TEXT,
    section TEXT,
    record JSON NOT NULL,
    content_hash TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
` + vec + `
-- Build history
CREATE TABLE IF NOT EXISTS build_runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    chunks INTEGER DEFAULT 0,
    stats JSON,
    error TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

-- Graph snapshot of the latest successful run
CREATE TABLE IF NOT EXISTS states (
    run_id TEXT NOT NULL REFERENCES build_runs(id),
    side TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    parent TEXT,
    stub INTEGER DEFAULT 0,
    inherited INTEGER DEFAULT 0,
    descriptions JSON,
    aliases JSON,
    PRIMARY KEY (run_id, side, name)
);

CREATE TABLE IF NOT EXISTS transitions (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES build_runs(id),
    side TEXT NOT NULL,
    from_state TEXT NOT NULL,
    message TEXT NOT NULL,
    to_state TEXT NOT NULL,
    wildcard INTEGER DEFAULT 0,
    corroboration INTEGER NOT NULL,
    specificity INTEGER DEFAULT 0,
    from_element TEXT,
    to_element TEXT
);

CREATE TABLE IF NOT EXISTS evidence (
    transition_id INTEGER NOT NULL REFERENCES transitions(id) ON DELETE CASCADE,
    chunk_id TEXT NOT NULL,
    trigger_text TEXT,
    condition_text TEXT,
    timing TEXT,
    step INTEGER,
    raw_from TEXT,
    raw_to TEXT
);

CREATE TABLE IF NOT EXISTS elements (
    run_id TEXT NOT NULL REFERENCES build_runs(id),
    name TEXT NOT NULL,
    type TEXT,
    descriptions JSON,
    chunk_ids JSON,
    PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS element_aliases (
    run_id TEXT NOT NULL,
    element TEXT NOT NULL,
    alias TEXT NOT NULL,
    PRIMARY KEY (run_id, element, alias)
);

CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES build_runs(id),
    from_element TEXT NOT NULL,
    to_element TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    texts JSON,
    chunk_ids JSON
);

CREATE TABLE IF NOT EXISTS part_of (
    run_id TEXT NOT NULL,
    side TEXT NOT NULL,
    child TEXT NOT NULL,
    parent TEXT NOT NULL,
    PRIMARY KEY (run_id, side, child)
);

CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES build_runs(id),
    kind TEXT NOT NULL,
    side TEXT,
    state TEXT,
    message TEXT,
    detail TEXT
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_runs_started ON build_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_transitions_from ON transitions(run_id, side, from_state);
CREATE INDEX IF NOT EXISTS idx_transitions_to ON transitions(run_id, side, to_state);
CREATE INDEX IF NOT EXISTS idx_observations_kind ON observations(run_id, kind);
`
}
