// Package store persists concept records, merged records, and lookup refs in
// SQLite. The rest of the system treats it as a key-value collaborator with a
// folded-term lookup; the physical schema lives entirely here.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding all registry state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const ddl = `
CREATE TABLE IF NOT EXISTS concept_records (
	concept_id TEXT PRIMARY KEY,
	src_name   TEXT NOT NULL,
	merge_ref  TEXT NOT NULL DEFAULT '',
	record     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_concept_records_src ON concept_records(src_name);

CREATE TABLE IF NOT EXISTS merged_records (
	concept_id TEXT PRIMARY KEY,
	record     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lookup_refs (
	term       TEXT NOT NULL,
	ref_type   TEXT NOT NULL,
	concept_id TEXT NOT NULL,
	PRIMARY KEY (term, ref_type, concept_id)
);
CREATE INDEX IF NOT EXISTS idx_lookup_refs_term ON lookup_refs(term, ref_type);

CREATE TABLE IF NOT EXISTS source_meta (
	src_name     TEXT PRIMARY KEY,
	version      TEXT NOT NULL DEFAULT '',
	record_count INTEGER NOT NULL DEFAULT 0,
	ingested_at  INTEGER
);

CREATE TABLE IF NOT EXISTS import_sources (
	ingestor_id TEXT PRIMARY KEY,
	src_name    TEXT NOT NULL,
	description TEXT NOT NULL,
	source_url  TEXT NOT NULL,
	license     TEXT NOT NULL DEFAULT '',
	last_check  INTEGER,
	last_status INTEGER,
	last_error  TEXT,
	updated_at  INTEGER NOT NULL
);
`

// Open opens (or creates) the registry database at path and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
