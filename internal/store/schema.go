package store

import (
	"context"
	"database/sql"
	"fmt"

	codalexerrors "github.com/brindle-dev/codalex/internal/errors"
)

// SchemaVersion is the current on-disk schema version. A store refuses to
// write (and most reads) if it opens a database stamped with a newer
// version than this (spec.md §4.2 "Failure semantics").
const SchemaVersion = 2

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
	id         TEXT PRIMARY KEY,
	created_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	repository_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	language      TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	mtime_ns      INTEGER NOT NULL DEFAULT 0,
	index_error   TEXT NOT NULL DEFAULT '',
	indexed_ns    INTEGER NOT NULL DEFAULT 0,
	UNIQUE(repository_id, relative_path)
);
CREATE INDEX IF NOT EXISTS idx_files_repo ON files(repository_id);

CREATE TABLE IF NOT EXISTS symbols (
	file_id     INTEGER NOT NULL REFERENCES files(id),
	name        TEXT NOT NULL,
	name_lower  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	signature   TEXT NOT NULL DEFAULT '',
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	start_col   INTEGER NOT NULL DEFAULT 0,
	end_col     INTEGER NOT NULL DEFAULT 0,
	parent_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (file_id, name, kind, start_line)
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_name_lower ON symbols(name_lower);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
`

// chunksDDL tracks the embedding side of a File's Chunks (spec.md §4.7):
// one row per (file, chunk index) recording the hash that was last
// embedded and whether the chunk is still waiting on a provider retry, so
// a re-index can skip chunks whose hash hasn't changed and a background
// sweep can find everything still marked embed_pending.
const chunksDDL = `
CREATE TABLE IF NOT EXISTS chunks (
	file_id       INTEGER NOT NULL REFERENCES files(id),
	chunk_index   INTEGER NOT NULL,
	chunk_hash    TEXT NOT NULL,
	start_line    INTEGER NOT NULL,
	end_line      INTEGER NOT NULL,
	vector_id     TEXT NOT NULL DEFAULT '',
	embed_pending INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (file_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_pending ON chunks(embed_pending) WHERE embed_pending = 1;
`

// openAndMigrate opens db, checks the stored schema version, and runs
// forward migrations within a single write transaction when the store is
// older than SchemaVersion. It refuses to proceed if the store is newer
// than SchemaVersion (spec.md §4.2).
func openAndMigrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	var storedStr string
	row := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`)
	err := row.Scan(&storedStr)
	switch {
	case err == sql.ErrNoRows:
		return migrateFrom(ctx, db, 0)
	case err != nil:
		return fmt.Errorf("read schema_version: %w", err)
	}

	var stored int
	if _, err := fmt.Sscanf(storedStr, "%d", &stored); err != nil {
		return fmt.Errorf("parse schema_version %q: %w", storedStr, err)
	}
	if stored > SchemaVersion {
		return codalexerrors.SchemaMismatch(stored, SchemaVersion)
	}
	if stored < SchemaVersion {
		return migrateFrom(ctx, db, stored)
	}
	return nil
}

// migrateFrom runs all migrations needed to bring the store from "from" up
// to SchemaVersion, inside one write transaction.
func migrateFrom(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if from < 1 {
		if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
			return fmt.Errorf("apply v1 schema: %w", err)
		}
	}
	if from < 2 {
		if _, err := tx.ExecContext(ctx, chunksDDL); err != nil {
			return fmt.Errorf("apply v2 schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("stamp schema_version: %w", err)
	}

	return tx.Commit()
}
