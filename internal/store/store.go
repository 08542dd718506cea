// Package store provides the SQLite datastore behind the sync engine:
// entities, relations, prose sections, quotes, the tombstone ledger, and the
// sync-record cache. Writes that must stay internally consistent for one page
// run inside a single transaction via InTx.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	category     TEXT NOT NULL,
	slug         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	attrs        TEXT NOT NULL DEFAULT '{}',
	deleted_at   DATETIME,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_category ON entities(category);

CREATE TABLE IF NOT EXISTS prose (
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	section   TEXT NOT NULL,
	content   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_id, section)
);

CREATE TABLE IF NOT EXISTS relations (
	name       TEXT NOT NULL,
	parent_id  INTEGER NOT NULL REFERENCES entities(id),
	child_id   INTEGER NOT NULL REFERENCES entities(id),
	qualifier  TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	position   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (name, parent_id, child_id)
);

CREATE INDEX IF NOT EXISTS idx_relations_parent ON relations(name, parent_id);
CREATE INDEX IF NOT EXISTS idx_relations_child ON relations(name, child_id);

CREATE TABLE IF NOT EXISTS quotes (
	entity_id      INTEGER NOT NULL REFERENCES entities(id),
	position       INTEGER NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	attribution_id INTEGER,
	mode           TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_id, position)
);

-- Append-only. deleted_at is unix nanoseconds so precedence comparisons are
-- exact regardless of timezone formatting.
CREATE TABLE IF NOT EXISTS tombstones (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	relation_name TEXT NOT NULL,
	parent_id     INTEGER NOT NULL,
	child_id      INTEGER NOT NULL,
	deleted_at    INTEGER NOT NULL,
	deleted_by    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tombstones_triple ON tombstones(relation_name, parent_id, child_id);

CREATE TABLE IF NOT EXISTS sync_records (
	path               TEXT PRIMARY KEY,
	last_rendered_hash TEXT NOT NULL DEFAULT '',
	last_synced_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps a sql.DB with engine-specific operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Tx is a page-scoped transaction. All datastore writes for one page's ingest
// go through a single Tx so the page's relationships stay internally
// consistent, and so tombstone reads/writes share the relation change's
// isolation.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *Store) InTx(fn func(tx *Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
