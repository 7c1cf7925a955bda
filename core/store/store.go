// Package store implements the relational store backing the IR: typed
// tables with ACID semantics over SQLite. Everything else in the compiler
// reads and writes through it. Schema creation is idempotent, all
// multi-row mutations run inside explicit transactions, and the last
// inserted row identifier is retrievable immediately after an insert for
// foreign-key wiring within the same transaction.
package store

import (
	"database/sql"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/sqlite"
)

// Store wraps the SQLite database the pipeline owns exclusively for the
// duration of a run. Concurrent invocations against the same store are
// out of scope and assumed serialized by the caller.
type Store struct {
	db *sql.DB
}

// schemaStatements is the idempotent DDL. Safe to execute any number of
// times against the same database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS specifications (
		id       INTEGER PRIMARY KEY,
		type_ref TEXT NOT NULL,
		title    TEXT NOT NULL,
		pid      TEXT NOT NULL,
		path     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS objects (
		id         INTEGER PRIMARY KEY,
		spec_id    INTEGER NOT NULL REFERENCES specifications(id),
		key        TEXT NOT NULL,
		parent_key TEXT NOT NULL DEFAULT '',
		type_ref   TEXT NOT NULL,
		title      TEXT NOT NULL,
		pid        TEXT NOT NULL,
		label      TEXT NOT NULL DEFAULT '',
		level      INTEGER NOT NULL,
		line       INTEGER NOT NULL,
		body       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS floats (
		id                INTEGER PRIMARY KEY,
		spec_id           INTEGER NOT NULL REFERENCES specifications(id),
		key               TEXT NOT NULL,
		parent_object_key TEXT NOT NULL,
		type_ref          TEXT NOT NULL,
		label             TEXT NOT NULL DEFAULT '',
		number            INTEGER NOT NULL DEFAULT 0,
		caption           TEXT NOT NULL DEFAULT '',
		raw_content       TEXT NOT NULL,
		resolved_content  TEXT,
		line              INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relations (
		id                INTEGER PRIMARY KEY,
		spec_id           INTEGER NOT NULL REFERENCES specifications(id),
		source_object_key TEXT NOT NULL,
		target_text       TEXT NOT NULL,
		selector          TEXT NOT NULL,
		source_attribute  TEXT NOT NULL,
		target_ref        TEXT,
		target_is_float   INTEGER NOT NULL DEFAULT 0,
		type_ref          TEXT,
		is_ambiguous      INTEGER NOT NULL DEFAULT 0,
		line              INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS views (
		id                INTEGER PRIMARY KEY,
		spec_id           INTEGER NOT NULL REFERENCES specifications(id),
		parent_object_key TEXT NOT NULL,
		view_type_ref     TEXT NOT NULL,
		raw_param         TEXT NOT NULL DEFAULT '',
		resolved_content  TEXT,
		line              INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attributes (
		id         INTEGER PRIMARY KEY,
		spec_id    INTEGER NOT NULL REFERENCES specifications(id),
		owner_kind TEXT NOT NULL,
		owner_key  TEXT NOT NULL,
		name       TEXT NOT NULL,
		raw_value  TEXT NOT NULL,
		datatype   TEXT NOT NULL,
		string_val TEXT,
		int_val    INTEGER,
		real_val   REAL,
		bool_val   INTEGER,
		date_val   TEXT,
		enum_ref   TEXT,
		ast        BLOB,
		line       INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS file_hashes (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS include_deps (
		root    TEXT NOT NULL,
		include TEXT NOT NULL,
		PRIMARY KEY (root, include)
	)`,
	`CREATE TABLE IF NOT EXISTS output_hashes (
		spec_pid    TEXT NOT NULL,
		output_path TEXT NOT NULL,
		pir_hash    TEXT NOT NULL,
		PRIMARY KEY (spec_pid, output_path)
	)`,
	`CREATE TABLE IF NOT EXISTS render_cache (
		float_key  TEXT PRIMARY KEY,
		input_hash TEXT NOT NULL,
		content    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_objects_spec ON objects(spec_id)`,
	`CREATE INDEX IF NOT EXISTS idx_floats_parent ON floats(parent_object_key)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_spec ON relations(spec_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attributes_owner ON attributes(owner_kind, owner_key)`,
}

// Open opens (or creates) the store at path and ensures the schema
// exists. Schema creation is idempotent. A schema failure is a load-time
// fatal error.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	s := &Store{db: db}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory store, used by tests. The connection pool
// is pinned to a single connection before any statement runs: every pooled
// connection to ":memory:" gets its own empty database, so a second
// connection would not see the schema.
func OpenMemory() (*Store, error) {
	db, err := sqlite.Open(":memory:")
	if err != nil {
		return nil, errors.NewIO("open", ":memory:", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates any missing tables, indexes, and cache tables.
// Safe to invoke multiple times.
func (s *Store) EnsureSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return &errors.SchemaError{Statement: truncate(stmt, 60), Err: err}
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only consumers (the pivot
// projection views are meant to be queried externally, not by the core).
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside an explicit transaction, committing on nil error
// and rolling back otherwise.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed (%v) after", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// truncate shortens a statement for error reporting.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
