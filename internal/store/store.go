package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer behind the type index and the
// hierarchy cache.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Workspace layout

CREATE TABLE IF NOT EXISTS projects (
  name            TEXT PRIMARY KEY,
  dir             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_deps (
  project         TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
  depends_on      TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
  PRIMARY KEY (project, depends_on)
);

CREATE TABLE IF NOT EXISTS roots (
  id              INTEGER PRIMARY KEY,
  project         TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
  path            TEXT NOT NULL UNIQUE,
  root_index      INTEGER NOT NULL,
  kind            TEXT NOT NULL
);

-- Index

CREATE TABLE IF NOT EXISTS units (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  project         TEXT NOT NULL,
  root            TEXT NOT NULL,
  root_index      INTEGER NOT NULL,
  package         TEXT NOT NULL,
  hash            TEXT,
  indexed_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  on_demand       INTEGER NOT NULL DEFAULT 0,
  is_static       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS types (
  id              INTEGER PRIMARY KEY,
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  simple_name     TEXT NOT NULL,
  enclosing_name  TEXT NOT NULL,
  modifiers       INTEGER NOT NULL,
  type_params     TEXT NOT NULL,
  is_interface    INTEGER NOT NULL DEFAULT 0,
  is_local        INTEGER NOT NULL DEFAULT 0,
  kind            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS supertype_refs (
  id              INTEGER PRIMARY KEY,
  type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
  simple_name     TEXT NOT NULL,
  qualification   TEXT NOT NULL,
  kind            TEXT NOT NULL,
  position        INTEGER NOT NULL
);

-- Hierarchy cache

CREATE TABLE IF NOT EXISTS hierarchy_cache (
  focus_handle     TEXT NOT NULL,
  compute_subtypes INTEGER NOT NULL,
  data             BLOB NOT NULL,
  graph_hash       TEXT NOT NULL,
  build_id         TEXT NOT NULL,
  built_at         TIMESTAMP,
  PRIMARY KEY (focus_handle, compute_subtypes)
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_roots_project ON roots(project);
CREATE INDEX IF NOT EXISTS idx_units_project ON units(project);
CREATE INDEX IF NOT EXISTS idx_units_root ON units(root);
CREATE INDEX IF NOT EXISTS idx_units_package ON units(package);
CREATE INDEX IF NOT EXISTS idx_imports_unit ON imports(unit_id);
CREATE INDEX IF NOT EXISTS idx_types_unit ON types(unit_id);
CREATE INDEX IF NOT EXISTS idx_types_name ON types(name);
CREATE INDEX IF NOT EXISTS idx_types_simple_name ON types(simple_name);
CREATE INDEX IF NOT EXISTS idx_supertype_refs_type ON supertype_refs(type_id);
CREATE INDEX IF NOT EXISTS idx_supertype_refs_simple_name ON supertype_refs(simple_name);
`
