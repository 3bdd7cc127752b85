package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// SchemaVersion is stored in PRAGMA user_version of every snapshot.
const SchemaVersion = 1

// ErrSchemaVersion is returned when a database was not written by this
// version of dredge.
var ErrSchemaVersion = errors.New("unsupported snapshot schema")

var tables = []string{`
CREATE TABLE IF NOT EXISTS dirs (
    id INTEGER PRIMARY KEY,
    path TEXT UNIQUE NOT NULL,     -- folder paths end in "/"
    name TEXT NOT NULL,
    parent_id INTEGER,             -- NULL for the crawl root
    depth INTEGER NOT NULL,
    listed INTEGER NOT NULL DEFAULT 1
);`, `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY,
    parent_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    kind INTEGER NOT NULL,
    mime_type TEXT NOT NULL,
    size INTEGER NOT NULL,
    has_size INTEGER NOT NULL,
    human_size TEXT NOT NULL,
    path TEXT NOT NULL,
    download_url TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS rollups (
    dir_id INTEGER PRIMARY KEY,
    total_size INTEGER NOT NULL,
    total_files INTEGER NOT NULL,
    total_dirs INTEGER NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS crawl_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    run_id TEXT NOT NULL,
    root_path TEXT NOT NULL,
    root_id TEXT NOT NULL DEFAULT '',
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    total_size INTEGER DEFAULT 0,
    file_count INTEGER DEFAULT 0,
    dir_count INTEGER DEFAULT 0,
    job_count INTEGER DEFAULT 0,
    list_calls INTEGER DEFAULT 0,
    error_count INTEGER DEFAULT 0,
    concurrency INTEGER DEFAULT 0,
    retry_times INTEGER DEFAULT 0,
    recursive INTEGER DEFAULT 1
);`, `
CREATE TABLE IF NOT EXISTS crawl_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    attempt INTEGER NOT NULL,
    message TEXT NOT NULL
);`,
}

// Built after the bulk load.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_dirs_path ON dirs(path);`,
	`CREATE INDEX IF NOT EXISTS idx_dirs_parent ON dirs(parent_id);`,
	`CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_id);`,
	`CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path);`,
	`CREATE INDEX IF NOT EXISTS idx_entries_parent_size ON entries(parent_id, size DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_rollups_size ON rollups(total_size DESC);`,
}

var writePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -64000", // 64MB
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 268435456", // 256MB
}

var readPragmas = []string{
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -64000",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 268435456",
	"PRAGMA query_only = ON",
}

func execAll(db *sql.DB, what string, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to %s: %w", what, err)
		}
	}
	return nil
}

// InitSchema creates all tables and stamps the schema version.
func InitSchema(db *sql.DB) error {
	if err := execAll(db, "create table", tables); err != nil {
		return err
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// CheckSchema reports ErrSchemaVersion unless db is a snapshot this build
// can read.
func CheckSchema(db *sql.DB) error {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if v != SchemaVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSchemaVersion, v, SchemaVersion)
	}
	return nil
}

// ApplyWritePragmas configures SQLite for bulk ingestion of a crawled tree.
func ApplyWritePragmas(db *sql.DB) error {
	return execAll(db, "apply write pragma", writePragmas)
}

// ApplyReadPragmas configures SQLite for browsing a finished snapshot.
func ApplyReadPragmas(db *sql.DB) error {
	if err := execAll(db, "apply read pragma", readPragmas); err != nil {
		return err
	}
	// Needs write access; ignored on read-only files.
	db.Exec("PRAGMA journal_mode = DELETE")
	return nil
}

// ApplyIndexPragmas configures SQLite for index builds.
// When diskTemp is true, temp files are stored on disk to reduce RAM usage.
func ApplyIndexPragmas(db *sql.DB, diskTemp bool, tmpDir string) error {
	if tmpDir != "" {
		if err := os.MkdirAll(tmpDir, 0755); err != nil {
			return fmt.Errorf("failed to create sqlite temp dir: %w", err)
		}
		if err := os.Setenv("SQLITE_TMPDIR", tmpDir); err != nil {
			return fmt.Errorf("failed to set SQLITE_TMPDIR: %w", err)
		}
	}

	store := "MEMORY"
	if diskTemp {
		store = "FILE"
	}
	if _, err := db.Exec("PRAGMA temp_store = " + store); err != nil {
		return fmt.Errorf("failed to set temp_store: %w", err)
	}
	return nil
}

// BuildIndexes creates the lookup indexes once the tree is loaded.
func BuildIndexes(db *sql.DB) error {
	return execAll(db, "create index", indexes)
}

// Finalize optimizes the database and leaves it in rollback-journal mode so
// the snapshot is a single portable file.
func Finalize(db *sql.DB) error {
	return execAll(db, "finalize", []string{
		"PRAGMA optimize",
		"PRAGMA journal_mode = DELETE",
	})
}
