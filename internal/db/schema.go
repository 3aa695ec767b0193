package db

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
)

const dirsTableDDL = `
CREATE TABLE IF NOT EXISTS dirs (
    id INTEGER PRIMARY KEY,
    path TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    parent_id INTEGER,
    depth INTEGER NOT NULL
);
`

const entriesTableDDL = `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY,
    parent_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    kind INTEGER NOT NULL,
    size INTEGER NOT NULL,
    state INTEGER NOT NULL
);
`

const rollupsTableDDL = `
CREATE TABLE IF NOT EXISTS rollups (
    dir_id INTEGER PRIMARY KEY,
    total_size INTEGER NOT NULL,
    total_files INTEGER NOT NULL,
    total_dirs INTEGER NOT NULL,
    unreadable_files INTEGER NOT NULL DEFAULT 0
);
`

const scanMetaTableDDL = `
CREATE TABLE IF NOT EXISTS scan_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    scan_id TEXT NOT NULL,
    root_path TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    total_size INTEGER DEFAULT 0,
    file_count INTEGER DEFAULT 0,
    dir_count INTEGER DEFAULT 0,
    unreadable_count INTEGER DEFAULT 0,
    error_count INTEGER DEFAULT 0
);
`

const scanErrorsTableDDL = `
CREATE TABLE IF NOT EXISTS scan_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    op TEXT NOT NULL,
    message TEXT NOT NULL
);
`

// Indexes are built after the bulk load, once every row is in place.
// Listings join dirs and entries on parent_id and order by size; Largest
// reads rollups by size for directories below the root.
var reportIndexes = []struct {
	name string
	ddl  string
}{
	{"idx_dirs_parent", `CREATE INDEX IF NOT EXISTS idx_dirs_parent ON dirs(parent_id)`},
	{"idx_dirs_depth", `CREATE INDEX IF NOT EXISTS idx_dirs_depth ON dirs(depth)`},
	{"idx_entries_parent_size", `CREATE INDEX IF NOT EXISTS idx_entries_parent_size ON entries(parent_id, size DESC)`},
	{"idx_entries_unreadable", `CREATE INDEX IF NOT EXISTS idx_entries_unreadable ON entries(parent_id) WHERE state = 2`},
	{"idx_rollups_size", `CREATE INDEX IF NOT EXISTS idx_rollups_size ON rollups(total_size DESC)`},
	{"idx_rollups_files", `CREATE INDEX IF NOT EXISTS idx_rollups_files ON rollups(total_files DESC)`},
}

var (
	// Bulk load: WAL with relaxed syncing and a 64MB page cache.
	writePragmas = []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
	}

	// Browsing: same cache, mmap'd, and no accidental writes.
	readPragmas = []string{
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA query_only = ON",
	}
)

// InitSchema creates all report tables.
func InitSchema(db *sql.DB) error {
	return execAll(db, "create table", []string{
		dirsTableDDL,
		entriesTableDDL,
		rollupsTableDDL,
		scanMetaTableDDL,
		scanErrorsTableDDL,
	})
}

// ApplyWritePragmas configures SQLite for bulk report writes.
func ApplyWritePragmas(db *sql.DB) error {
	return execAll(db, "apply pragma", writePragmas)
}

// ApplyReadPragmas configures SQLite for browsing a finished report.
func ApplyReadPragmas(db *sql.DB) error {
	return execAll(db, "apply pragma", readPragmas)
}

// ApplyIndexPragmas picks where SQLite sorts while building indexes. With
// diskTemp the sort spills to tmpDir (or the system default) instead of RAM.
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
	return execAll(db, "set temp_store", []string{"PRAGMA temp_store = " + store})
}

// BuildIndexes creates the listing indexes of a loaded report.
func BuildIndexes(db *sql.DB) error {
	for _, idx := range reportIndexes {
		if _, err := db.Exec(idx.ddl); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Finalize optimizes the report and leaves it as a single self-contained
// file, without WAL sidecars.
func Finalize(db *sql.DB) error {
	return execAll(db, "finalize", []string{
		"PRAGMA optimize",
		"PRAGMA wal_checkpoint(TRUNCATE)",
		"PRAGMA journal_mode = DELETE",
	})
}

func execAll(db *sql.DB, what string, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to %s %q: %w", what, firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
