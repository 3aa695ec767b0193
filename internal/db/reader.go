package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathutil"

	_ "modernc.org/sqlite"
)

// ErrDirNotFound is returned when a path is not a directory of the report.
var ErrDirNotFound = errors.New("directory not found")

// Reader answers queries against a finished report.
type Reader struct {
	db    *sql.DB
	cache *dirCache
}

// Open opens a report database for reading.
func Open(path string) (*Reader, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := ApplyReadPragmas(database); err != nil {
		database.Close()
		return nil, err
	}
	return NewReader(database), nil
}

// NewReader wraps an open database.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db, cache: newDirCache(dirCacheSize)}
}

// Close closes the underlying database.
func (r *Reader) Close() error {
	return r.db.Close()
}

func (r *Reader) dirID(path string) (int64, error) {
	path = pathutil.Normalize(path)
	if id, ok := r.cache.Get(path); ok {
		return id, nil
	}

	var id int64
	err := r.db.QueryRow(`SELECT id FROM dirs WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", path, ErrDirNotFound)
	}
	if err != nil {
		return 0, err
	}
	r.cache.Set(path, id)
	return id, nil
}

// LoadChildren loads the files and directories directly inside parentPath,
// with rollup totals for directories. sortBy is one of size, name or files.
func (r *Reader) LoadChildren(parentPath, sortBy string, limit int) ([]entry.Listing, error) {
	orderClause := "total_size DESC, name ASC"
	switch sortBy {
	case "name":
		orderClause = "name ASC"
	case "files":
		orderClause = "total_files DESC, name ASC"
	case "size":
		orderClause = "total_size DESC, name ASC"
	}

	query := fmt.Sprintf(`
		SELECT d.path, d.name, ? as kind, 0 as size, ? as state,
		       COALESCE(r.total_size, 0) as total_size,
		       COALESCE(r.total_files, 0) as total_files,
		       COALESCE(r.total_dirs, 0) as total_dirs
		FROM dirs d
		LEFT JOIN rollups r ON r.dir_id = d.id
		WHERE d.parent_id = ?

		UNION ALL

		SELECT CASE WHEN pd.path = '/' THEN '/' || e.name ELSE pd.path || '/' || e.name END as path,
		       e.name, e.kind, e.size, e.state,
		       e.size as total_size,
		       1 as total_files,
		       0 as total_dirs
		FROM entries e
		JOIN dirs pd ON pd.id = e.parent_id
		WHERE e.parent_id = ?
		ORDER BY %s
		LIMIT ?
	`, orderClause)

	parentID, err := r.dirID(parentPath)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(query, entry.KindDir, entry.SizeMeasured, parentID, parentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var listings []entry.Listing
	for rows.Next() {
		var l entry.Listing
		if err := rows.Scan(&l.Path, &l.Name, &l.Kind, &l.Size, &l.State, &l.TotalSize, &l.TotalFiles, &l.TotalDirs); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// GetRollup retrieves rollup data for a directory. It returns nil when the
// directory has no rollup.
func (r *Reader) GetRollup(path string) (*entry.Rollup, error) {
	dirID, err := r.dirID(path)
	if errors.Is(err, ErrDirNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ru := entry.Rollup{Path: pathutil.Normalize(path)}
	err = r.db.QueryRow(`
		SELECT total_size, total_files, total_dirs, unreadable_files
		FROM rollups WHERE dir_id = ?
	`, dirID).Scan(&ru.TotalSize, &ru.TotalFiles, &ru.TotalDirs, &ru.UnreadableFiles)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &ru, nil
}

// ScanMeta retrieves scan metadata.
func (r *Reader) ScanMeta() (*entry.ScanMeta, error) {
	var m entry.ScanMeta
	var startTime, endTime int64

	err := r.db.QueryRow(`
		SELECT scan_id, root_path, start_time, COALESCE(end_time, 0), total_size, file_count, dir_count, unreadable_count, error_count
		FROM scan_meta WHERE id = 1
	`).Scan(&m.ScanID, &m.RootPath, &startTime, &endTime, &m.TotalSize, &m.FileCount, &m.DirCount, &m.UnreadableCount, &m.ErrorCount)

	if err != nil {
		return nil, err
	}

	m.StartTime = time.Unix(startTime, 0)
	if endTime > 0 {
		m.EndTime = time.Unix(endTime, 0)
	}

	return &m, nil
}

// Largest returns the n directories with the largest totals, excluding the root.
func (r *Reader) Largest(n int) ([]entry.Rollup, error) {
	rows, err := r.db.Query(`
		SELECT d.path, r.total_size, r.total_files, r.total_dirs, r.unreadable_files
		FROM rollups r
		JOIN dirs d ON d.id = r.dir_id
		WHERE d.depth > 0
		ORDER BY r.total_size DESC, d.path ASC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []entry.Rollup
	for rows.Next() {
		var ru entry.Rollup
		if err := rows.Scan(&ru.Path, &ru.TotalSize, &ru.TotalFiles, &ru.TotalDirs, &ru.UnreadableFiles); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}

// Errors returns up to limit sampled scan errors.
func (r *Reader) Errors(limit int) ([]entry.ScanError, error) {
	rows, err := r.db.Query(`SELECT path, op, message FROM scan_errors ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []entry.ScanError
	for rows.Next() {
		var e entry.ScanError
		if err := rows.Scan(&e.Path, &e.Op, &e.Message); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
