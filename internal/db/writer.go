package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathtree"
	"github.com/michaelscutari/dirscan/internal/rollup"
)

const insertDirSQL = `INSERT OR REPLACE INTO dirs (id, path, name, parent_id, depth) VALUES (?, ?, ?, ?, ?)`
const insertEntrySQL = `INSERT INTO entries (parent_id, name, kind, size, state) VALUES (?, ?, ?, ?, ?)`
const insertRollupSQL = `INSERT OR REPLACE INTO rollups (dir_id, total_size, total_files, total_dirs, unreadable_files) VALUES (?, ?, ?, ?, ?)`
const insertErrorSQL = `INSERT INTO scan_errors (path, op, message) VALUES (?, ?, ?)`
const insertScanMetaSQL = `
INSERT OR REPLACE INTO scan_meta
    (id, scan_id, root_path, start_time, end_time, total_size, file_count, dir_count, unreadable_count, error_count)
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const maxErrorsSampled = 1000

// DefaultBatchSize is the number of rows written per transaction.
const DefaultBatchSize = 10000

type dirRow struct {
	id       int64
	path     string
	name     string
	parentID int64
	depth    int
}

type entryRow struct {
	parentID int64
	name     string
	kind     entry.Kind
	size     int64
	state    entry.SizeState
}

type rollupRow struct {
	dirID  int64
	rollup *entry.Rollup
}

// ProgressFunc reports how many directories and files have been written.
type ProgressFunc func(written, total int64)

// Writer batches a completed scan into the database.
type Writer struct {
	db        *sql.DB
	batchSize int
	progress  ProgressFunc

	dirBatch    []dirRow
	entryBatch  []entryRow
	rollupBatch []rollupRow

	written atomic.Int64
	total   int64

	debug bool
}

// NewWriter creates a writer that commits every batchSize rows.
func NewWriter(db *sql.DB, batchSize int, debug bool) *Writer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		db:          db,
		batchSize:   batchSize,
		dirBatch:    make([]dirRow, 0, batchSize),
		entryBatch:  make([]entryRow, 0, batchSize),
		rollupBatch: make([]rollupRow, 0, batchSize),
		debug:       debug,
	}
}

// SetProgressFunc sets a callback invoked after every flush.
func (w *Writer) SetProgressFunc(f ProgressFunc) {
	w.progress = f
}

// Written returns the number of directories and files written so far.
func (w *Writer) Written() int64 {
	return w.written.Load()
}

// WriteTree stores every directory, file and rollup of a measured tree.
// Directory ids are assigned in walk order, starting with 1 for the root.
func (w *Writer) WriteTree(ctx context.Context, tree *pathtree.PathTree, rollups *rollup.Result) error {
	w.total = int64(tree.Len() + tree.FileCount())

	ids := map[*pathtree.PathNode]int64{tree.Root(): 1}
	nextID := int64(2)

	root := tree.Root()
	w.dirBatch = append(w.dirBatch, dirRow{id: 1, path: root.BasePath, name: root.Name(), parentID: 0, depth: 0})

	var walkErr error
	tree.Walk(func(node *pathtree.PathNode, pathSoFar []string) {
		if walkErr != nil {
			return
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return
		}

		id := ids[node]
		for _, child := range node.SortedChildren() {
			ids[child] = nextID
			w.dirBatch = append(w.dirBatch, dirRow{
				id:       nextID,
				path:     child.BasePath,
				name:     child.Name(),
				parentID: id,
				depth:    len(pathSoFar) + 1,
			})
			nextID++
		}

		for i := range node.Files {
			f := &node.Files[i]
			size, _ := f.Size()
			w.entryBatch = append(w.entryBatch, entryRow{
				parentID: id,
				name:     f.Name,
				kind:     f.Kind,
				size:     size,
				state:    f.State(),
			})
		}

		if rollups != nil {
			if r, ok := rollups.Get(node.BasePath); ok {
				w.rollupBatch = append(w.rollupBatch, rollupRow{dirID: id, rollup: r})
			}
		}

		if len(w.dirBatch) >= w.batchSize || len(w.entryBatch) >= w.batchSize || len(w.rollupBatch) >= w.batchSize {
			walkErr = w.flush()
		}
	})
	if walkErr != nil {
		return walkErr
	}

	return w.flush()
}

// WriteErrors stores up to maxErrorsSampled recoverable scan errors.
func (w *Writer) WriteErrors(errs []entry.ScanError) error {
	if len(errs) > maxErrorsSampled {
		errs = errs[:maxErrorsSampled]
	}
	if len(errs) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(insertErrorSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare error statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range errs {
		if _, err := stmt.Exec(e.Path, e.Op, e.Message); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert error for %q: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WriteScanMeta stores the scan metadata row.
func (w *Writer) WriteScanMeta(m entry.ScanMeta) error {
	var endTime any
	if !m.EndTime.IsZero() {
		endTime = m.EndTime.Unix()
	}
	_, err := w.db.Exec(insertScanMetaSQL,
		m.ScanID, m.RootPath, m.StartTime.Unix(), endTime,
		m.TotalSize, m.FileCount, m.DirCount, m.UnreadableCount, m.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to write scan metadata: %w", err)
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.dirBatch) == 0 && len(w.entryBatch) == 0 && len(w.rollupBatch) == 0 {
		return nil
	}

	flushStart := time.Now()
	dirs, entries, rollups := len(w.dirBatch), len(w.entryBatch), len(w.rollupBatch)
	if w.debug {
		fmt.Fprintf(os.Stderr, "[WRITER] FLUSH-START dirs=%d entries=%d rollups=%d\n", dirs, entries, rollups)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := w.flushDirs(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := w.flushEntries(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := w.flushRollups(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	written := w.written.Add(int64(dirs + entries))
	if w.debug {
		fmt.Fprintf(os.Stderr, "[WRITER] FLUSH-DONE written=%d took=%v\n", written, time.Since(flushStart))
	}
	if w.progress != nil {
		w.progress(written, w.total)
	}

	w.dirBatch = w.dirBatch[:0]
	w.entryBatch = w.entryBatch[:0]
	w.rollupBatch = w.rollupBatch[:0]
	return nil
}

func (w *Writer) flushDirs(tx *sql.Tx) error {
	if len(w.dirBatch) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(insertDirSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare dir statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range w.dirBatch {
		if _, err := stmt.Exec(d.id, d.path, d.name, d.parentID, d.depth); err != nil {
			return fmt.Errorf("failed to insert dir %q: %w", d.path, err)
		}
	}
	return nil
}

func (w *Writer) flushEntries(tx *sql.Tx) error {
	if len(w.entryBatch) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(insertEntrySQL)
	if err != nil {
		return fmt.Errorf("failed to prepare entry statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range w.entryBatch {
		if _, err := stmt.Exec(e.parentID, e.name, e.kind, e.size, e.state); err != nil {
			return fmt.Errorf("failed to insert entry %q: %w", e.name, err)
		}
	}
	return nil
}

func (w *Writer) flushRollups(tx *sql.Tx) error {
	if len(w.rollupBatch) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(insertRollupSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare rollup statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range w.rollupBatch {
		if _, err := stmt.Exec(r.dirID, r.rollup.TotalSize, r.rollup.TotalFiles, r.rollup.TotalDirs, r.rollup.UnreadableFiles); err != nil {
			return fmt.Errorf("failed to insert rollup for %q: %w", r.rollup.Path, err)
		}
	}
	return nil
}
