package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathtree"
	"github.com/michaelscutari/dirscan/internal/rollup"

	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// :memory: databases are per connection.
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	if err := InitSchema(database); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return database
}

func file(name string, size int64) entry.FileEntry {
	f := entry.NewFileEntry(name, entry.KindFile)
	f.SetSize(size)
	return f
}

// buildTree returns /root with dir1 (100 bytes in one file), dir1/sub (empty)
// and two files directly in the root.
func buildTree(t *testing.T) (*pathtree.PathTree, *rollup.Result) {
	t.Helper()
	tree := pathtree.New("/root")
	tree.AddFiles(nil, []entry.FileEntry{file("file1", 200), file("file2", 50)})
	tree.AddFiles([]string{"dir1"}, []entry.FileEntry{file("inner", 100)})
	tree.AddFiles([]string{"dir1", "sub"}, nil)

	res, err := rollup.NewBuilder().Build(context.Background(), tree)
	if err != nil {
		t.Fatalf("build rollups: %v", err)
	}
	return tree, res
}

func TestWriterWritesTree(t *testing.T) {
	database := openMemory(t)
	tree, res := buildTree(t)

	var calls int
	w := NewWriter(database, 2, false)
	w.SetProgressFunc(func(written, total int64) {
		calls++
		if total != 6 {
			t.Errorf("unexpected total %d", total)
		}
	})
	if err := w.WriteTree(context.Background(), tree, res); err != nil {
		t.Fatalf("write tree: %v", err)
	}
	if w.Written() != 6 {
		t.Fatalf("expected 6 rows written, got %d", w.Written())
	}
	if calls < 2 {
		t.Fatalf("expected several flushes, got %d", calls)
	}

	var dirs, entries, rollups int
	database.QueryRow(`SELECT COUNT(*) FROM dirs`).Scan(&dirs)
	database.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&entries)
	database.QueryRow(`SELECT COUNT(*) FROM rollups`).Scan(&rollups)
	if dirs != 3 || entries != 3 || rollups != 3 {
		t.Fatalf("unexpected counts dirs=%d entries=%d rollups=%d", dirs, entries, rollups)
	}

	var parentID, depth int64
	if err := database.QueryRow(`SELECT parent_id, depth FROM dirs WHERE path = ?`, filepath.Join("/root", "dir1", "sub")).Scan(&parentID, &depth); err != nil {
		t.Fatalf("query sub: %v", err)
	}
	var dir1ID int64
	database.QueryRow(`SELECT id FROM dirs WHERE path = ?`, filepath.Join("/root", "dir1")).Scan(&dir1ID)
	if parentID != dir1ID || depth != 2 {
		t.Fatalf("sub has parent=%d depth=%d, want parent=%d depth=2", parentID, depth, dir1ID)
	}
}

func TestWriterErrorsAndMeta(t *testing.T) {
	database := openMemory(t)
	w := NewWriter(database, 0, false)

	errs := make([]entry.ScanError, maxErrorsSampled+5)
	for i := range errs {
		errs[i] = entry.ScanError{Path: "/bad", Op: "readdir", Message: "permission denied"}
	}
	if err := w.WriteErrors(errs); err != nil {
		t.Fatalf("write errors: %v", err)
	}

	start := time.Unix(1700000000, 0)
	meta := entry.ScanMeta{
		ScanID:    "abc",
		RootPath:  "/root",
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		TotalSize: 350,
		FileCount: 3,
		DirCount:  3,
	}
	if err := w.WriteScanMeta(meta); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	r := NewReader(database)
	got, err := r.ScanMeta()
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if got.ScanID != "abc" || got.TotalSize != 350 || !got.EndTime.Equal(meta.EndTime) {
		t.Fatalf("unexpected meta %+v", got)
	}

	sampled, err := r.Errors(maxErrorsSampled * 2)
	if err != nil {
		t.Fatalf("read errors: %v", err)
	}
	if len(sampled) != maxErrorsSampled {
		t.Fatalf("expected %d sampled errors, got %d", maxErrorsSampled, len(sampled))
	}
}

func TestWriterHonorsCancellation(t *testing.T) {
	database := openMemory(t)
	tree, res := buildTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWriter(database, 10, false).WriteTree(ctx, tree, res); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
