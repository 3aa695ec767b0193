package scan

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/michaelscutari/dirscan/internal/entry"
)

type dirRecorder struct {
	mu    sync.Mutex
	seen  map[string]int
	files map[string][]string
}

func newDirRecorder() *dirRecorder {
	return &dirRecorder{seen: make(map[string]int), files: make(map[string][]string)}
}

func (r *dirRecorder) onDir(segments []string, files []entry.FileEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.Join(segments, "/")
	r.seen[key]++
	for _, f := range files {
		r.files[key] = append(r.files[key], f.Name)
	}
}

func TestWalkVisitsEveryDirectoryOnce(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "top.txt"), 50)
	createFile(t, filepath.Join(root, "a", "one.txt"), 100)
	createFile(t, filepath.Join(root, "a", "deep", "two.txt"), 1)
	mkdir(t, filepath.Join(root, "b"))

	rec := newDirRecorder()
	w := NewWalker(DefaultOptions().WithWorkers(2), rec.onDir)
	res, err := w.Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if res.Dirs != 4 || res.Files != 3 || res.Skipped != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, key := range []string{"", "a", "a/deep", "b"} {
		if rec.seen[key] != 1 {
			t.Fatalf("directory %q reported %d times", key, rec.seen[key])
		}
	}
	if len(rec.seen) != 4 {
		t.Fatalf("unexpected directories %v", rec.seen)
	}
	if !slices.Equal(rec.files["a"], []string{"one.txt"}) {
		t.Fatalf("unexpected files in a: %v", rec.files["a"])
	}

	dirs, files := w.Progress()
	if dirs != 4 || files != 3 {
		t.Fatalf("progress = %d dirs %d files", dirs, files)
	}
}

func TestWalkExcludePatterns(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "keep", "a.txt"), 1)
	createFile(t, filepath.Join(root, "node_modules", "pkg", "b.txt"), 1)
	createFile(t, filepath.Join(root, "skip.tmp"), 1)

	opts := DefaultOptions()
	if err := opts.AddExcludePattern(`/node_modules(/|$)`); err != nil {
		t.Fatal(err)
	}
	if err := opts.AddExcludePattern(`\.tmp$`); err != nil {
		t.Fatal(err)
	}

	rec := newDirRecorder()
	res, err := NewWalker(opts, rec.onDir).Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if res.Dirs != 2 || res.Files != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := rec.seen["node_modules"]; ok {
		t.Fatalf("excluded directory was visited")
	}
}

func TestWalkRecordsSymlinksAsFiles(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "real", "f.txt"), 10)
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	var mu sync.Mutex
	kinds := make(map[string]entry.Kind)
	w := NewWalker(DefaultOptions(), func(_ []string, files []entry.FileEntry) {
		mu.Lock()
		defer mu.Unlock()
		for _, f := range files {
			kinds[f.Name] = f.Kind
		}
	})
	res, err := w.Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if res.Dirs != 2 {
		t.Fatalf("symlinked directory was followed: %+v", res)
	}
	if kinds["link"] != entry.KindSymlink {
		t.Fatalf("expected link to be a symlink entry, got %s", kinds["link"])
	}
}

func TestWalkRootErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	createFile(t, file, 1)

	w := NewWalker(DefaultOptions(), func([]string, []entry.FileEntry) {})
	if _, err := w.Walk(context.Background(), file); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}

	w = NewWalker(DefaultOptions(), func([]string, []entry.FileEntry) {})
	if _, err := w.Walk(context.Background(), filepath.Join(root, "missing")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestWalkCancelled(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		mkdir(t, filepath.Join(root, "d", string(rune('a'+i))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWalker(DefaultOptions(), func([]string, []entry.FileEntry) {})
	if _, err := w.Walk(ctx, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

var errIO = errors.New("input/output error")

func TestWalkFatalListingErrorStopsAllBranches(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad")
	mkdir(t, bad)
	for i := 0; i < 16; i++ {
		createFile(t, filepath.Join(root, "ok", strconv.Itoa(i), "deep", "f.txt"), 1)
	}

	opener := &dirOpener{fail: map[string]error{bad: errIO}}
	w := NewWalker(DefaultOptions().WithWorkers(4), func([]string, []entry.FileEntry) {})
	w.open = opener.openDir

	_, err := w.Walk(context.Background(), root)
	if !errors.Is(err, errIO) {
		t.Fatalf("expected the listing error, got %v", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation hid the listing error: %v", err)
	}
	if !strings.Contains(err.Error(), bad) {
		t.Fatalf("error does not name the directory: %v", err)
	}
	if n := opener.open.Load(); n != 0 {
		t.Fatalf("%d directory handles still open after Walk returned", n)
	}
}

func TestWalkSkipsPermissionDenied(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "ok", "a.txt"), 10)
	locked := filepath.Join(root, "locked")
	createFile(t, filepath.Join(locked, "hidden.txt"), 1000)
	mkdir(t, filepath.Join(locked, "inner"))

	opener := &dirOpener{fail: map[string]error{locked: fs.ErrPermission}}
	rec := newDirRecorder()
	w := NewWalker(DefaultOptions(), rec.onDir)
	w.open = opener.openDir

	res, err := w.Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if res.Dirs != 3 || res.Files != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(rec.files["locked"]) != 0 {
		t.Fatalf("skipped directory reported files %v", rec.files["locked"])
	}
	if _, ok := rec.seen["locked/inner"]; ok {
		t.Fatalf("descended into a directory that could not be listed")
	}
	if len(res.Errors) != 1 || res.Errors[0].Path != locked || res.Errors[0].Op != "readdir" {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
}
