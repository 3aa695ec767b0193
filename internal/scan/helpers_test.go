package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// createFile writes a file of the given size, creating parent directories.
func createFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

// dirOpener lists real directories, except that opening a path in fail
// returns the mapped error. It counts handles that are still open.
type dirOpener struct {
	fail  map[string]error
	open  atomic.Int64
	calls atomic.Int64
}

func (o *dirOpener) openDir(name string) (dirHandle, error) {
	o.calls.Add(1)
	if err, ok := o.fail[name]; ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	o.open.Add(1)
	return &countedDir{File: f, open: &o.open}, nil
}

type countedDir struct {
	*os.File
	open *atomic.Int64
}

func (d *countedDir) Close() error {
	d.open.Add(-1)
	return d.File.Close()
}
