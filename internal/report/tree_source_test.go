package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/scan"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func scanned(t *testing.T, root string) *scan.Scanner {
	t.Helper()
	s := scan.NewScanner(scan.DefaultOptions(), nil)
	t.Cleanup(s.Close)
	if err := s.Scan(context.Background(), root); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := s.ComputeSizes(context.Background(), nil); err != nil {
		t.Fatalf("compute sizes: %v", err)
	}
	return s
}

func TestTreeSourceListings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "big.bin"), 300)
	writeFile(t, filepath.Join(root, "docs", "a.txt"), 100)
	writeFile(t, filepath.Join(root, "docs", "b.txt"), 100)
	writeFile(t, filepath.Join(root, "small.txt"), 10)

	s := scanned(t, root)
	src, err := NewTreeSource(s)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	meta, err := src.ScanMeta()
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.RootPath != s.Root() || meta.TotalSize != 510 || meta.FileCount != 4 {
		t.Fatalf("unexpected meta %+v", meta)
	}

	bySize, err := src.LoadChildren(meta.RootPath, "size", 0)
	if err != nil {
		t.Fatalf("load children: %v", err)
	}
	want := []string{"big.bin", "docs", "small.txt"}
	if len(bySize) != len(want) {
		t.Fatalf("expected %d listings, got %d", len(want), len(bySize))
	}
	for i, l := range bySize {
		if l.Name != want[i] {
			t.Fatalf("bySize[%d] = %s, want %s", i, l.Name, want[i])
		}
	}
	if bySize[1].Kind != entry.KindDir || bySize[1].TotalFiles != 2 || bySize[1].TotalSize != 200 {
		t.Fatalf("unexpected dir listing %+v", bySize[1])
	}

	byFiles, _ := src.LoadChildren(meta.RootPath, "files", 1)
	if len(byFiles) != 1 || byFiles[0].Name != "docs" {
		t.Fatalf("unexpected files order %+v", byFiles)
	}

	docs, err := src.GetRollup(filepath.Join(meta.RootPath, "docs"))
	if err != nil || docs == nil || docs.TotalSize != 200 {
		t.Fatalf("unexpected docs rollup %+v, %v", docs, err)
	}
	if missing, _ := src.GetRollup(filepath.Join(meta.RootPath, "nope")); missing != nil {
		t.Fatalf("expected nil rollup, got %+v", missing)
	}
	if _, err := src.LoadChildren(filepath.Join(meta.RootPath, "nope"), "size", 0); err == nil {
		t.Fatalf("expected error for unknown directory")
	}
}

func TestTreeSourceRequiresSizes(t *testing.T) {
	s := scan.NewScanner(nil, nil)
	defer s.Close()
	if _, err := NewTreeSource(s); !errors.Is(err, scan.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
