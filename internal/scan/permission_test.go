//go:build unix

package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScanSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	createFile(t, filepath.Join(root, "ok", "a.txt"), 10)
	locked := filepath.Join(root, "locked")
	createFile(t, filepath.Join(locked, "hidden.txt"), 1000)
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	s := NewScanner(DefaultOptions(), nil)
	defer s.Close()

	if err := s.Scan(context.Background(), root); err != nil {
		t.Fatalf("scan: %v", err)
	}
	summary, err := s.ComputeSizes(context.Background(), nil)
	if err != nil {
		t.Fatalf("compute sizes: %v", err)
	}

	if summary.Dirs != 3 || summary.Files != 1 || summary.TotalBytes != 10 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Skipped != 1 {
		t.Fatalf("expected 1 skipped directory, got %d", summary.Skipped)
	}
	errs := s.Errors()
	if len(errs) != 1 || errs[0].Path != locked {
		t.Fatalf("unexpected errors %+v", errs)
	}
}
