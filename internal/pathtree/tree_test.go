package pathtree

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/michaelscutari/dirscan/internal/entry"
)

func TestGetOrCreateChildIsIdempotent(t *testing.T) {
	tree := New("/root")

	first := tree.GetOrCreateChild([]string{"a", "b", "c"})
	second := tree.GetOrCreateChild([]string{"a", "b", "c"})
	if first != second {
		t.Fatalf("expected the same node for identical segments")
	}
	if first.BasePath != filepath.Join("/root", "a", "b", "c") {
		t.Fatalf("unexpected base path %q", first.BasePath)
	}

	// Intermediate nodes are created too, and resolve to the same objects.
	a := tree.GetOrCreateChild([]string{"a"})
	b := tree.GetOrCreateChild([]string{"a", "b"})
	if a.Children["b"] != b || b.Children["c"] != first {
		t.Fatalf("intermediate chain not linked")
	}
	if a.BasePath != filepath.Join("/root", "a") {
		t.Fatalf("unexpected intermediate path %q", a.BasePath)
	}
}

func TestGetOrCreateChildRoot(t *testing.T) {
	tree := New("/root/")

	if tree.GetOrCreateChild(nil) != tree.Root() {
		t.Fatalf("empty segments should return root")
	}
	if tree.GetOrCreateChild([]string{"."}) != tree.Root() {
		t.Fatalf("segments cleaning to root should return root")
	}
	if tree.GetOrCreateChild([]string{"..", "other"}) != nil {
		t.Fatalf("segments escaping root should return nil")
	}
	if tree.Len() != 1 {
		t.Fatalf("expected only the root node, got %d", tree.Len())
	}
}

func TestGetOrCreateChildCollidingSpellings(t *testing.T) {
	tree := New("/root")

	direct := tree.GetOrCreateChild([]string{"a", "b"})
	dotted := tree.GetOrCreateChild([]string{"a", ".", "b"})
	if direct != dotted {
		t.Fatalf("colliding paths produced distinct nodes")
	}
	if len(tree.Root().Children["a"].Children) != 1 {
		t.Fatalf("sibling duplicate created: %v", tree.Root().Children["a"].Children)
	}
}

func TestConcurrentDiscoveryCreatesOneNodePerPath(t *testing.T) {
	tree := New("/root")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for d := 0; d < 10; d++ {
				segs := []string{"shared", fmt.Sprintf("d%d", d)}
				tree.AddFiles(segs, []entry.FileEntry{entry.NewFileEntry(fmt.Sprintf("f%d", i), entry.KindFile)})
			}
		}(i)
	}
	wg.Wait()

	shared := tree.Root().Children["shared"]
	if len(shared.Children) != 10 {
		t.Fatalf("expected 10 children, got %d", len(shared.Children))
	}
	for name, child := range shared.Children {
		if len(child.Files) != 32 {
			t.Fatalf("%s: expected 32 files, got %d", name, len(child.Files))
		}
	}
	if tree.FileCount() != 320 {
		t.Fatalf("expected 320 files, got %d", tree.FileCount())
	}
	// root + shared + 10
	if tree.Len() != 12 {
		t.Fatalf("expected 12 nodes, got %d", tree.Len())
	}
}

func TestWalkIsPreOrderAndVisitsEachNodeOnce(t *testing.T) {
	tree := New("/root")
	tree.GetOrCreateChild([]string{"b", "y"})
	tree.GetOrCreateChild([]string{"a", "x", "deep"})
	tree.GetOrCreateChild([]string{"a"})

	var visited []string
	tree.Walk(func(node *PathNode, pathSoFar []string) {
		if node.BasePath != filepath.Join(append([]string{"/root"}, pathSoFar...)...) {
			t.Errorf("pathSoFar %q does not match %q", pathSoFar, node.BasePath)
		}
		visited = append(visited, strings.Join(pathSoFar, "/"))
	})

	want := []string{"", "a", "a/x", "a/x/deep", "b", "b/y"}
	if !slices.Equal(visited, want) {
		t.Fatalf("walk order = %q, want %q", visited, want)
	}
}

func TestWalkAllowsSizeMutation(t *testing.T) {
	tree := New("/root")
	tree.AddFiles(nil, []entry.FileEntry{
		entry.NewFileEntry("one", entry.KindFile),
		entry.NewFileEntry("two", entry.KindFile),
	})

	tree.Walk(func(node *PathNode, _ []string) {
		for i := range node.Files {
			node.Files[i].SetSize(int64(10 * (i + 1)))
		}
	})

	var total int64
	tree.Walk(func(node *PathNode, _ []string) {
		for i := range node.Files {
			size, _ := node.Files[i].Size()
			total += size
		}
	})
	if total != 30 {
		t.Fatalf("expected 30, got %d", total)
	}
}

func TestLookupAndFilePath(t *testing.T) {
	tree := New("/root")
	node := tree.AddFiles([]string{"dir"}, []entry.FileEntry{entry.NewFileEntry("f.txt", entry.KindFile)})

	got, ok := tree.Lookup(filepath.Join("/root", "dir"))
	if !ok || got != node {
		t.Fatalf("lookup failed")
	}
	if node.FilePath(0) != filepath.Join("/root", "dir", "f.txt") {
		t.Fatalf("unexpected file path %q", node.FilePath(0))
	}
	if node.Name() != "dir" {
		t.Fatalf("unexpected name %q", node.Name())
	}
}
