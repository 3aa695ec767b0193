// Package pathtree holds the in-memory directory hierarchy built by a scan.
//
// A PathTree is populated by concurrent walker goroutines (directories and
// bare file names), then sizes are filled into its FileEntry records by the
// stat dispatcher, then it is read-only. Structural mutation is serialized by
// the tree's mutex; size mutation is not, because every FileEntry is owned by
// exactly one stat batch.
package pathtree

import (
	"path/filepath"
	"slices"
	"sync"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathutil"
)

// PathNode is a directory and the files directly inside it.
type PathNode struct {
	BasePath string
	Children map[string]*PathNode
	Files    []entry.FileEntry
}

func newNode(basePath string) *PathNode {
	return &PathNode{
		BasePath: basePath,
		Children: make(map[string]*PathNode),
	}
}

// Name returns the last component of the node's path.
func (n *PathNode) Name() string {
	return filepath.Base(n.BasePath)
}

// FilePath returns the full path of the i-th file.
func (n *PathNode) FilePath(i int) string {
	return filepath.Join(n.BasePath, n.Files[i].Name)
}

// SortedChildren returns the children ordered by name.
func (n *PathNode) SortedChildren() []*PathNode {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	slices.Sort(names)

	children := make([]*PathNode, len(names))
	for i, name := range names {
		children[i] = n.Children[name]
	}
	return children
}

// PathTree is a PathNode acting as the scan root, with a memo table from full
// path to node.
type PathTree struct {
	PathNode

	mu    sync.Mutex
	memo  map[string]*PathNode
	files int
}

// New creates an empty tree rooted at root.
func New(root string) *PathTree {
	root = pathutil.Normalize(root)
	t := &PathTree{
		PathNode: *newNode(root),
		memo:     make(map[string]*PathNode),
	}
	t.memo[root] = &t.PathNode
	return t
}

// Root returns the root node.
func (t *PathTree) Root() *PathNode {
	return &t.PathNode
}

// GetOrCreateChild returns the node for the directory reached by following
// segments from the root, creating any missing nodes on the way.
// Empty segments, or segments that clean to the root, return the root.
// Segments that escape the root return nil.
func (t *PathTree) GetOrCreateChild(segments []string) *PathNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getOrCreateLocked(segments)
}

// AddFiles materializes the directory at segments and appends files to it.
func (t *PathTree) AddFiles(segments []string, files []entry.FileEntry) *PathNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.getOrCreateLocked(segments)
	if node == nil {
		return nil
	}
	node.Files = append(node.Files, files...)
	t.files += len(files)
	return node
}

func (t *PathTree) getOrCreateLocked(segments []string) *PathNode {
	fullPath := filepath.Join(append([]string{t.BasePath}, segments...)...)
	if node, ok := t.memo[fullPath]; ok {
		return node
	}

	segments, ok := pathutil.Segments(t.BasePath, fullPath)
	if !ok {
		return nil
	}

	last := &t.PathNode
	for i, seg := range segments {
		child, ok := last.Children[seg]
		if !ok {
			child = newNode(filepath.Join(append([]string{t.BasePath}, segments[:i+1]...)...))
			last.Children[seg] = child
			t.memo[child.BasePath] = child
		}
		last = child
	}

	t.memo[fullPath] = last
	return last
}

// Lookup returns a previously created node by its full path.
func (t *PathTree) Lookup(path string) (*PathNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.memo[pathutil.Normalize(path)]
	return node, ok
}

// Len returns the number of directory nodes, including the root.
func (t *PathTree) Len() int {
	n := 0
	t.Walk(func(*PathNode, []string) { n++ })
	return n
}

// FileCount returns the number of file entries added to the tree.
func (t *PathTree) FileCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.files
}

// WalkFunc is called once per node. pathSoFar holds the node's segments
// relative to the root and must not be retained.
type WalkFunc func(node *PathNode, pathSoFar []string)

// Walk visits every node exactly once, parents before children, siblings in
// name order. It must not run concurrently with AddFiles or GetOrCreateChild.
func (t *PathTree) Walk(visit WalkFunc) {
	walkNode(&t.PathNode, make([]string, 0, 16), visit)
}

func walkNode(node *PathNode, pathSoFar []string, visit WalkFunc) {
	visit(node, pathSoFar)

	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		walkNode(node.Children[name], append(pathSoFar, name), visit)
	}
}
