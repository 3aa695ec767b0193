package rollup

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathtree"
)

// Builder computes directory rollups bottom-up.
type Builder struct {
	cache    map[*pathtree.PathNode]*entry.Rollup
	progress ProgressFunc
}

// ProgressFunc reports rollup progress.
type ProgressFunc func(done, total int64, depth, maxDepth int)

// NewBuilder creates a new rollup builder.
func NewBuilder() *Builder {
	return &Builder{
		cache: make(map[*pathtree.PathNode]*entry.Rollup),
	}
}

// SetProgressFunc sets a callback for rollup progress updates.
func (b *Builder) SetProgressFunc(f ProgressFunc) {
	b.progress = f
}

// Build computes rollups for all directories, processing from deepest to shallowest.
// File sizes must already be filled in.
func (b *Builder) Build(ctx context.Context, tree *pathtree.PathTree) (*Result, error) {
	// Group directories by depth in one pass.
	var levels [][]*pathtree.PathNode
	tree.Walk(func(node *pathtree.PathNode, pathSoFar []string) {
		depth := len(pathSoFar)
		for len(levels) <= depth {
			levels = append(levels, nil)
		}
		levels[depth] = append(levels[depth], node)
	})

	maxDepth := len(levels) - 1
	var totalDirs int64
	for _, level := range levels {
		totalDirs += int64(len(level))
	}

	res := &Result{byPath: make(map[string]*entry.Rollup, totalDirs)}

	var processedDirs int64
	lastUpdate := time.Now()
	for depth := maxDepth; depth >= 0; depth-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, node := range levels[depth] {
			rollup := b.computeRollup(node)
			b.cache[node] = rollup
			res.byPath[rollup.Path] = rollup

			processedDirs++
			if b.progress != nil {
				if processedDirs == totalDirs || processedDirs%2048 == 0 {
					now := time.Now()
					if processedDirs == totalDirs || now.Sub(lastUpdate) > 200*time.Millisecond {
						b.progress(processedDirs, totalDirs, depth, maxDepth)
						lastUpdate = now
					}
				}
			}
		}
	}

	res.root = b.cache[tree.Root()]
	return res, nil
}

func (b *Builder) computeRollup(node *pathtree.PathNode) *entry.Rollup {
	rollup := &entry.Rollup{Path: node.BasePath}

	// Direct child files
	for i := range node.Files {
		rollup.TotalFiles++
		if size, ok := node.Files[i].Size(); ok {
			rollup.TotalSize += size
		} else {
			rollup.UnreadableFiles++
		}
	}

	// Deeper levels are built first, so every child is cached.
	for _, child := range node.Children {
		childRollup := b.cache[child]
		rollup.TotalSize += childRollup.TotalSize
		rollup.TotalFiles += childRollup.TotalFiles
		rollup.UnreadableFiles += childRollup.UnreadableFiles
		rollup.TotalDirs += childRollup.TotalDirs + 1 // +1 for the child dir itself
	}

	return rollup
}

// Result holds the rollup of every directory in a tree.
type Result struct {
	byPath map[string]*entry.Rollup
	root   *entry.Rollup
}

// Get returns the rollup for a directory path.
func (r *Result) Get(path string) (*entry.Rollup, bool) {
	rollup, ok := r.byPath[path]
	return rollup, ok
}

// Root returns the rollup of the scan root.
func (r *Result) Root() entry.Rollup {
	if r.root == nil {
		return entry.Rollup{}
	}
	return *r.root
}

// Len returns the number of directories with a rollup.
func (r *Result) Len() int {
	return len(r.byPath)
}

// Largest returns up to n directories below the root, largest first.
// Ties are broken by path.
func (r *Result) Largest(n int) []entry.Rollup {
	all := make([]entry.Rollup, 0, len(r.byPath))
	for _, rollup := range r.byPath {
		if rollup == r.root {
			continue
		}
		all = append(all, *rollup)
	}
	slices.SortFunc(all, func(a, b entry.Rollup) int {
		if c := cmp.Compare(b.TotalSize, a.TotalSize); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}
