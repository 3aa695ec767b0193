// Package report serves listings of a completed in-memory scan.
package report

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathtree"
	"github.com/michaelscutari/dirscan/internal/rollup"
	"github.com/michaelscutari/dirscan/internal/scan"
)

// TreeSource answers listing queries from a scanner's tree and rollups, so
// a scan can be browsed without writing a report first.
type TreeSource struct {
	tree    *pathtree.PathTree
	rollups *rollup.Result
	meta    entry.ScanMeta
}

// NewTreeSource wraps a scanner whose sizes have been computed.
func NewTreeSource(s *scan.Scanner) (*TreeSource, error) {
	summary := s.Summary()
	if summary == nil {
		return nil, &scan.StateError{Op: "browse", Have: s.State(), Want: scan.StateScannedFiles}
	}
	return &TreeSource{
		tree:    s.Tree(),
		rollups: s.Rollups(),
		meta:    summary.Meta(int64(len(s.Errors()))),
	}, nil
}

// ScanMeta returns the scan metadata.
func (t *TreeSource) ScanMeta() (*entry.ScanMeta, error) {
	meta := t.meta
	return &meta, nil
}

// GetRollup returns the totals of a directory, or nil when it is unknown.
func (t *TreeSource) GetRollup(path string) (*entry.Rollup, error) {
	r, ok := t.rollups.Get(filepath.Clean(path))
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

// LoadChildren lists the files and directories directly inside path.
// sortBy is one of size, name or files; limit <= 0 means no limit.
func (t *TreeSource) LoadChildren(path, sortBy string, limit int) ([]entry.Listing, error) {
	node, ok := t.tree.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("directory not found: %s", path)
	}

	listings := make([]entry.Listing, 0, len(node.Children)+len(node.Files))
	for _, child := range node.Children {
		l := entry.Listing{
			Path:  child.BasePath,
			Name:  child.Name(),
			Kind:  entry.KindDir,
			State: entry.SizeMeasured,
		}
		if r, ok := t.rollups.Get(child.BasePath); ok {
			l.TotalSize = r.TotalSize
			l.TotalFiles = r.TotalFiles
			l.TotalDirs = r.TotalDirs
		}
		listings = append(listings, l)
	}
	for i := range node.Files {
		f := &node.Files[i]
		size, _ := f.Size()
		listings = append(listings, entry.Listing{
			Path:       node.FilePath(i),
			Name:       f.Name,
			Kind:       f.Kind,
			Size:       size,
			State:      f.State(),
			TotalSize:  size,
			TotalFiles: 1,
		})
	}

	slices.SortFunc(listings, compareBy(sortBy))
	if limit > 0 && len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

func compareBy(sortBy string) func(a, b entry.Listing) int {
	byName := func(a, b entry.Listing) int { return cmp.Compare(a.Name, b.Name) }
	switch sortBy {
	case "name":
		return byName
	case "files":
		return func(a, b entry.Listing) int {
			if c := cmp.Compare(b.TotalFiles, a.TotalFiles); c != 0 {
				return c
			}
			return byName(a, b)
		}
	default:
		return func(a, b entry.Listing) int {
			if c := cmp.Compare(b.TotalSize, a.TotalSize); c != 0 {
				return c
			}
			return byName(a, b)
		}
	}
}
