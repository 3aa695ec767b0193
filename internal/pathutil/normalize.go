package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize returns a canonical filesystem path string.
// It removes trailing slashes, collapses "." and "..", and
// preserves relative paths when provided.
func Normalize(path string) string {
	if path == "" {
		return path
	}
	return filepath.Clean(path)
}

// Segments splits path into its components relative to root.
// It returns nil when path is root and ok=false when path is outside root.
func Segments(root, path string) (segs []string, ok bool) {
	rel, err := filepath.Rel(Normalize(root), Normalize(path))
	if err != nil {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	return strings.Split(rel, string(filepath.Separator)), true
}
