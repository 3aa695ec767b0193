package entry

import (
	"io/fs"
	"time"
)

// Kind represents the type of filesystem entry.
type Kind uint8

const (
	KindFile    Kind = 0
	KindDir     Kind = 1
	KindSymlink Kind = 2
	KindOther   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// KindFromMode derives the Kind from a full fs.FileMode.
func KindFromMode(mode fs.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindOther
	}
}

// KindFromType derives the Kind from the type bits returned by fs.DirEntry.Type.
func KindFromType(typ fs.FileMode) Kind {
	return KindFromMode(typ.Type())
}

// SizeState tells whether a file's size has been observed.
type SizeState uint8

const (
	SizeUnmeasured SizeState = iota
	SizeMeasured
	SizeUnreadable
)

func (s SizeState) String() string {
	switch s {
	case SizeMeasured:
		return "measured"
	case SizeUnreadable:
		return "unreadable"
	default:
		return "unmeasured"
	}
}

// FileEntry is a file that belongs directly to a directory node.
// The full path is the owning directory's path joined with Name.
type FileEntry struct {
	Name  string
	Kind  Kind
	state SizeState
	size  int64
}

// NewFileEntry returns an unmeasured entry.
func NewFileEntry(name string, kind Kind) FileEntry {
	return FileEntry{Name: name, Kind: kind}
}

// State returns the size state of the entry.
func (f *FileEntry) State() SizeState {
	return f.state
}

// Size returns the measured size. ok is false unless the entry was measured.
func (f *FileEntry) Size() (size int64, ok bool) {
	if f.state != SizeMeasured {
		return 0, false
	}
	return f.size, true
}

// SetSize records the size. It only succeeds once, from the unmeasured state.
func (f *FileEntry) SetSize(n int64) bool {
	if f.state != SizeUnmeasured {
		return false
	}
	f.size = n
	f.state = SizeMeasured
	return true
}

// MarkUnreadable records that the size could not be observed.
func (f *FileEntry) MarkUnreadable() bool {
	if f.state != SizeUnmeasured {
		return false
	}
	f.state = SizeUnreadable
	return true
}

// ScanError represents a recoverable error encountered during scanning.
type ScanError struct {
	Path    string
	Op      string
	Message string
}

// Rollup represents aggregated statistics for a directory.
type Rollup struct {
	Path            string
	TotalSize       int64
	TotalFiles      int64
	TotalDirs       int64 // Descendant directories, excluding the directory itself
	UnreadableFiles int64
}

// ScanMeta holds metadata about a scan.
type ScanMeta struct {
	ScanID          string
	RootPath        string
	StartTime       time.Time
	EndTime         time.Time
	TotalSize       int64
	FileCount       int64
	DirCount        int64
	UnreadableCount int64
	ErrorCount      int64
}

// Listing is one row of a directory listing, a child file or directory with
// its aggregated totals.
type Listing struct {
	Path       string
	Name       string
	Kind       Kind
	Size       int64
	State      SizeState
	TotalSize  int64
	TotalFiles int64
	TotalDirs  int64
}
