package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathtree"
	"github.com/michaelscutari/dirscan/internal/rollup"
	"github.com/michaelscutari/dirscan/internal/timer"
)

// State is a phase of the scanner lifecycle.
type State int

const (
	StateIdle State = iota
	StateScanningDirs
	StateScannedDirs
	StateScanningFiles
	StateScannedFiles
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanningDirs:
		return "scanning-dirs"
	case StateScannedDirs:
		return "scanned-dirs"
	case StateScanningFiles:
		return "scanning-files"
	case StateScannedFiles:
		return "scanned-files"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidState is matched by every StateError.
var ErrInvalidState = errors.New("invalid scanner state")

// StateError is returned when a phase is requested in the wrong state.
type StateError struct {
	Op   string
	Have State
	Want State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: scanner is %s, must be %s", e.Op, e.Have, e.Want)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Summary describes a completed scan.
type Summary struct {
	ScanID         uuid.UUID
	Root           string
	Dirs           int64
	Files          int64
	TotalBytes     int64
	Unreadable     int64
	Skipped        int64
	StartTime      time.Time
	EndTime        time.Time
	WalkDuration   time.Duration
	StatDuration   time.Duration
	RollupDuration time.Duration
}

// Meta converts the summary into the metadata row stored with a report.
func (s *Summary) Meta(errorCount int64) entry.ScanMeta {
	return entry.ScanMeta{
		ScanID:          s.ScanID.String(),
		RootPath:        s.Root,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		TotalSize:       s.TotalBytes,
		FileCount:       s.Files,
		DirCount:        s.Dirs,
		UnreadableCount: s.Unreadable,
		ErrorCount:      errorCount,
	}
}

// Scanner drives a scan through its two phases: discovering the directory
// tree, then measuring every file and aggregating sizes per directory.
//
//	Idle -> ScanningDirs -> ScannedDirs -> ScanningFiles -> ScannedFiles
//
// Any fatal error moves the scanner to Failed, which is terminal.
type Scanner struct {
	opts           *Options
	dispatcher     *Dispatcher
	ownsDispatcher bool
	openDir        func(name string) (dirHandle, error)

	mu           sync.Mutex
	state        State
	scanID       uuid.UUID
	root         string
	startTime    time.Time
	walker       *Walker
	tree         *pathtree.PathTree
	walk         WalkResult
	walkDuration time.Duration
	rollups      *rollup.Result
	summary      *Summary
}

// NewScanner creates a scanner. When d is nil the scanner creates its own
// dispatcher and closes it once sizes are computed or a phase fails.
func NewScanner(opts *Options, d *Dispatcher) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Scanner{opts: opts, dispatcher: d, openDir: openDir}
	if d == nil {
		s.dispatcher = NewDispatcher(opts.StatWorkers, opts.BatchSize).
			WithProgressSamples(opts.ProgressSamples).
			WithVerbose(opts.Verbose)
		s.ownsDispatcher = true
	}
	return s
}

// Scan discovers the directory tree under root.
func (s *Scanner) Scan(ctx context.Context, root string) error {
	if err := s.transition("scan", StateIdle, StateScanningDirs); err != nil {
		return err
	}
	if err := s.opts.Validate(); err != nil {
		s.fail()
		return fmt.Errorf("invalid options: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		s.fail()
		return fmt.Errorf("failed to resolve root: %w", err)
	}

	tree := pathtree.New(absRoot)
	walker := NewWalker(s.opts, func(segments []string, files []entry.FileEntry) {
		tree.AddFiles(segments, files)
	})
	walker.open = s.openDir

	s.mu.Lock()
	s.scanID = uuid.New()
	s.root = tree.BasePath
	s.startTime = time.Now()
	s.walker = walker
	s.mu.Unlock()

	debugf(s.opts.Verbose, "[SCANNER] SCAN id=%s root=%s", s.scanID, tree.BasePath)

	t := timer.Start()
	res, err := walker.Walk(ctx, tree.BasePath)
	if err != nil {
		s.fail()
		return fmt.Errorf("scan %s: %w", tree.BasePath, err)
	}
	took := t.Stop()

	s.mu.Lock()
	s.tree = tree
	s.walk = res
	s.walkDuration = took
	s.state = StateScannedDirs
	s.mu.Unlock()

	debugf(s.opts.Verbose, "[SCANNER] SCANNED-DIRS dirs=%d files=%d skipped=%d took=%s", res.Dirs, res.Files, res.Skipped, took)
	return nil
}

// ComputeSizes measures every discovered file and aggregates sizes per
// directory. progress may be nil.
func (s *Scanner) ComputeSizes(ctx context.Context, progress ProgressFunc) (*Summary, error) {
	if err := s.transition("compute sizes", StateScannedDirs, StateScanningFiles); err != nil {
		return nil, err
	}

	items := collectItems(s.tree)
	debugf(s.opts.Verbose, "[SCANNER] STAT files=%d", len(items))

	t := timer.Start()
	if err := s.dispatcher.Dispatch(ctx, items, progress); err != nil {
		s.fail()
		return nil, fmt.Errorf("compute sizes: %w", err)
	}
	statDuration := t.Stop()

	t.Reset()
	res, err := rollup.NewBuilder().Build(ctx, s.tree)
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("build rollups: %w", err)
	}
	rollupDuration := t.Stop()

	root := res.Root()
	s.mu.Lock()
	summary := &Summary{
		ScanID:         s.scanID,
		Root:           s.root,
		Dirs:           s.walk.Dirs,
		Files:          s.walk.Files,
		TotalBytes:     root.TotalSize,
		Unreadable:     root.UnreadableFiles,
		Skipped:        s.walk.Skipped,
		StartTime:      s.startTime,
		EndTime:        time.Now(),
		WalkDuration:   s.walkDuration,
		StatDuration:   statDuration,
		RollupDuration: rollupDuration,
	}
	s.rollups = res
	s.summary = summary
	s.state = StateScannedFiles
	s.mu.Unlock()

	if s.ownsDispatcher {
		s.dispatcher.Close()
	}

	debugf(s.opts.Verbose, "[SCANNER] SCANNED-FILES bytes=%d unreadable=%d stat=%s rollup=%s",
		summary.TotalBytes, summary.Unreadable, statDuration, rollupDuration)
	return summary, nil
}

// collectItems gathers every file in the tree for the stat phase.
func collectItems(tree *pathtree.PathTree) []StatItem {
	items := make([]StatItem, 0, tree.FileCount())
	tree.Walk(func(node *pathtree.PathNode, _ []string) {
		for i := range node.Files {
			items = append(items, StatItem{Dir: node.BasePath, File: &node.Files[i]})
		}
	})
	return items
}

func (s *Scanner) transition(op string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return &StateError{Op: op, Have: s.state, Want: from}
	}
	s.state = to
	return nil
}

func (s *Scanner) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	if s.ownsDispatcher {
		s.dispatcher.Close()
	}
}

// Close releases the scanner's own dispatcher.
func (s *Scanner) Close() {
	if s.ownsDispatcher {
		s.dispatcher.Close()
	}
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Root returns the absolute scan root once Scan has started.
func (s *Scanner) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Tree returns the discovered tree, or nil before the walk completed.
func (s *Scanner) Tree() *pathtree.PathTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Rollups returns the per-directory totals, or nil before sizes are computed.
func (s *Scanner) Rollups() *rollup.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollups
}

// Summary returns the completed scan summary, or nil.
func (s *Scanner) Summary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// WalkProgress returns the live directory and file counts of the walk.
func (s *Scanner) WalkProgress() (dirs, files int64) {
	s.mu.Lock()
	w := s.walker
	s.mu.Unlock()
	if w == nil {
		return 0, 0
	}
	return w.Progress()
}

// Errors returns the sampled recoverable errors of the walk.
func (s *Scanner) Errors() []entry.ScanError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walk.Errors
}
