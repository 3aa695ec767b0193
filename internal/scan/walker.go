package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/michaelscutari/dirscan/internal/entry"
	"github.com/michaelscutari/dirscan/internal/pathutil"
)

const (
	// readDirBatch bounds memory when listing directories with millions of entries.
	readDirBatch = 1000

	// maxSampledErrors caps how many skipped errors are kept for diagnostics.
	maxSampledErrors = 1000
)

// ErrNotDirectory is returned when the scan root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// DirFunc receives a directory's segments relative to the root and the files
// directly inside it. It is called exactly once per visited directory,
// including the root and empty directories, possibly from many goroutines.
type DirFunc func(segments []string, files []entry.FileEntry)

// dirHandle is the part of *os.File a directory is listed through.
type dirHandle interface {
	ReadDir(n int) ([]fs.DirEntry, error)
	Close() error
}

func openDir(name string) (dirHandle, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// WalkResult summarizes a completed walk.
type WalkResult struct {
	Dirs    int64
	Files   int64
	Skipped int64
	Errors  []entry.ScanError
}

// Walker discovers the directory hierarchy under a root.
//
// Every directory is listed by its own goroutine. Concurrent listings are
// bounded by a semaphore of Options.Workers slots; a slot is held only while
// the directory is being read and is released before the children are
// spawned, so a parent waiting on its children never holds one. Each
// directory joins its children through an errgroup and returns only after
// the whole subtree has been visited.
//
// A Walker is single-use.
type Walker struct {
	opts  *Options
	onDir DirFunc
	sem   *semaphore.Weighted
	open  func(name string) (dirHandle, error)

	root       string
	rootDev    uint64
	hasRootDev bool
	cancel     context.CancelCauseFunc

	dirs    atomic.Int64
	files   atomic.Int64
	skipped atomic.Int64

	errMu sync.Mutex
	errs  []entry.ScanError
}

// NewWalker creates a walker that reports each directory to onDir.
func NewWalker(opts *Options, onDir DirFunc) *Walker {
	if opts == nil {
		opts = DefaultOptions()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Walker{
		opts:  opts,
		onDir: onDir,
		sem:   semaphore.NewWeighted(int64(workers)),
		open:  openDir,
	}
}

// Walk visits every directory under root. Directories that cannot be listed
// because of missing permissions, or because they vanished, are recorded and
// skipped. Any other listing error cancels the remaining work and is returned.
func (w *Walker) Walk(ctx context.Context, root string) (WalkResult, error) {
	root = pathutil.Normalize(root)
	info, err := os.Stat(root)
	if err != nil {
		return WalkResult{}, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return WalkResult{}, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	w.root = root
	w.rootDev, w.hasRootDev = deviceID(info)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	w.cancel = cancel

	debugf(w.opts.Verbose, "[WALK] START root=%s workers=%d", root, w.opts.Workers)
	err = w.walkDir(ctx, root, nil)
	if err != nil {
		// Siblings that noticed the cancellation return context.Canceled;
		// the cause carries the error that triggered it.
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
	}

	res := w.result()
	debugf(w.opts.Verbose, "[WALK] DONE dirs=%d files=%d skipped=%d err=%v", res.Dirs, res.Files, res.Skipped, err)
	return res, err
}

// Progress returns the number of directories and files discovered so far.
func (w *Walker) Progress() (dirs, files int64) {
	return w.dirs.Load(), w.files.Load()
}

func (w *Walker) result() WalkResult {
	w.errMu.Lock()
	errs := make([]entry.ScanError, len(w.errs))
	copy(errs, w.errs)
	w.errMu.Unlock()

	return WalkResult{
		Dirs:    w.dirs.Load(),
		Files:   w.files.Load(),
		Skipped: w.skipped.Load(),
		Errors:  errs,
	}
}

func (w *Walker) walkDir(ctx context.Context, dir string, segs []string) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	files, subdirs, err := w.listDirectory(ctx, dir)
	w.sem.Release(1)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isSkippable(err) {
			err = fmt.Errorf("failed to read directory %s: %w", dir, err)
			w.cancel(err)
			return err
		}
		debugf(w.opts.Verbose, "[WALK] SKIP path=%s err=%v", dir, err)
		w.recordError(dir, "readdir", err)
		w.skipped.Add(1)
		files, subdirs = nil, nil
	}

	w.dirs.Add(1)
	w.files.Add(int64(len(files)))
	w.onDir(segs, files)

	if len(subdirs) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, name := range subdirs {
		childSegs := make([]string, len(segs)+1)
		copy(childSegs, segs)
		childSegs[len(segs)] = name
		childPath := filepath.Join(dir, name)
		g.Go(func() error {
			return w.walkDir(ctx, childPath, childSegs)
		})
	}
	return g.Wait()
}

// listDirectory reads one directory in batches, splitting its entries into
// files and the names of subdirectories to descend into.
func (w *Walker) listDirectory(ctx context.Context, dirPath string) (files []entry.FileEntry, subdirs []string, err error) {
	dir, err := w.open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	for {
		entries, err := dir.ReadDir(readDirBatch)
		for _, de := range entries {
			fullPath := filepath.Join(dirPath, de.Name())
			if w.opts.ShouldExclude(fullPath) {
				continue
			}
			if de.IsDir() {
				if w.opts.Xdev && w.crossesDevice(de) {
					debugf(w.opts.Verbose, "[WALK] XDEV path=%s", fullPath)
					continue
				}
				subdirs = append(subdirs, de.Name())
				continue
			}
			files = append(files, entry.NewFileEntry(de.Name(), entry.KindFromType(de.Type())))
		}

		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}

	return files, subdirs, nil
}

func (w *Walker) crossesDevice(de fs.DirEntry) bool {
	if !w.hasRootDev {
		return false
	}
	info, err := de.Info()
	if err != nil {
		return false
	}
	dev, ok := deviceID(info)
	return ok && dev != w.rootDev
}

func (w *Walker) recordError(path, op string, err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if len(w.errs) >= maxSampledErrors {
		return
	}
	w.errs = append(w.errs, entry.ScanError{Path: path, Op: op, Message: err.Error()})
}

// isSkippable reports whether err means the entry can be left out of the
// scan instead of failing it.
func isSkippable(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist)
}
