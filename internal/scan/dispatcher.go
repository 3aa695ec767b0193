package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/michaelscutari/dirscan/internal/entry"
)

// ctxCheckInterval is how many files a stat worker handles between
// cancellation checks and progress flushes.
const ctxCheckInterval = 64

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// StatItem is one file to measure. File points into the owning directory's
// Files slice, so results are written in place.
type StatItem struct {
	Dir  string
	File *entry.FileEntry
}

// Path returns the full path of the file.
func (it StatItem) Path() string {
	return filepath.Join(it.Dir, it.File.Name)
}

// ProgressFunc receives the number of files measured so far and the total.
// Calls are serialized and done strictly increases between calls.
type ProgressFunc func(done, total int64)

type statJob struct {
	ctx     context.Context
	items   []StatItem
	tracker *progressTracker
	fail    context.CancelCauseFunc
	done    func()
}

// Dispatcher measures file sizes on a fixed pool of stat workers.
//
// Files are split into batches of batchSize; each batch is handed to one
// worker, which owns the entries of that batch until it finishes. At most
// one batch per worker is in flight, so a caller submitting a large scan
// blocks instead of queueing every batch up front.
type Dispatcher struct {
	workers   int
	batchSize int
	samples   int
	verbose   bool
	stat      func(name string) (fs.FileInfo, error)

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	jobs      chan statJob
	sem       *semaphore.Weighted
	workersWg sync.WaitGroup

	batches atomic.Int64
}

// NewDispatcher creates a dispatcher. The pool is started on first use.
func NewDispatcher(workers, batchSize int) *Dispatcher {
	if workers < 1 {
		workers = defaultStatWorkers()
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		workers:   workers,
		batchSize: batchSize,
		samples:   DefaultProgressSamples,
		stat:      os.Lstat,
		jobs:      make(chan statJob),
		sem:       semaphore.NewWeighted(int64(workers)),
	}
}

// WithProgressSamples sets the maximum number of progress callbacks per
// Dispatch, not counting the final one.
func (d *Dispatcher) WithProgressSamples(n int) *Dispatcher {
	if n > 0 {
		d.samples = n
	}
	return d
}

// WithVerbose toggles debug output.
func (d *Dispatcher) WithVerbose(v bool) *Dispatcher {
	d.verbose = v
	return d
}

// Batches returns the number of batches dispatched so far.
func (d *Dispatcher) Batches() int64 {
	return d.batches.Load()
}

// Dispatch measures every item and returns once all submitted batches are
// done. Files that vanished or cannot be stat'ed for lack of permission are
// marked unreadable. Any other stat error cancels the remaining batches and
// is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, items []StatItem, progress ProgressFunc) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.startOnce.Do(d.start)

	total := int64(len(items))
	tracker := newProgressTracker(total, d.samples, progress)
	if total == 0 {
		tracker.finish()
		return nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	debugf(d.verbose, "[STAT] DISPATCH files=%d batchSize=%d workers=%d", total, d.batchSize, d.workers)

	var wg sync.WaitGroup
	for start := 0; start < len(items); start += d.batchSize {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			break
		}
		end := min(start+d.batchSize, len(items))
		wg.Add(1)
		d.batches.Add(1)
		d.jobs <- statJob{
			ctx:     ctx,
			items:   items[start:end],
			tracker: tracker,
			fail:    cancel,
			done: func() {
				d.sem.Release(1)
				wg.Done()
			},
		}
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return err
	}
	return nil
}

// Close stops the worker pool after in-flight dispatches finish.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.workersWg.Wait()
}

func (d *Dispatcher) start() {
	debugf(d.verbose, "[STAT] START workers=%d", d.workers)
	for i := 0; i < d.workers; i++ {
		d.workersWg.Add(1)
		go d.worker(i)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.workersWg.Done()
	for job := range d.jobs {
		d.runBatch(id, job)
		job.done()
	}
}

func (d *Dispatcher) runBatch(id int, job statJob) {
	var pending int64
	for i, item := range job.items {
		if i%ctxCheckInterval == 0 && job.ctx.Err() != nil {
			return
		}

		path := item.Path()
		info, err := d.stat(path)
		switch {
		case err == nil:
			item.File.SetSize(info.Size())
		case isSkippable(err):
			debugf(d.verbose, "[STAT] W%d UNREADABLE path=%s err=%v", id, path, err)
			item.File.MarkUnreadable()
		default:
			debugf(d.verbose, "[STAT] W%d FAILED path=%s err=%v", id, path, err)
			job.fail(fmt.Errorf("failed to stat %s: %w", path, err))
			return
		}

		pending++
		if pending == ctxCheckInterval {
			job.tracker.add(pending)
			pending = 0
		}
	}
	job.tracker.add(pending)
}

// progressTracker turns per-batch increments into sampled, ordered
// progress callbacks.
type progressTracker struct {
	mu     sync.Mutex
	fn     ProgressFunc
	done   int64
	total  int64
	stride int64
	next   int64
}

func newProgressTracker(total int64, samples int, fn ProgressFunc) *progressTracker {
	if samples < 1 {
		samples = DefaultProgressSamples
	}
	stride := (total + int64(samples) - 1) / int64(samples)
	if stride < 1 {
		stride = 1
	}
	return &progressTracker{fn: fn, total: total, stride: stride, next: stride}
}

func (p *progressTracker) add(n int64) {
	if p.fn == nil || n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += n
	if p.done < p.next && p.done != p.total {
		return
	}
	for p.next <= p.done {
		p.next += p.stride
	}
	p.fn(p.done, p.total)
}

// finish reports an empty dispatch.
func (p *progressTracker) finish() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(p.done, p.total)
}
