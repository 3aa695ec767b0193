package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelscutari/dirscan/internal/entry"
)

type fakeInfo struct {
	name string
	size int64
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

// makeItems returns n files spread over dirs directories.
func makeItems(n, dirs int) ([]StatItem, []entry.FileEntry) {
	files := make([]entry.FileEntry, n)
	items := make([]StatItem, n)
	for i := range files {
		files[i] = entry.NewFileEntry(fmt.Sprintf("f%05d", i), entry.KindFile)
		items[i] = StatItem{Dir: fmt.Sprintf("/data/d%03d", i%dirs), File: &files[i]}
	}
	return items, files
}

func constantStat(size int64) func(string) (fs.FileInfo, error) {
	return func(name string) (fs.FileInfo, error) {
		return fakeInfo{name: name, size: size}, nil
	}
}

func TestDispatchBatchesAndMeasuresEveryFile(t *testing.T) {
	items, files := makeItems(10000, 100)

	d := NewDispatcher(4, 1000)
	d.stat = constantStat(7)
	defer d.Close()

	if err := d.Dispatch(context.Background(), items, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if d.Batches() != 10 {
		t.Fatalf("expected 10 batches, got %d", d.Batches())
	}
	for i := range files {
		size, ok := files[i].Size()
		if !ok || size != 7 {
			t.Fatalf("file %d not measured: size=%d ok=%v", i, size, ok)
		}
	}
}

func TestDispatchPartialBatch(t *testing.T) {
	items, _ := makeItems(2500, 10)

	d := NewDispatcher(2, 1000)
	d.stat = constantStat(1)
	defer d.Close()

	if err := d.Dispatch(context.Background(), items, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if d.Batches() != 3 {
		t.Fatalf("expected 3 batches, got %d", d.Batches())
	}
}

func TestDispatchProgressIsOrderedAndComplete(t *testing.T) {
	items, _ := makeItems(5000, 50)

	d := NewDispatcher(8, 100).WithProgressSamples(20)
	d.stat = constantStat(1)
	defer d.Close()

	var (
		mu    sync.Mutex
		calls []int64
	)
	err := d.Dispatch(context.Background(), items, func(done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if total != 5000 {
			t.Errorf("unexpected total %d", total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(calls) == 0 {
		t.Fatalf("no progress reported")
	}
	for i := 1; i < len(calls); i++ {
		if calls[i] <= calls[i-1] {
			t.Fatalf("progress not increasing: %v", calls)
		}
	}
	if calls[len(calls)-1] != 5000 {
		t.Fatalf("final progress = %d, want 5000", calls[len(calls)-1])
	}
	if len(calls) > 21 {
		t.Fatalf("expected at most 21 progress calls, got %d", len(calls))
	}
}

func TestDispatchEmpty(t *testing.T) {
	d := NewDispatcher(1, 10)
	defer d.Close()

	var got []int64
	if err := d.Dispatch(context.Background(), nil, func(done, total int64) {
		got = append(got, done, total)
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 0 {
		t.Fatalf("expected a single 0/0 report, got %v", got)
	}
	if d.Batches() != 0 {
		t.Fatalf("expected no batches, got %d", d.Batches())
	}
}

func TestDispatchMarksUnreadable(t *testing.T) {
	items, files := makeItems(30, 3)

	d := NewDispatcher(2, 4)
	d.stat = func(name string) (fs.FileInfo, error) {
		switch {
		case strings.HasSuffix(name, "f00001"):
			return nil, &fs.PathError{Op: "lstat", Path: name, Err: fs.ErrNotExist}
		case strings.HasSuffix(name, "f00002"):
			return nil, &fs.PathError{Op: "lstat", Path: name, Err: fs.ErrPermission}
		}
		return fakeInfo{name: name, size: 3}, nil
	}
	defer d.Close()

	if err := d.Dispatch(context.Background(), items, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if files[1].State() != entry.SizeUnreadable || files[2].State() != entry.SizeUnreadable {
		t.Fatalf("expected unreadable entries, got %s and %s", files[1].State(), files[2].State())
	}
	if size, ok := files[0].Size(); !ok || size != 3 {
		t.Fatalf("expected measured entry, got %d %v", size, ok)
	}
}

func TestDispatchFatalStatError(t *testing.T) {
	items, _ := makeItems(5000, 10)
	boom := errors.New("input/output error")

	d := NewDispatcher(4, 100)
	d.stat = func(name string) (fs.FileInfo, error) {
		if strings.HasSuffix(name, "f00123") {
			return nil, &fs.PathError{Op: "lstat", Path: name, Err: boom}
		}
		return fakeInfo{name: name, size: 1}, nil
	}
	defer d.Close()

	err := d.Dispatch(context.Background(), items, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected stat failure, got %v", err)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	items, _ := makeItems(10, 1)

	d := NewDispatcher(2, 5)
	d.stat = constantStat(1)
	if err := d.Dispatch(context.Background(), items, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	d.Close()
	d.Close()

	if err := d.Dispatch(context.Background(), items, nil); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatchCloseWithoutUse(t *testing.T) {
	d := NewDispatcher(3, 5)
	d.Close()
	if err := d.Dispatch(context.Background(), nil, nil); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatchCapsBatchesInFlight(t *testing.T) {
	const workers = 3
	first, _ := makeItems(20000, 100)
	second, _ := makeItems(20000, 100)

	var inFlight, peak atomic.Int64
	gate := make(chan struct{})

	d := NewDispatcher(workers, 100)
	d.stat = func(name string) (fs.FileInfo, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		inFlight.Add(-1)
		return fakeInfo{name: name, size: 1}, nil
	}
	defer d.Close()
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	defer release()

	errs := make(chan error, 2)
	for _, items := range [][]StatItem{first, second} {
		items := items
		go func() {
			errs <- d.Dispatch(context.Background(), items, nil)
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for inFlight.Load() < workers {
		if time.Now().After(deadline) {
			t.Fatalf("workers never started: in flight=%d", inFlight.Load())
		}
		time.Sleep(time.Millisecond)
	}
	// Every worker is blocked; submitters must be waiting too.
	time.Sleep(20 * time.Millisecond)
	if got := d.Batches(); got != workers {
		t.Fatalf("expected %d batches handed out while workers are busy, got %d", workers, got)
	}

	release()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	if p := peak.Load(); p > workers {
		t.Fatalf("peak concurrent stats = %d, want at most %d", p, workers)
	}
	if d.Batches() != 400 {
		t.Fatalf("expected 400 batches, got %d", d.Batches())
	}
}

func TestDispatchPreCancelled(t *testing.T) {
	items, files := makeItems(1000, 10)

	d := NewDispatcher(2, 100)
	d.stat = constantStat(1)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Dispatch(ctx, items, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for i := range files {
		if files[i].State() == entry.SizeMeasured {
			t.Fatalf("file %d measured after cancellation", i)
		}
	}
}
