package scan

import (
	"errors"
	"regexp"
	"runtime"
)

// DefaultBatchSize is the number of files handed to one stat worker at a time.
// It is the only batch size the scanner uses unless overridden.
const DefaultBatchSize = 1000

// DefaultProgressSamples bounds how many times progress is reported during
// the stat phase.
const DefaultProgressSamples = 100

// Options configures the scanning behavior.
type Options struct {
	// Workers is the maximum number of concurrent directory listings.
	Workers int

	// StatWorkers is the size of the stat pool.
	StatWorkers int

	// BatchSize is the number of files per stat batch.
	BatchSize int

	// ProgressSamples is the maximum number of progress callbacks in the
	// stat phase, not counting the final one.
	ProgressSamples int

	// Xdev prevents crossing filesystem boundaries.
	Xdev bool

	// ExcludePatterns are regular expressions for paths to skip.
	ExcludePatterns []*regexp.Regexp

	// Verbose enables debug output on stderr.
	Verbose bool
}

// DefaultOptions returns sensible defaults for scanning.
func DefaultOptions() *Options {
	return &Options{
		Workers:         8,
		StatWorkers:     defaultStatWorkers(),
		BatchSize:       DefaultBatchSize,
		ProgressSamples: DefaultProgressSamples,
	}
}

func defaultStatWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// WithWorkers sets the number of concurrent directory listings.
func (o *Options) WithWorkers(n int) *Options {
	o.Workers = n
	return o
}

// WithStatWorkers sets the stat pool size.
func (o *Options) WithStatWorkers(n int) *Options {
	o.StatWorkers = n
	return o
}

// WithBatchSize sets the number of files per stat batch.
func (o *Options) WithBatchSize(n int) *Options {
	o.BatchSize = n
	return o
}

// WithProgressSamples sets the progress sampling rate of the stat phase.
func (o *Options) WithProgressSamples(n int) *Options {
	o.ProgressSamples = n
	return o
}

// WithXdev sets cross-device behavior.
func (o *Options) WithXdev(xdev bool) *Options {
	o.Xdev = xdev
	return o
}

// WithVerbose toggles debug output.
func (o *Options) WithVerbose(v bool) *Options {
	o.Verbose = v
	return o
}

// AddExcludePattern adds a pattern to exclude.
func (o *Options) AddExcludePattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	o.ExcludePatterns = append(o.ExcludePatterns, re)
	return nil
}

// ShouldExclude checks if a path matches any exclude pattern.
func (o *Options) ShouldExclude(path string) bool {
	for _, re := range o.ExcludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Validate rejects option values the scanner cannot run with.
func (o *Options) Validate() error {
	switch {
	case o.Workers < 1:
		return errors.New("workers must be at least 1")
	case o.StatWorkers < 1:
		return errors.New("stat workers must be at least 1")
	case o.BatchSize < 1:
		return errors.New("batch size must be at least 1")
	case o.ProgressSamples < 1:
		return errors.New("progress samples must be at least 1")
	}
	return nil
}
