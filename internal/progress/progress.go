// Package progress renders terminal progress for the scan phases.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps progressbar with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// New creates a progress bar writing to stderr.
// Use total=-1 for spinner mode, or total>=0 for determinate progress.
func New(enabled bool, total int64, description string) *Bar {
	return NewWithWriter(enabled, total, description, os.Stderr)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(enabled bool, total int64, description string, out io.Writer) *Bar {
	if !enabled {
		return &Bar{}
	}

	opts := []progressbar.Option{
		progressbar.OptionSetWriter(out),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription(description),
	}

	if total < 0 {
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(false),
		)
		return &Bar{bar: progressbar.NewOptions64(-1, opts...), out: out}
	}

	opts = append(opts,
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
	)
	return &Bar{bar: progressbar.NewOptions64(total, opts...), out: out}
}

// Set sets the progress bar to a specific value.
func (b *Bar) Set(n int64) {
	if b.bar != nil {
		_ = b.bar.Set64(n)
	}
}

// Describe updates the progress bar description.
func (b *Bar) Describe(s string) {
	if b.bar != nil {
		b.bar.Describe(s)
	}
}

// Finish completes the progress bar and prints a final message.
func (b *Bar) Finish(msg string) {
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(b.out, "✔ "+msg)
	}
}

// Abort clears the bar and prints a failure message.
func (b *Bar) Abort(msg string) {
	if b.bar != nil {
		_ = b.bar.Exit()
		_ = b.bar.Clear()
		fmt.Fprintln(b.out, "✘ "+msg)
	}
}
