package timer

import "time"

// Timer is a monotonic stopwatch for measuring phase durations.
type Timer struct {
	start time.Time
	end   time.Time
}

// Start returns a running timer.
func Start() *Timer {
	return &Timer{start: time.Now()}
}

// Stop freezes the timer and returns the elapsed duration.
// Subsequent calls return the same duration.
func (t *Timer) Stop() time.Duration {
	if t.end.IsZero() {
		t.end = time.Now()
	}
	return t.end.Sub(t.start)
}

// Elapsed returns the time since Start, or the frozen duration once stopped.
func (t *Timer) Elapsed() time.Duration {
	if !t.end.IsZero() {
		return t.end.Sub(t.start)
	}
	return time.Since(t.start)
}

// Reset restarts the timer from now.
func (t *Timer) Reset() {
	t.start = time.Now()
	t.end = time.Time{}
}

// Milliseconds returns the elapsed time in fractional milliseconds.
func (t *Timer) Milliseconds() float64 {
	return float64(t.Elapsed()) / float64(time.Millisecond)
}
