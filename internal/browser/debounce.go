package browser

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls: only the last caller within a quiet
// period proceeds. Search keystrokes funnel through this so that rapid
// input issues a single full-collection scan.
type Debouncer struct {
	delay time.Duration

	mu  sync.Mutex
	seq uint64
}

// NewDebouncer builds a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &Debouncer{delay: delay}
}

// Coalesce blocks for the quiet period and reports whether the caller is
// still the most recent one. A later call supersedes all earlier waiters,
// which return false and should drop their work.
func (d *Debouncer) Coalesce(ctx context.Context) bool {
	d.mu.Lock()
	d.seq++
	mine := d.seq
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return mine == d.seq
}
