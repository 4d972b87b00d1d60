package listview

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period applied to search input.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces bursts of calls into one call issued after a quiet
// period. Each Trigger supersedes the previous one; a superseded callback
// never runs, even when its timer already fired.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fn    func()
	gen   uint64
}

// NewDebouncer returns a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger schedules fn after the quiet period, replacing any pending call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.fn = fn
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush runs the pending call immediately. It reports whether one was pending.
func (d *Debouncer) Flush() bool {
	fn := d.take()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Cancel drops the pending call. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	return d.take() != nil
}

// Pending reports whether a call is waiting for its quiet period.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

func (d *Debouncer) take() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn := d.fn
	if fn == nil {
		return nil
	}
	d.fn = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return fn
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}
