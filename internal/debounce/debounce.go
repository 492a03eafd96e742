// Package debounce provides a trailing-edge debouncer.
package debounce

import (
	"sync"
	"time"
)

// Func delays calls to fn until delay has passed without a new Call. Only
// the last value is delivered.
type Func[T any] struct {
	delay time.Duration
	fn    func(T)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New returns a debouncer for fn.
func New[T any](delay time.Duration, fn func(T)) *Func[T] {
	return &Func[T]{delay: delay, fn: fn}
}

// Call schedules fn(v), replacing any pending call.
func (d *Func[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn(v)
	})
}

// Cancel drops the pending call, if any. It reports whether one was pending.
func (d *Func[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

// Pending reports whether a call is scheduled.
func (d *Func[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
