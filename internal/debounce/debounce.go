// Package debounce coalesces bursts of values into the last value per pause.
package debounce

import (
	"iter"
	"sync"
	"time"
)

// DefaultDelay is the pause a field waits for before committing.
const DefaultDelay = 200 * time.Millisecond

// Debouncer holds the pending value of one field and the timer that will
// commit it. A value submitted while another is pending replaces it and
// restarts the timer, so only the last value of a burst is committed.
type Debouncer[T any] struct {
	delay  time.Duration
	commit func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	has     bool
	gen     uint64
}

// New creates a debouncer that calls commit delay after the last Submit.
func New[T any](delay time.Duration, commit func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{delay: delay, commit: commit}
}

// Submit replaces the pending value and restarts the window.
func (d *Debouncer[T]) Submit(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = v
	d.has = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire commits the pending value if no newer Submit or Flush happened.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.has {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	d.commit(v)
}

// Flush commits the pending value immediately. It reports whether there
// was one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.has {
		d.mu.Unlock()
		return false
	}
	v := d.take()
	d.mu.Unlock()

	d.commit(v)
	return true
}

// Pending returns the value waiting to be committed.
func (d *Debouncer[T]) Pending() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending, d.has
}

// Stop drops the pending value without committing it.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.take()
}

// take clears the pending state. Callers hold mu.
func (d *Debouncer[T]) take() T {
	v := d.pending
	var zero T
	d.pending = zero
	d.has = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return v
}

// Event is a value submitted at an offset from the start of a session.
type Event[T any] struct {
	At    time.Duration
	Value T
}

// Coalesce replays a stream of submissions ordered by At and yields the
// values a Debouncer with the given delay would commit: every value that is
// not followed by another one within delay, and the final value.
func Coalesce[T any](events iter.Seq[Event[T]], delay time.Duration) iter.Seq[T] {
	return func(yield func(T) bool) {
		var (
			last Event[T]
			has  bool
		)
		for ev := range events {
			if has && ev.At-last.At >= delay {
				if !yield(last.Value) {
					return
				}
			}
			last, has = ev, true
		}
		if has {
			yield(last.Value)
		}
	}
}
