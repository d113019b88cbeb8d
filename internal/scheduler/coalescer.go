// Package scheduler provides the two timing primitives of the dashboard core:
// a Coalescer that collapses bursts of updates into one run per quiet period,
// and a cron-driven Refresher for periodic data reloads.
package scheduler

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is given.
const DefaultDelay = time.Second

// Coalescer runs fn once after Trigger has not been called for delay.
// Every Trigger cancels the pending timer and starts a new one, so a burst
// of triggers produces exactly one run. Runs never overlap.
type Coalescer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every Trigger/Stop; stale timers compare and bail
	pending bool
	stopped bool

	runMu sync.Mutex // serializes fn
}

// NewCoalescer creates a Coalescer. A non-positive delay means DefaultDelay.
func NewCoalescer(delay time.Duration, fn func()) *Coalescer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Coalescer{delay: delay, fn: fn}
}

// Trigger (re)starts the quiet-period timer. Returns false after Stop.
func (c *Coalescer) Trigger() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.pending = true
	c.timer = time.AfterFunc(c.delay, func() { c.fire(gen) })
	return true
}

// Pending reports whether a run is scheduled.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Flush runs fn immediately if a run is pending, cancelling the timer.
// Returns true if fn ran.
func (c *Coalescer) Flush() bool {
	c.mu.Lock()
	if !c.pending || c.stopped {
		c.mu.Unlock()
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	c.pending = false
	c.mu.Unlock()

	c.run()
	return true
}

// Stop cancels any pending run. Further Triggers are ignored.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.pending = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	// A newer Trigger, Flush or Stop superseded this timer.
	if gen != c.gen || !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.mu.Unlock()

	c.run()
}

func (c *Coalescer) run() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.fn()
}
