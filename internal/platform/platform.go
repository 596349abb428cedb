// Package platform is the thin collaborator layer the spec calls out as
// deliberately out of scope for deep reimplementation: virtual memory,
// thread binding, and the monotonic clock. It exists only so the in-scope
// layers (task stacks, the worker loop, the timer wheel) have a concrete,
// working thing to call — not to be a general-purpose OS abstraction.
package platform

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Clock is the runtime's monotonic tick source. Ticks advance only via
// Tick (driven by the clock worker at the configured ticks-per-second
// rate) so every layer that reads Now agrees on what "now" means without
// calling time.Now() independently.
type Clock struct {
	ticks     atomic.Uint64
	started   time.Time
	ticksPerS int
}

// NewClock creates a Clock ticking at the given rate (ticks per second).
func NewClock(ticksPerSecond int) *Clock {
	return &Clock{started: time.Now(), ticksPerS: ticksPerSecond}
}

// Now returns the current tick count.
func (c *Clock) Now() uint64 { return c.ticks.Load() }

// Advance bumps the tick counter by one and returns the new value. Called
// once per system tick interval by the clock thread.
func (c *Clock) Advance() uint64 { return c.ticks.Add(1) }

// TickInterval is the wall-clock duration of one tick at this clock's rate.
func (c *Clock) TickInterval() time.Duration {
	return time.Second / time.Duration(c.ticksPerS)
}

// TicksFromDuration converts a wall-clock duration to a tick count,
// rounding up so a timer never fires early.
func (c *Clock) TicksFromDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	interval := c.TickInterval()
	n := uint64(d / interval)
	if d%interval != 0 {
		n++
	}
	return n
}

// BindWorkerThread locks the calling goroutine to its current OS thread for
// the duration of fn, mirroring a PRS worker owning one dedicated kernel
// thread for its whole lifetime. The platform layer for thread suspend/
// resume (signal delivery) proper lives in the root package's worker.go,
// which uses a cooperative pending-flag (Worker.Signal) instead of a true
// async OS signal — see Task.CheckPreempt's doc comment for why that's the
// correct rendition of "per-thread signal delivery" in Go.
func BindWorkerThread(fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	fn()
}
