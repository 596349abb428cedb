package prs

import "sync/atomic"

// EventSource identifies what signaled an Event, set atomically alongside
// the ARMED->SIGNALED transition so a waiter that wakes up on a multi-event
// wait knows which one actually fired.
type EventSource int32

const (
	SourceNone EventSource = iota
	SourceManual
	SourceSemaphore
	SourceMessage
	SourceTimer
	SourceCancel
)

// SignalResult tells the caller of Event.Signal whether it won the race to
// be the first signaler, per spec §8 testable property 3.
type SignalResult int

const (
	FirstSignal SignalResult = iota
	AlreadySignaled
)

// Event is a one-shot, refcounted synchronization primitive: ARMED once,
// it transitions to SIGNALED exactly once no matter how many concurrent
// signalers race to fire it. It is the building block every blocking
// primitive (semaphore, message queue, timer) waits on.
type Event struct {
	owner     *Task     // task to wake on signal, nil for a free-standing event
	scheduler Scheduler // scheduler to notify via Ready when owner wakes
	state     atomic.Int32
	source    atomic.Int32
	refs      atomic.Int32
}

// NewEvent creates an ARMED event owned by owner (woken through scheduler
// on signal) with an initial reference count. owner/scheduler may be nil
// for an event that's only ever polled, never blocked on.
func NewEvent(owner *Task, scheduler Scheduler, initialRefs int32) *Event {
	e := &Event{owner: owner, scheduler: scheduler}
	e.refs.Store(initialRefs)
	return e
}

// Signal fires e from src. Exactly one caller across any number of
// concurrent Signal calls observes FirstSignal; every other caller,
// including ones racing on the same tick, observes AlreadySignaled.
func (e *Event) Signal(src EventSource) SignalResult {
	if !e.state.CompareAndSwap(0, 1) {
		return AlreadySignaled
	}
	e.source.Store(int32(src))
	if e.owner != nil && e.scheduler != nil {
		e.scheduler.Ready(e.owner)
	}
	return FirstSignal
}

// Signaled reports whether e has fired.
func (e *Event) Signaled() bool { return e.state.Load() == 1 }

// Source returns what fired e, or SourceNone if it hasn't fired yet.
func (e *Event) Source() EventSource { return EventSource(e.source.Load()) }

// Cancel detaches the event without running the owner's wake path; used
// when a wait is abandoned (e.g. a timeout already woke the task through a
// different event) so the loser event doesn't spuriously re-signal later.
func (e *Event) Cancel() {
	e.state.CompareAndSwap(0, 1)
	e.source.CompareAndSwap(int32(SourceNone), int32(SourceCancel))
}

// Ref increments the reference count, returning the new value.
func (e *Event) Ref() int32 { return e.refs.Add(1) }

// Unref decrements the reference count, returning true if this was the
// last reference.
func (e *Event) Unref() bool { return e.refs.Add(-1) == 0 }
