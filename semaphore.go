package prs

import "sync"

// Semaphore is a counting semaphore built directly on Event, the way the
// spec's own wording ("semaphores... implemented atop the event
// primitive") describes every other blocking primitive in this runtime.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters []*Event
}

// NewSemaphore creates a semaphore with the given initial count.
func NewSemaphore(count int) *Semaphore {
	return &Semaphore{count: count}
}

// TryAcquire takes a permit without blocking, returning false if none are
// available.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	return false
}

// Release returns a permit, handing it directly to the longest-waiting
// blocked acquirer if one exists instead of making it race for the count.
func (s *Semaphore) Release() {
	s.mu.Lock()
	s.count++
	var wake *Event
	if len(s.waiters) > 0 {
		wake = s.waiters[0]
		s.waiters = s.waiters[1:]
		s.count--
	}
	s.mu.Unlock()
	if wake != nil {
		wake.Signal(SourceSemaphore)
	}
}

// Acquire blocks task t until a permit is available, timeoutTicks elapse
// (0 means wait forever), or t is killed while parked.
func (s *Semaphore) Acquire(t *Task, timeoutTicks uint64, timers *TimerWheel) Status {
	s.mu.Lock()
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return OK
	}
	w := t.worker.Load()
	if w == nil {
		s.mu.Unlock()
		return InvalidState
	}
	ev := NewEvent(t, w.scheduler, 1)
	s.waiters = append(s.waiters, ev)
	s.mu.Unlock()

	t.addPendingEvent(ev)
	var timerEv *Event
	if timeoutTicks > 0 && timers != nil {
		timerEv = timers.After(timeoutTicks, t, w.scheduler)
		t.addPendingEvent(timerEv)
	}

	w.scheduler.Block(t)
	t.suspend(TaskBlocked)

	timedOut := timerEv != nil && timerEv.Signaled() && timerEv.Source() == SourceTimer && !ev.Signaled()
	if timedOut {
		s.removeWaiter(ev)
		// Checked before clearPendingEvents, whose Cancel marks ev signaled.
		timedOut = !ev.Signaled()
	}
	t.clearPendingEvents(nil)

	if timedOut {
		return Timeout
	}
	if t.Killed() {
		return InvalidState
	}
	return OK
}

func (s *Semaphore) removeWaiter(ev *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == ev {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// Count returns the current available permit count (racy by nature; for
// diagnostics only).
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
