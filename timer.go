package prs

import (
	"container/heap"
	"sync"

	"github.com/dexter0/prs-sub001/internal/platform"
)

// timerEntry is one armed deadline in the wheel's min-heap, per spec
// §4.9 ("timer wheel keyed on absolute deadline").
type timerEntry struct {
	deadline uint64
	seq      uint64 // breaks ties FIFO so same-tick timers fire in arming order
	event    *Event
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// TimerWheel is the runtime's single source of deadline-based wakeups: a
// min-heap of armed events keyed on absolute tick deadline, advanced once
// per system tick by Runtime's clock thread.
type TimerWheel struct {
	clock *platform.Clock

	mu   sync.Mutex
	heap timerHeap
	seq  uint64
}

// NewTimerWheel creates an empty wheel reading ticks from clock.
func NewTimerWheel(clock *platform.Clock) *TimerWheel {
	return &TimerWheel{clock: clock}
}

// After arms a timer ticksFromNow ticks in the future, owned by owner and
// signaled through scheduler on fire. The returned Event resolves exactly
// like any other: SourceTimer identifies a fire, and it can also be
// signaled early (or canceled) by whatever concurrently satisfies the
// wait it's racing against.
func (tw *TimerWheel) After(ticksFromNow uint64, owner *Task, scheduler Scheduler) *Event {
	ev := NewEvent(owner, scheduler, 1)
	deadline := tw.clock.Now() + ticksFromNow
	tw.mu.Lock()
	tw.seq++
	heap.Push(&tw.heap, &timerEntry{deadline: deadline, seq: tw.seq, event: ev})
	tw.mu.Unlock()
	return ev
}

// Cancel removes ev's armed entry if it hasn't fired yet. Safe to call
// even if ev already fired or was never armed on this wheel.
func (tw *TimerWheel) Cancel(ev *Event) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	for i, e := range tw.heap {
		if e.event == ev {
			heap.Remove(&tw.heap, i)
			return
		}
	}
}

// Tick fires every armed timer whose deadline is now due, given the
// clock's current tick count, and reports how many fired. Called once per
// tick from the runtime's clock thread, never from a worker.
func (tw *TimerWheel) Tick(now uint64) int {
	tw.mu.Lock()
	var fired []*Event
	for len(tw.heap) > 0 && tw.heap[0].deadline <= now {
		e := heap.Pop(&tw.heap).(*timerEntry)
		fired = append(fired, e.event)
	}
	tw.mu.Unlock()
	for _, ev := range fired {
		ev.Signal(SourceTimer)
	}
	return len(fired)
}

// Len reports how many timers are currently armed.
func (tw *TimerWheel) Len() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return len(tw.heap)
}
