package prs

import (
	"sync"

	"github.com/dexter0/prs-sub001/internal/lockfree"
)

// Message is a single entry in a task's message queue: a small tagged
// payload, per spec §4.8. Type is application-defined; Payload is
// whatever the sender attached.
type Message struct {
	Type    uint32
	Payload any
}

// MatchFunc selects which queued message a Recv call is willing to take.
// A nil MatchFunc accepts the first message in line.
type MatchFunc func(Message) bool

// MsgQueue is a task's owned inbox: any number of goroutines may Send,
// but only the owning task's goroutine ever calls Recv/TryRecv, which is
// exactly the MPSC intrusive queue's contract.
type MsgQueue struct {
	q *lockfree.MPSC[Message]

	mu      sync.Mutex
	waiting *Event // set while the owner is parked in Recv
}

// NewMsgQueue creates an empty message queue.
func NewMsgQueue() *MsgQueue {
	return &MsgQueue{q: lockfree.NewMPSC[Message]()}
}

// Send enqueues msg and wakes the owner if it's currently blocked in Recv.
func (q *MsgQueue) Send(msg Message) {
	q.q.Push(msg)
	q.mu.Lock()
	w := q.waiting
	q.waiting = nil
	q.mu.Unlock()
	if w != nil {
		w.Signal(SourceMessage)
	}
}

// TryRecv pops the first queued message without blocking.
func (q *MsgQueue) TryRecv() (Message, bool) {
	return q.q.Pop()
}

// TryRecvMatch pops the first queued message filter accepts, without
// blocking, scanning past non-matching entries.
func (q *MsgQueue) TryRecvMatch(filter MatchFunc) (Message, bool) {
	return q.q.PopMatch(filter)
}

// Empty reports whether the queue currently has nothing to pop.
func (q *MsgQueue) Empty() bool { return q.q.Empty() }

// Recv blocks the calling task t until a message matching filter (or any
// message, if filter is nil) arrives, the optional timeoutTicks elapses,
// or the task is killed while parked. It re-scans the queue every time it
// wakes, since a wake only promises "something changed," not that this
// particular Recv's filter is now satisfied.
func (q *MsgQueue) Recv(t *Task, filter MatchFunc, timeoutTicks uint64, timers *TimerWheel) (Message, Status) {
	pop := func() (Message, bool) {
		if filter != nil {
			return q.q.PopMatch(filter)
		}
		return q.q.Pop()
	}

	for {
		if t == nil {
			if msg, ok := pop(); ok {
				return msg, OK
			}
			return Message{}, Empty
		}
		w := t.worker.Load()
		if w == nil {
			return Message{}, Empty
		}

		// The pop attempt and the wait registration must happen as one
		// critical section: otherwise a Send landing between an
		// unsynchronized pop and the registration would find q.waiting
		// still nil and signal nothing, stranding this wait forever on a
		// message that's already queued. Send only ever touches q.waiting
		// under q.mu too, so holding it across both steps closes the gap,
		// the same way semaphore.go's Acquire checks-and-appends under one
		// lock.
		q.mu.Lock()
		msg, ok := pop()
		if ok {
			q.mu.Unlock()
			return msg, OK
		}
		ev := NewEvent(t, w.scheduler, 1)
		q.waiting = ev
		q.mu.Unlock()
		t.addPendingEvent(ev)

		var timerEv *Event
		if timeoutTicks > 0 && timers != nil {
			timerEv = timers.After(timeoutTicks, t, w.scheduler)
			t.addPendingEvent(timerEv)
		}

		w.scheduler.Block(t)
		t.suspend(TaskBlocked)

		timedOut := timerEv != nil && timerEv.Signaled() && timerEv.Source() == SourceTimer
		// Read before clearPendingEvents, whose Cancel marks ev signaled too.
		msgSignaled := ev.Signaled()
		t.clearPendingEvents(nil)
		q.mu.Lock()
		if q.waiting == ev {
			q.waiting = nil
		}
		q.mu.Unlock()

		if t.Killed() {
			return Message{}, InvalidState
		}
		if timedOut && !msgSignaled {
			return Message{}, Timeout
		}
		// A message arrived (or the wake was spurious); loop and re-scan.
	}
}
