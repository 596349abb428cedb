package prs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dexter0/prs-sub001/internal/platform"
)

// TaskState is a task's position in the lifecycle spec §3/§4.3 describes:
// created STOPPED, started into READY, dispatched into RUNNING by a
// worker, parked into BLOCKED by a wait, and finally ZOMBIE once its
// entry function returns (a killed task, too, reaches ZOMBIE only that
// way: Kill just sets a flag).
type TaskState int32

const (
	TaskStopped TaskState = iota
	TaskReady
	TaskRunning
	TaskBlocked
	TaskZombie
)

func (s TaskState) String() string {
	switch s {
	case TaskStopped:
		return "STOPPED"
	case TaskReady:
		return "READY"
	case TaskRunning:
		return "RUNNING"
	case TaskBlocked:
		return "BLOCKED"
	case TaskZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// TaskFunc is a task's entry point. It runs on a dedicated goroutine that
// the owning Worker starts and stops exactly like a private stack: the
// task never runs except when its Worker has handed it control.
type TaskFunc func(t *Task, userdata any)

// Task is the schedulable unit of work, per spec §4.1. Where the original
// spec calls for a raw stack and a saved machine context, this rendition
// uses a dedicated goroutine plus a pair of unbuffered hand-off channels:
// the Go runtime performs the actual stack switch, and these channels are
// what make the switch happen at exactly the points this runtime's
// cooperative model demands (a safe point, a blocking call, or
// completion) rather than whenever the Go scheduler feels like it.
type Task struct {
	ID          ObjectID
	Name        string
	Priority    int
	SchedulerID ObjectID

	entry    TaskFunc
	userdata any
	stack    *platform.Stack

	state  atomic.Int32
	worker atomic.Pointer[Worker]

	queue *MsgQueue

	mu            sync.Mutex
	pendingEvents []*Event

	resumeCh chan struct{}
	yieldCh  chan struct{}
	started  atomic.Bool

	killed atomic.Bool

	onComplete func(*Task)
	onPanic    func(*Task, error)
}

// NewTask allocates a task with a private stack and its entry point, in
// state STOPPED. stackSize is rounded up to a page by the platform layer.
func NewTask(name string, priority int, stackSize int, entry TaskFunc, userdata any) (*Task, error) {
	stack, err := platform.NewStack(stackSize)
	if err != nil {
		return nil, err
	}
	t := &Task{
		Name:     name,
		Priority: priority,
		entry:    entry,
		userdata: userdata,
		stack:    stack,
		queue:    NewMsgQueue(),
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
	}
	t.state.Store(int32(TaskStopped))
	return t, nil
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Queue returns the task's owned message queue.
func (t *Task) Queue() *MsgQueue { return t.queue }

// Start transitions the task from STOPPED to READY and launches its
// goroutine, which immediately parks on resumeCh until a Worker dispatches
// it. Starting a task more than once is a no-op beyond the first call.
func (t *Task) Start(scheduler Scheduler) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.state.Store(int32(TaskReady))
	go t.run()
	if scheduler != nil {
		scheduler.Add(t)
		scheduler.Ready(t)
	}
}

func (t *Task) run() {
	<-t.resumeCh
	func() {
		defer func() {
			if r := recover(); r != nil {
				if t.onPanic != nil {
					t.onPanic(t, fmt.Errorf("task %q panicked: %v", t.Name, r))
				} else {
					logf(LevelError, "task", 0, uint32(t.ID), nil,
						"task %q panicked: %v", t.Name, r)
				}
			}
		}()
		t.entry(t, t.userdata)
	}()
	t.state.Store(int32(TaskZombie))
	if t.onComplete != nil {
		t.onComplete(t)
	}
	t.yieldCh <- struct{}{}
}

// dispatch hands control to the task's goroutine and blocks until it
// yields back (by reaching a safe point, blocking, or finishing). Called
// only by the Worker that owns t for this run slice.
func (t *Task) dispatch(w *Worker) {
	t.worker.Store(w)
	t.state.Store(int32(TaskRunning))
	t.resumeCh <- struct{}{}
	<-t.yieldCh
}

// suspend is the task's own half of a context switch: it records next as
// the task's new state and blocks the task's goroutine until its worker
// resumes it. next == TaskBlocked callers must have already
// informed the scheduler via Block before calling suspend, per the
// Scheduler interface contract.
func (t *Task) suspend(next TaskState) {
	t.state.Store(int32(next))
	t.yieldCh <- struct{}{}
	<-t.resumeCh
	t.state.Store(int32(TaskRunning))
}

// Yield voluntarily gives up the remainder of the current run slice,
// re-entering READY immediately (the scheduler's GetNext policy decides
// whether anything else actually runs next).
func (t *Task) Yield() {
	w := t.worker.Load()
	if w != nil {
		w.scheduler.Ready(t)
	}
	t.suspend(TaskReady)
}

// CheckPreempt is the safe point library code and task bodies call from
// inside any loop that might run long enough to starve other tasks. In a
// kernel or a runtime with real fibers this would be unnecessary — the
// preempting signal would interrupt the running context directly. Go
// gives no safe way to interrupt an arbitrary running goroutine from
// outside it without the unsafe package, so CheckPreempt is this
// runtime's deliberate, documented substitute: cheap enough to call on
// every loop iteration of CPU-bound task code, and it is what makes
// Worker.Signal (called by the priority scheduler when a higher-priority
// task becomes ready) actually take effect.
func (t *Task) CheckPreempt() {
	w := t.worker.Load()
	if w == nil {
		return
	}
	if w.interruptPending.CompareAndSwap(true, false) {
		w.scheduler.Ready(t)
		t.suspend(TaskReady)
	}
}

// Kill requests that the task terminate: the killed flag is checked by
// every blocking primitive (Recv, Acquire) right after it wakes, so a
// task parked in one of them unwinds with InvalidState on its next wake
// rather than completing its wait normally. A task that is itself
// currently running must still reach its own safe point to observe this.
func (t *Task) Kill() {
	t.killed.Store(true)
}

// Killed reports whether Kill has been requested. Blocking primitives
// check this after waking to decide whether to return early instead of
// completing their wait normally.
func (t *Task) Killed() bool { return t.killed.Load() }

// addPendingEvent records ev as one this task is currently waiting on, so
// a kill or a multi-event wait can cancel siblings once one fires.
func (t *Task) addPendingEvent(ev *Event) {
	t.mu.Lock()
	t.pendingEvents = append(t.pendingEvents, ev)
	t.mu.Unlock()
}

// clearPendingEvents cancels and drops every event this task was waiting
// on other than keep, called once a wait resolves so losing events don't
// linger and spuriously fire later.
func (t *Task) clearPendingEvents(keep *Event) {
	t.mu.Lock()
	pending := t.pendingEvents
	t.pendingEvents = nil
	t.mu.Unlock()
	for _, ev := range pending {
		if ev != keep {
			ev.Cancel()
		}
	}
}

// Release frees the task's stack. Called by the object directory's Free
// callback once the task's last directory reference drops.
func (t *Task) Release() {
	if t.stack != nil {
		t.stack.Release()
		t.stack = nil
	}
}
