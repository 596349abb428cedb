package prs

import (
	"sync/atomic"

	"github.com/dexter0/prs-sub001/internal/platform"
)

// Worker owns one dedicated OS thread and runs the scheduler's chosen
// task on it, one at a time, per spec §4.4. Interrupt delivery (the
// spec's "per-thread signal") is modeled as a cooperative pending flag
// rather than a true async signal — see Task.CheckPreempt for why that
// is the faithful rendition of this in Go.
type Worker struct {
	ID        uint32
	scheduler Scheduler

	current          atomic.Pointer[Task]
	interruptPending atomic.Bool

	wake    chan struct{}
	stop    atomic.Bool
	stopped chan struct{}
}

// NewWorker creates a worker bound to scheduler. Run must be called (on
// its own goroutine, typically via platform.BindWorkerThread) to start
// its dispatch loop.
func NewWorker(id uint32, scheduler Scheduler) *Worker {
	w := &Worker{
		ID:        id,
		scheduler: scheduler,
		wake:      make(chan struct{}, 1),
		stopped:   make(chan struct{}),
	}
	scheduler.RegisterWorker(w)
	return w
}

// Current returns the task this worker is presently running, or nil.
func (w *Worker) Current() *Task { return w.current.Load() }

// Signal requests that w's currently running task be preempted at its
// next safe point, and wakes w if it is parked idle. It is always safe to
// call from any goroutine.
func (w *Worker) Signal() {
	w.interruptPending.Store(true)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Stop requests the worker's dispatch loop exit once its current task (if
// any) next yields. Run returns after that happens.
func (w *Worker) Stop() {
	w.stop.Store(true)
	w.Signal()
}

// Run is the worker's dispatch loop: fetch the next runnable task from
// the scheduler, run it until it yields, repeat. It returns once Stop has
// been called and no task is running. Intended to be invoked as:
//
//	platform.BindWorkerThread(func() { worker.Run() })
func (w *Worker) Run() {
	defer close(w.stopped)
	var current *Task
	for !w.stop.Load() {
		task := w.scheduler.GetNext(w, current)
		if task == nil {
			current = nil
			<-w.wake
			continue
		}
		current = task
		w.current.Store(task)
		task.dispatch(w)
		switch task.State() {
		case TaskReady:
			// Preempted mid-run (CheckPreempt) or yielded voluntarily;
			// Yield/CheckPreempt already re-added it via scheduler.Ready.
		case TaskBlocked:
			// The blocking primitive already called scheduler.Block before
			// the task suspended, per the Scheduler interface contract.
		case TaskZombie:
			w.scheduler.Remove(task)
			task.worker.Store(nil)
		}
		w.current.Store(nil)
	}
}

// WaitStopped blocks until Run has returned.
func (w *Worker) WaitStopped() { <-w.stopped }

// BindAndRun locks w's dispatch loop to a dedicated OS thread for its
// entire lifetime, matching a PRS worker's one-thread-per-worker model.
func (w *Worker) BindAndRun() {
	platform.BindWorkerThread(w.Run)
}
