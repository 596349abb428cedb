package prs

// Scheduler is the pluggable policy interface every scheduler implements,
// per spec §4.6. A scheduler owns a set of tasks and the worker(s) that
// run them; the runtime ships two implementations (Cooperative, Priority)
// and treats any other policy as an equally valid collaborator behind
// this interface.
//
// Interface contract (binding on every implementation):
//   - GetNext is called with the calling worker's interrupts disabled; it
//     must not allocate and must return quickly.
//   - Ready may be called from any context, including a task's own safe
//     point check (which is this runtime's stand-in for a signal
//     handler); it must be idempotent against a task that is already
//     queued as READY. Ready on the task a worker is running queues it
//     again, which is how Yield and CheckPreempt hand it back.
//   - Block is called on the task's own worker, synchronously, before
//     that task's goroutine yields control back to the worker loop.
//   - A task that becomes ready before GetNext observes the prior run
//     must be visible to the very next GetNext call.
type Scheduler interface {
	// Name identifies the scheduler for logging/diagnostics.
	Name() string
	// RegisterWorker attaches w to this scheduler. GetNext/Ready only ever
	// consider workers that have been registered.
	RegisterWorker(w *Worker)
	// Add registers a new task with the scheduler in state READY.
	Add(t *Task)
	// Remove unregisters a task (called once it reaches ZOMBIE).
	Remove(t *Task)
	// Ready marks t runnable. Called by an Event's signaling source, by
	// Worker preemption bookkeeping, or directly by a task being started.
	Ready(t *Task)
	// Block marks t as no longer runnable; t is the task currently
	// running on the calling worker.
	Block(t *Task)
	// GetNext returns the next task w should run, or nil if none is
	// runnable (in which case the worker parks waiting for a signal).
	// current is the task w just finished running (or nil).
	GetNext(w *Worker, current *Task) *Task
	// Tick is called once per system tick from the clock thread, giving
	// time-slice-aware policies a hook (neither provided implementation
	// uses it, but the interface reserves the hook per spec §4.2).
	Tick()
}
