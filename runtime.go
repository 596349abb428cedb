package prs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/dexter0/prs-sub001/internal/platform"
)

// Runtime is the top-level object that owns every collaborator the spec
// describes: the object directory, name resolver, timer wheel, exception
// chain, log, and the pool of workers executing a pluggable Scheduler.
// Construct one with NewRuntime, bring it up with Init, and tear it down
// with Shutdown's explicit quiesce sequence.
type Runtime struct {
	cfg Config

	clock      *platform.Clock
	directory  *Directory
	resolver   *Resolver
	timers     *TimerWheel
	exceptions *ExceptionChain
	log        *RingLog
	metrics    *Metrics
	scheduler  Scheduler

	workers []*Worker

	undoMaxProcs func()

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
	stopTick chan struct{}

	initialized bool
	shutdown    atomic.Bool
}

// NewRuntime constructs a Runtime around scheduler, logging drained lines
// to sink (nil discards them). It does not start any worker or clock
// goroutine yet; call Init for that.
func NewRuntime(scheduler Scheduler, sink Sink, opts ...Option) *Runtime {
	cfg := DefaultConfig()
	for _, o := range opts {
		o.apply(&cfg)
	}

	// automaxprocs adjusts GOMAXPROCS to the container's CPU quota (not
	// just the host's core count). It does not set the worker count: Init
	// spawns the numWorkers its caller asks for, clamped to MaxCPUs.
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		logf(LevelDebug, "runtime", 0, 0, nil, format, a...)
	}))
	if err != nil {
		logf(LevelWarn, "runtime", 0, 0, err, "automaxprocs: failed to adjust GOMAXPROCS")
		undo = func() {}
	}

	clock := platform.NewClock(cfg.TicksPerSecond)
	directory := NewDirectory(cfg.MaxObjects)
	return &Runtime{
		cfg:          cfg,
		clock:        clock,
		directory:    directory,
		resolver:     NewResolver(cfg.MaxObjects, directory),
		timers:       NewTimerWheel(clock),
		exceptions:   NewExceptionChain(),
		log:          NewRingLog(cfg.LogCapacity, clock, sink),
		metrics:      newMetrics(),
		scheduler:    scheduler,
		undoMaxProcs: undo,
		stopTick:     make(chan struct{}),
	}
}

// Directory exposes the runtime's object directory.
func (rt *Runtime) Directory() *Directory { return rt.directory }

// Resolver exposes the runtime's name resolver.
func (rt *Runtime) Resolver() *Resolver { return rt.resolver }

// Timers exposes the runtime's timer wheel.
func (rt *Runtime) Timers() *TimerWheel { return rt.timers }

// Exceptions exposes the runtime's exception handler chain.
func (rt *Runtime) Exceptions() *ExceptionChain { return rt.exceptions }

// Clock exposes the runtime's monotonic tick source.
func (rt *Runtime) Clock() *platform.Clock { return rt.clock }

// Metrics returns a snapshot of the runtime's operational counters.
func (rt *Runtime) Metrics() MetricsSnapshot { return rt.metrics.Snapshot() }

// Scheduler returns the scheduler this runtime dispatches tasks through.
func (rt *Runtime) Scheduler() Scheduler { return rt.scheduler }

// Init starts numWorkers worker threads (each bound to its own OS thread)
// and the clock tick goroutine driving the timer wheel and log drain.
// numWorkers is clamped to cfg.MaxCPUs. Init may only be called once.
func (rt *Runtime) Init(numWorkers int) error {
	if rt.initialized {
		return ErrAlreadyRunning
	}
	if numWorkers > rt.cfg.MaxCPUs {
		numWorkers = rt.cfg.MaxCPUs
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	rt.group, rt.groupCtx, rt.cancel = group, groupCtx, cancel

	for i := 0; i < numWorkers; i++ {
		w := NewWorker(uint32(i), rt.scheduler)
		rt.workers = append(rt.workers, w)
		group.Go(func() error {
			w.BindAndRun()
			return nil
		})
	}

	group.Go(func() error {
		rt.tickLoop()
		return nil
	})

	rt.initialized = true
	logf(LevelInfo, "runtime", 0, 0, nil, "initialized with %d workers", numWorkers)
	return nil
}

func (rt *Runtime) tickLoop() {
	interval := rt.clock.TickInterval()
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rt.stopTick:
			rt.metrics.LogDropped.Add(uint64(rt.log.Drain()))
			return
		case <-ticker.C:
			now := rt.clock.Advance()
			rt.metrics.TimersFired.Add(uint64(rt.timers.Tick(now)))
			rt.scheduler.Tick()
			rt.metrics.LogDropped.Add(uint64(rt.log.Drain()))
		}
	}
}

// SpawnTask allocates, starts, and directory-registers a new task running
// entry(userdata), bound to this runtime's scheduler. The returned
// ObjectID is locked on return; callers must Unlock it through Directory
// once they're done holding a reference to it.
func (rt *Runtime) SpawnTask(name string, priority int, entry TaskFunc, userdata any) (ObjectID, error) {
	if rt.shutdown.Load() {
		return 0, ErrRuntimeShutdown
	}
	task, err := NewTask(name, priority, rt.cfg.StackSize, entry, userdata)
	if err != nil {
		return 0, err
	}
	task.onComplete = func(t *Task) {
		rt.metrics.TasksCompleted.Add(1)
	}
	task.onPanic = func(t *Task, err error) {
		rt.exceptions.Raise(t, err,
			func(t *Task) { rt.directory.Destroy(t.ID) },
			func(err error) { rt.fatal(err) },
		)
	}
	id, err := rt.directory.AllocAndLock(task, taskOps{task})
	if err != nil {
		return 0, err
	}
	task.ID = id
	rt.metrics.TasksStarted.Add(1)
	task.Start(rt.scheduler)
	return id, nil
}

// fatal is the runtime's ActionExit handler: an exception no installed
// handler could contain escalates to tearing down the whole runtime.
// Shutdown runs on its own goroutine since fatal is invoked from inside
// the panicking task's own goroutine, which its own worker is still
// waiting on to yield; calling Shutdown synchronously here would deadlock
// against that wait.
func (rt *Runtime) fatal(err error) {
	logf(LevelError, "runtime", 0, 0, err, "unhandled exception escalated to runtime exit")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	}()
}

// taskOps adapts *Task to the directory's Ops vtable.
type taskOps struct{ t *Task }

func (o taskOps) Destroy() { o.t.Kill() }
func (o taskOps) Free()    { o.t.Release() }
func (o taskOps) Print() string {
	return fmt.Sprintf("task %q prio=%d state=%s", o.t.Name, o.t.Priority, o.t.State())
}

// Shutdown runs the quiesce sequence documented in the spec's supplemented
// design: stop admitting new tasks, stop the clock (which also stops the
// timer wheel and flushes the log one last time), signal every worker to
// stop once its current task yields, and wait for them all to exit.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if !rt.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if !rt.initialized {
		rt.undoMaxProcs()
		return nil
	}

	close(rt.stopTick)
	for _, w := range rt.workers {
		w.Stop()
	}

	done := make(chan error, 1)
	go func() { done <- rt.group.Wait() }()

	select {
	case err := <-done:
		rt.undoMaxProcs()
		logf(LevelInfo, "runtime", 0, 0, nil, "shutdown complete")
		return err
	case <-ctx.Done():
		rt.cancel()
		rt.undoMaxProcs()
		return ctx.Err()
	}
}
