package prs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, sched Scheduler, workers int) *Runtime {
	t.Helper()
	rt := NewRuntime(sched, nil, WithTicksPerSecond(1000))
	require.NoError(t, rt.Init(workers))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return rt
}

// TestIntegration_PingPong is spec §8 scenario 1: two tasks exchange
// messages back and forth through their owned queues.
func TestIntegration_PingPong(t *testing.T) {
	sched := NewCooperativeScheduler()
	newTestRuntime(t, sched, 2)

	const rounds = 5
	done := make(chan struct{})
	var ping, pong *Task
	var err error

	pong, err = NewTask("pong", 0, 64*1024, func(t *Task, _ any) {
		for i := 0; i < rounds; i++ {
			msg, status := t.Queue().Recv(t, nil, 0, nil)
			if status != OK {
				return
			}
			ping.Queue().Send(msg)
		}
	}, nil)
	require.NoError(t, err)

	ping, err = NewTask("ping", 0, 64*1024, func(t *Task, _ any) {
		for i := 0; i < rounds; i++ {
			pong.Queue().Send(Message{Type: uint32(i)})
			t.Queue().Recv(t, nil, 0, nil)
		}
		close(done)
	}, nil)
	require.NoError(t, err)

	pong.Start(sched)
	ping.Start(sched)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ping-pong never completed")
	}
}

// TestIntegration_PriorityPreemption is spec §8 scenario 2: a low-priority
// busy-looping task must yield the single worker to a high-priority task
// that becomes ready while it runs.
func TestIntegration_PriorityPreemption(t *testing.T) {
	sched := NewPriorityScheduler()
	newTestRuntime(t, sched, 1)

	var lowFinished atomic.Bool
	lowDone := make(chan struct{})
	low, err := NewTask("low", 1, 64*1024, func(t *Task, _ any) {
		for i := 0; i < 5_000_000; i++ {
			t.CheckPreempt()
		}
		lowFinished.Store(true)
		close(lowDone)
	}, nil)
	require.NoError(t, err)
	low.Start(sched)

	time.Sleep(20 * time.Millisecond)

	highDone := make(chan struct{})
	high, err := NewTask("high", 20, 64*1024, func(t *Task, _ any) {
		close(highDone)
	}, nil)
	require.NoError(t, err)
	high.Start(sched)

	select {
	case <-highDone:
	case <-time.After(2 * time.Second):
		t.Fatal("high-priority task never ran: preemption failed")
	}
	assert.False(t, lowFinished.Load(), "low-priority task should not have finished before high ran")

	select {
	case <-lowDone:
	case <-time.After(2 * time.Second):
		t.Fatal("low-priority task never finished after preemption")
	}
}

// TestIntegration_EventRace is spec §8 scenario 3: many goroutines race to
// signal the same free-standing event that a single blocked task has
// registered as pending; exactly one must be the first signal, and the
// waiting task wakes exactly once.
func TestIntegration_EventRace(t *testing.T) {
	sched := NewCooperativeScheduler()
	w := NewWorker(0, sched)
	go w.Run()
	t.Cleanup(func() { w.Stop(); w.WaitStopped() })

	var wakeCount atomic.Int32
	done := make(chan struct{})
	task, err := NewTask("waiter", 0, 64*1024, func(t *Task, _ any) {
		ev := NewEvent(t, sched, 1)
		t.addPendingEvent(ev)
		sched.Block(t)
		t.suspend(TaskBlocked)
		wakeCount.Add(1)
		close(done)
		_ = ev
	}, nil)
	require.NoError(t, err)
	task.Start(sched)

	time.Sleep(20 * time.Millisecond)

	const signalers = 32
	var wg sync.WaitGroup
	var firstSignals atomic.Int32
	wg.Add(signalers)
	for i := 0; i < signalers; i++ {
		go func() {
			defer wg.Done()
			task.mu.Lock()
			events := append([]*Event(nil), task.pendingEvents...)
			task.mu.Unlock()
			for _, ev := range events {
				if ev.Signal(SourceManual) == FirstSignal {
					firstSignals.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiting task never woke")
	}
	assert.Equal(t, int32(1), firstSignals.Load())
	assert.Equal(t, int32(1), wakeCount.Load())
}

// TestIntegration_Timeout is spec §8 scenario 4: a blocking receive with no
// message ever sent must resolve with Timeout rather than hang forever.
func TestIntegration_Timeout(t *testing.T) {
	sched := NewCooperativeScheduler()
	rt := newTestRuntime(t, sched, 1)

	resultCh := make(chan Status, 1)
	task, err := NewTask("recv", 0, 64*1024, func(t *Task, _ any) {
		_, status := t.Queue().Recv(t, nil, 5, rt.Timers())
		resultCh <- status
	}, nil)
	require.NoError(t, err)
	task.Start(sched)

	time.Sleep(50 * time.Millisecond) // the runtime's own clock drives the timer wheel

	select {
	case status := <-resultCh:
		assert.Equal(t, Timeout, status)
	case <-time.After(2 * time.Second):
		t.Fatal("recv never timed out")
	}
}

// TestIntegration_NameCollision is spec §8 scenario 5.
func TestIntegration_NameCollision(t *testing.T) {
	sched := NewCooperativeScheduler()
	rt := newTestRuntime(t, sched, 1)

	assert.Equal(t, OK, rt.Resolver().Alloc("worker.pool", 1))
	assert.Equal(t, AlreadyExists, rt.Resolver().Alloc("worker.pool", 2))
}

// TestIntegration_FatalCascade is spec §8 scenario 6: an exception that
// every installed handler forwards falls through to the chain's own
// fallback, which kills only the raising task rather than escalating.
func TestIntegration_FatalCascade(t *testing.T) {
	sched := NewCooperativeScheduler()
	rt := newTestRuntime(t, sched, 1)

	rt.Exceptions().Push(func(t *Task, exc error) ExceptionAction { return ActionForward })
	rt.Exceptions().Push(func(t *Task, exc error) ExceptionAction { return ActionForward })

	var exited atomic.Bool
	killed := make(chan struct{})
	task, err := NewTask("faulty", 0, 64*1024, func(t *Task, _ any) {}, nil)
	require.NoError(t, err)

	action := rt.Exceptions().Raise(task, assert.AnError,
		func(t *Task) { close(killed) },
		func(err error) { exited.Store(true) })

	assert.Equal(t, ActionKillTask, action)
	select {
	case <-killed:
	case <-time.After(time.Second):
		t.Fatal("task was never killed by the unhandled exception")
	}
	assert.False(t, exited.Load(), "no handler returned ActionExit, so the runtime must not have exited")
}

// TestIntegration_PanicKillsTaskOthersContinue exercises the real panic
// path end to end: a task spawned through Runtime.SpawnTask that panics
// is torn down through Directory.Destroy (ActionKillTask, the empty
// chain's fallback verdict), while an unrelated task scheduled alongside
// it keeps running to completion undisturbed.
func TestIntegration_PanicKillsTaskOthersContinue(t *testing.T) {
	sched := NewCooperativeScheduler()
	rt := newTestRuntime(t, sched, 2)

	faultyID, err := rt.SpawnTask("faulty", 0, func(t *Task, _ any) {
		panic("boom")
	}, nil)
	require.NoError(t, err)
	rt.Directory().Unlock(faultyID)

	survivorDone := make(chan struct{})
	survivorID, err := rt.SpawnTask("survivor", 0, func(t *Task, _ any) {
		close(survivorDone)
	}, nil)
	require.NoError(t, err)
	rt.Directory().Unlock(survivorID)

	select {
	case <-survivorDone:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated task never ran after the other task panicked")
	}

	assert.Eventually(t, func() bool { return !rt.Directory().IsAlive(faultyID) },
		time.Second, time.Millisecond, "panicked task's directory entry must be torn down")
}

// TestIntegration_UnhandledExceptionExitsRuntime covers the other half of
// scenario 6: an installed handler that actively returns ActionExit (as
// opposed to exhausting the chain) escalates to a full runtime shutdown.
func TestIntegration_UnhandledExceptionExitsRuntime(t *testing.T) {
	sched := NewCooperativeScheduler()
	rt := NewRuntime(sched, nil, WithTicksPerSecond(1000))
	require.NoError(t, rt.Init(1))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})

	rt.Exceptions().Push(func(t *Task, exc error) ExceptionAction { return ActionExit })

	id, err := rt.SpawnTask("faulty", 0, func(t *Task, _ any) {
		panic("fatal")
	}, nil)
	require.NoError(t, err)
	rt.Directory().Unlock(id)

	require.Eventually(t, func() bool {
		return rt.shutdown.Load()
	}, 2*time.Second, 5*time.Millisecond, "runtime never completed its exit-triggered shutdown")
}
