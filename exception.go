package prs

import "sync"

// ExceptionAction is what an ExceptionHandler decides to do with a raised
// exception, per spec §4.10.
type ExceptionAction int

const (
	// ActionContinue means the handler fully resolved the exception;
	// execution resumes normally and the chain stops unwinding.
	ActionContinue ExceptionAction = iota
	// ActionForward passes the exception to the next (outer) handler.
	ActionForward
	// ActionKillTask terminates the raising task (its directory entry
	// transitions through Destroy) but leaves the rest of the runtime
	// running.
	ActionKillTask
	// ActionExit is the fatal cascade: no handler could contain the
	// exception, so the whole runtime begins shutdown.
	ActionExit
)

// ExceptionHandler inspects a raised exception for task t and decides
// what happens next.
type ExceptionHandler func(t *Task, exc error) ExceptionAction

// ExceptionChain is a stack of handlers, most-recently-pushed first, that
// Raise walks until one of them claims the exception (or the chain is
// exhausted). An exception that reaches the bottom of an empty or
// all-forwarding chain is logged and kills only the raising task; the
// runtime exits only when a handler returns ActionExit.
type ExceptionChain struct {
	mu       sync.Mutex
	handlers []ExceptionHandler
}

// NewExceptionChain creates an empty chain.
func NewExceptionChain() *ExceptionChain { return &ExceptionChain{} }

// Push installs h as the new innermost handler.
func (c *ExceptionChain) Push(h ExceptionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Pop removes the innermost handler, if any.
func (c *ExceptionChain) Pop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.handlers); n > 0 {
		c.handlers = c.handlers[:n-1]
	}
}

// Raise walks the chain from innermost to outermost handler, applying
// onKillTask/onExit side effects as the chain's verdict demands, and
// returns the action actually taken.
func (c *ExceptionChain) Raise(t *Task, exc error, onKillTask func(*Task), onExit func(error)) ExceptionAction {
	c.mu.Lock()
	handlers := append([]ExceptionHandler(nil), c.handlers...)
	c.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		switch action := handlers[i](t, exc); action {
		case ActionContinue:
			return ActionContinue
		case ActionKillTask:
			if onKillTask != nil {
				onKillTask(t)
			}
			return ActionKillTask
		case ActionExit:
			if onExit != nil {
				onExit(exc)
			}
			return ActionExit
		case ActionForward:
			continue
		}
	}
	logf(LevelError, "exception", 0, uint32(t.ID), exc,
		"unhandled exception in task %q, killing", t.Name)
	if onKillTask != nil {
		onKillTask(t)
	}
	return ActionKillTask
}

// Len reports how many handlers are currently installed.
func (c *ExceptionChain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
