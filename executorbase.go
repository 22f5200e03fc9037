package xec

import (
	"sync"
	"time"
)

// Executor is the unit of work a context drives: update does whatever work
// is currently pending, and finalize runs exactly once, after the owning
// execution has decided to stop, to let the executor wind down gracefully.
//
// An Executor is bound to exactly one ExecutionContext at a time. Nothing
// here requires implementing a whole interface hierarchy: embed
// ExecutorBase, implement update() (and finalize() if you need cleanup),
// and the embedding type satisfies Executor. Both methods are unexported,
// so only types declared in package xec can define them; a type in
// another package satisfies Executor only by embedding one that already
// does, such as TaskExecutor.
type Executor interface {
	update()
	finalize()
}

// ExecutorBase gives any embedder the wake-up/schedule/stop proxies it
// needs to talk to whatever ExecutionContext ends up driving it, without
// that embedder having to know or care whether the context is a
// SingleThreadExecution's, a PoolExecution's, or (briefly, before either
// is attached) the buffering placeholder described below.
//
// The zero value is usable directly: it starts out bound to an
// initialContext, and setExecutionContext installs the real one later.
// Embed ExecutorBase by value; it must not be copied after
// setExecutionContext has been called.
type ExecutorBase struct {
	mu      sync.Mutex
	ctx     ExecutionContext
	initial *initialContext // non-nil only until a real context is set
}

// initLocked lazily installs the buffering initialContext the first
// time an ExecutorBase's zero value is used. Called with mu held.
func (e *ExecutorBase) initLocked() {
	if e.ctx == nil {
		e.initial = newInitialContext()
		e.ctx = e.initial
	}
}

// setExecutionContext installs ctx as the executor's real context. It may
// only be called once, and only while the executor is still bound to its
// initial buffering context -- attaching a second non-initial context is a
// contract violation and panics.
//
// Any wakeUpNow/scheduleNextWakeUp/stop calls made before this point are
// replayed onto ctx, most-dominant first: a prior stop wins outright; else
// a prior wakeUpNow; else a prior schedule (converted to an immediate
// wake-up if its deadline has already passed).
func (e *ExecutorBase) setExecutionContext(ctx ExecutionContext) {
	e.mu.Lock()
	e.initLocked()
	if e.initial == nil {
		e.mu.Unlock()
		panic("xec: setExecutionContext called twice on the same executor")
	}
	buffered := e.initial
	e.ctx = ctx
	e.initial = nil
	e.mu.Unlock()

	buffered.replayOnto(ctx)
}

// executionContext returns the context currently driving this executor.
func (e *ExecutorBase) executionContext() ExecutionContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initLocked()
	return e.ctx
}

// WakeUpNow requests that update() run as soon as possible.
func (e *ExecutorBase) WakeUpNow() {
	e.executionContext().wakeUpNow()
}

// ScheduleNextWakeUp arranges a deadline at now+d, overriding any
// previously scheduled one.
func (e *ExecutorBase) ScheduleNextWakeUp(d time.Duration) {
	e.executionContext().scheduleNextWakeUp(d)
}

// UnscheduleNextWakeUp drops any pending deadline.
func (e *ExecutorBase) UnscheduleNextWakeUp() {
	e.executionContext().unscheduleNextWakeUp()
}

// Stop terminates execution at the next convenient point. Idempotent.
func (e *ExecutorBase) Stop() {
	e.executionContext().stop()
}

// Running reflects whether Stop has been called yet.
func (e *ExecutorBase) Running() bool {
	return e.executionContext().running()
}

// finalize is the default no-op finalize(); embedders override it by
// defining their own finalize method, which shadows this one.
func (e *ExecutorBase) finalize() {}

// initialContext buffers wake-up/schedule/stop calls made on an executor
// before a real ExecutionContext has been attached to it, so that nothing
// is lost between construction and attachment. It records only the last
// action of each kind -- by the time a real context exists, only the most
// dominant one (stop > wakeUpNow > schedule) matters, per replayOnto.
type initialContext struct {
	mu                  sync.Mutex
	stopped             bool
	wokenUp             bool
	scheduledWakeUpTime *time.Time
}

func newInitialContext() *initialContext {
	return &initialContext{}
}

func (c *initialContext) wakeUpNow() {
	c.mu.Lock()
	c.wokenUp = true
	c.mu.Unlock()
}

func (c *initialContext) scheduleNextWakeUp(d time.Duration) {
	t := time.Now().Add(d)
	c.mu.Lock()
	c.scheduledWakeUpTime = &t
	c.mu.Unlock()
}

func (c *initialContext) unscheduleNextWakeUp() {
	c.mu.Lock()
	c.scheduledWakeUpTime = nil
	c.mu.Unlock()
}

func (c *initialContext) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func (c *initialContext) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped
}

// replayOnto drains the buffered state into ctx, in order of dominance:
// stop wins over wakeUpNow, which wins over a bare schedule. A schedule
// whose deadline has already elapsed is replayed as an immediate wake-up
// rather than a schedule in the past.
func (c *initialContext) replayOnto(ctx ExecutionContext) {
	c.mu.Lock()
	stopped, wokenUp, scheduled := c.stopped, c.wokenUp, c.scheduledWakeUpTime
	c.mu.Unlock()

	switch {
	case stopped:
		ctx.stop()
	case wokenUp:
		ctx.wakeUpNow()
	case scheduled != nil:
		if remaining := time.Until(*scheduled); remaining <= 0 {
			ctx.wakeUpNow()
		} else {
			ctx.scheduleNextWakeUp(remaining)
		}
	}
}
