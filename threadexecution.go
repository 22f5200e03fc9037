package xec

import (
	"runtime"
	"sync"
	"time"

	"github.com/iboB/xec/threadname"
	"go.uber.org/zap"
)

// SingleThreadExecution owns one worker goroutine and drives exactly one
// Executor: wait for work, update, repeat, until stopped, then finalize
// exactly once. It's the simplest of the three personalities.
type SingleThreadExecution struct {
	executor Executor
	ctx      *threadContext

	mu      sync.Mutex
	running bool // set by LaunchThread; never cleared, even after the goroutine exits
	done    chan struct{}
}

// NewSingleThreadExecution attaches a fresh ExecutionContext to e and
// returns an execution ready to launchThread. e must not already have a
// non-initial context attached (that's a contract violation, same as
// calling setExecutionContext twice directly).
func NewSingleThreadExecution(e interface {
	Executor
	setContextAttacher
}) *SingleThreadExecution {
	ctx := newThreadContext()
	e.setExecutionContext(ctx)
	return &SingleThreadExecution{executor: e, ctx: ctx}
}

// setContextAttacher is the sliver of ExecutorBase's API that construction
// needs; it exists so embedders only need to embed ExecutorBase to satisfy
// it, without exposing setExecutionContext as part of the public Executor
// contract.
type setContextAttacher interface {
	setExecutionContext(ExecutionContext)
}

// LaunchThread starts the worker goroutine. If name is non-empty, the
// worker attempts to set it as its OS thread name (best effort: failures
// are non-fatal, see threadname.SetCurrentThreadName).
func (x *SingleThreadExecution) LaunchThread(name string) {
	x.mu.Lock()
	if x.running {
		x.mu.Unlock()
		panic("xec: SingleThreadExecution.LaunchThread called while already running")
	}
	x.running = true
	x.done = make(chan struct{})
	x.mu.Unlock()

	go x.threadMain(name)
}

func (x *SingleThreadExecution) threadMain(name string) {
	defer close(x.done)
	if name != "" {
		// naming the OS thread only sticks if this goroutine stays put on
		// it for the rest of its life, which it does anyway (the run loop
		// never yields the thread back to the scheduler's pool).
		runtime.LockOSThread()
		if err := threadname.SetCurrentThreadName(name); err != nil {
			logger().Debug("xec: could not set worker thread name",
				zap.Error(err), zap.String("name", name))
		}
	}
	x.run()
}

// run is the loop itself: wait, update, repeat; on stop, finalize exactly
// once. It's factored out so tests can drive it synchronously without a
// goroutine if they want to.
func (x *SingleThreadExecution) run() {
	for x.ctx.runningFlag() {
		x.ctx.wait()
		x.executor.update()
	}
	x.executor.finalize()
}

// JoinThread blocks until the worker goroutine exits. Unless something
// stops the execution, this may block forever.
func (x *SingleThreadExecution) JoinThread() {
	x.mu.Lock()
	done := x.done
	x.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// StopAndJoinThread stops the execution and waits for the worker to exit.
func (x *SingleThreadExecution) StopAndJoinThread() {
	x.ctx.stop()
	x.JoinThread()
}

// threadContext is the ExecutionContext for a SingleThreadExecution. Its
// wait() implements the state machine from §4.E: consume pending work if
// any; else wait on the scheduled deadline if one is set; else wait
// indefinitely. Every wake site re-checks state, so spurious wake-ups are
// harmless.
type threadContext struct {
	mu   sync.Mutex
	cond *sync.Cond

	runningAtomic bool // guarded by mu; see runningFlag/stop

	hasWork             bool
	scheduledWakeUpTime *time.Time
}

func newThreadContext() *threadContext {
	c := &threadContext{runningAtomic: true, hasWork: true}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *threadContext) runningFlag() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningAtomic
}

func (c *threadContext) running() bool { return c.runningFlag() }

func (c *threadContext) stop() {
	c.mu.Lock()
	c.runningAtomic = false
	c.mu.Unlock()
	c.wakeUpNow()
}

func (c *threadContext) wakeUpNow() {
	c.mu.Lock()
	c.hasWork = true
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *threadContext) scheduleNextWakeUp(d time.Duration) {
	t := time.Now().Add(d)
	c.mu.Lock()
	c.scheduledWakeUpTime = &t
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *threadContext) unscheduleNextWakeUp() {
	c.mu.Lock()
	c.scheduledWakeUpTime = nil
	c.mu.Unlock()
	c.cond.Signal()
}

// wait blocks until there is work to do: either a wakeUpNow already
// happened, a scheduled deadline elapses, or (if nothing is scheduled) a
// future wakeUpNow/schedule arrives. A fired deadline is consumed --
// cleared -- whether or not it ends up producing work.
func (c *threadContext) wait() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.hasWork {
			c.hasWork = false
			c.scheduledWakeUpTime = nil
			return
		}

		if c.scheduledWakeUpTime != nil {
			deadline := *c.scheduledWakeUpTime
			if !c.waitUntilLocked(deadline) {
				// genuine timeout: the deadline is consumed and becomes work.
				c.hasWork = true
				c.scheduledWakeUpTime = nil
			}
			continue
		}

		if !c.runningAtomic {
			return
		}
		c.cond.Wait()
	}
}

// waitUntilLocked waits on c.cond (with c.mu held, as sync.Cond requires)
// until either a signal arrives or deadline passes. It reports whether it
// woke due to a signal (true) rather than timing out (false). sync.Cond
// has no built-in timed wait, so a timer is used to deliver a wake-up of
// its own at the deadline; the timer callback takes c.mu before signaling
// so it can't race the Wait() call below into a missed wake-up.
func (c *threadContext) waitUntilLocked(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	timer := time.AfterFunc(remaining, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})

	c.cond.Wait()
	timer.Stop()

	return !time.Now().After(deadline)
}
