package xec

import (
	"runtime"
	"sync"
	"time"

	"github.com/iboB/xec/threadname"
	"go.uber.org/zap"
)

// PoolExecution multiplexes many executors onto a shared, bounded set of
// worker goroutines. Each executor still gets its updates serialized (the
// same context is never active on two workers at once), but the workers
// themselves are shared: an executor with nothing to do costs nothing
// beyond a slot in a couple of in-memory sets.
//
// The zero value is ready to use.
type PoolExecution struct {
	mu sync.Mutex
	cv *sync.Cond

	running bool // pool-wide running flag; independent of each context's own

	scheduledWakeUpTime *time.Time

	active    orderedLinearSet[*poolContext] // currently being updated by some worker
	pending   orderedLinearSet[*poolContext] // ready to run, waiting for a worker
	all       map[*poolContext]struct{}      // every context ever added, until it finalizes
	scheduled timedQueue[*poolContext]       // waiting for a future deadline

	wg sync.WaitGroup
}

func (p *PoolExecution) init() {
	if p.cv == nil {
		p.cv = sync.NewCond(&p.mu)
		p.running = true
		p.all = make(map[*poolContext]struct{})
	}
}

// AddExecutor registers e with the pool and immediately attaches a new
// context to it. e becomes eligible for update() as soon as a worker is
// available to run it; it must not already have a non-initial context.
func (p *PoolExecution) AddExecutor(e interface {
	Executor
	setContextAttacher
}) {
	p.mu.Lock()
	p.init()
	ctx := &poolContext{pool: p, exec: e, isRunning: true}
	p.pending.insert(ctx)
	p.all[ctx] = struct{}{}
	p.mu.Unlock()

	e.setExecutionContext(ctx)
	p.cv.Signal()
}

// Run blocks the calling goroutine, repeatedly picking up whatever
// context is ready and updating (or finalizing) it, until the pool is
// stopped and every context has finalized. It's the body every worker
// goroutine launched by LaunchThreads runs; calling it directly lets a
// caller dedicate its own goroutine to the pool instead.
func (p *PoolExecution) Run() {
	p.mu.Lock()
	p.init()
	p.mu.Unlock()

	var ctx *poolContext
	for {
		ctx = p.waitForContext(ctx)
		if ctx == nil {
			return
		}

		if ctx.running() {
			ctx.executor().update()
		} else {
			p.mu.Lock()
			delete(p.all, ctx)
			p.mu.Unlock()

			ctx.executor().finalize()
			// finalize may have scheduled a wake-up on its way out; the
			// context is done, so that would-be wake-up is meaningless.
			ctx.unscheduleNextWakeUp()
		}
	}
}

// waitForContext releases contextToFree (if non-nil, the context the
// caller just finished updating or finalizing) back into the pool's
// bookkeeping, then blocks until a context is ready to run or the pool
// has fully drained after a Stop, in which case it returns nil.
func (p *PoolExecution) waitForContext(contextToFree *poolContext) *poolContext {
	p.mu.Lock()
	defer p.mu.Unlock()

	if contextToFree != nil {
		p.active.erase(contextToFree)

		if t := contextToFree.scheduledWakeUpTimeLocked(); t != nil {
			if !p.pending.contains(contextToFree) {
				p.scheduled.push(*t, contextToFree)
			}
		} else {
			p.scheduled.eraseAll(func(c *poolContext) bool { return c == contextToFree })
		}
	}

	for {
		if !p.scheduled.empty() {
			now := time.Now()
			for !p.scheduled.empty() {
				top := p.scheduled.top()
				topDeadline := p.scheduled.topDeadline()
				if !topDeadline.After(now) {
					p.pending.insert(top)
					p.scheduled.pop()
					if p.scheduled.empty() {
						p.scheduledWakeUpTime = nil
					}
				} else {
					t := topDeadline
					p.scheduledWakeUpTime = &t
					break
				}
			}
		}

		for _, c := range p.pending.all() {
			if !p.active.insert(c) {
				continue // already active on another worker
			}
			p.pending.erase(c)
			// the ripe deadline or wakeUpNow that made c pending consumes
			// its scheduled wake-up; update may set a new one, which the
			// release above reconciles.
			c.unscheduleNextWakeUp()
			return c
		}

		if !p.running {
			// stopped, and nothing pending: every context has either been
			// finalized already or will never run again.
			return nil
		}

		if p.scheduledWakeUpTime != nil {
			if !p.condWaitUntil(*p.scheduledWakeUpTime) {
				p.scheduledWakeUpTime = nil // consumed by timeout
			}
		} else {
			p.cv.Wait()
		}
	}
}

// condWaitUntil waits on p.cv (p.mu held) until either a signal arrives
// or deadline passes, reporting which. Mirrors threadContext's
// waitUntilLocked: the timer callback takes p.mu before broadcasting so
// it can't race the Wait() call below into a missed wake-up.
func (p *PoolExecution) condWaitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	timer := time.AfterFunc(remaining, func() {
		p.mu.Lock()
		p.cv.Broadcast()
		p.mu.Unlock()
	})

	p.cv.Wait()
	timer.Stop()

	return !time.Now().After(deadline)
}

// wakeUpNow moves ctx into the pending set (unless it's already there) and
// nudges one waiting worker. It's a no-op if ctx is already pending:
// either a worker is about to pick it up, or another wakeUpNow already
// will.
func (p *PoolExecution) wakeUpNow(ctx *poolContext) {
	p.mu.Lock()
	if !p.pending.insert(ctx) {
		p.mu.Unlock()
		return
	}
	p.scheduled.eraseAll(func(c *poolContext) bool { return c == ctx })
	p.mu.Unlock()
	p.cv.Signal()
}

// Stop marks the pool stopped and stops every context currently
// registered with it, so each gets one final update cycle in which to
// finalize. Idempotent.
func (p *PoolExecution) Stop() {
	p.mu.Lock()
	p.init()
	if !p.running {
		p.mu.Unlock()
		return
	}
	contexts := make([]*poolContext, 0, len(p.all))
	for ctx := range p.all {
		contexts = append(contexts, ctx)
	}
	p.mu.Unlock()

	// ctx.stop() may call back into p.wakeUpNow, which takes p.mu itself;
	// it must run with p.mu released. Every context is stopped (and so
	// pending) before the pool flag drops, so no worker sees the pool
	// stopped while a context still waits to be finalized outside pending.
	for _, ctx := range contexts {
		ctx.stop()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.cv.Broadcast()
}

// LaunchThreads starts count worker goroutines, each running Run. If
// threadName is non-empty and count is 1, the single worker is named
// exactly threadName; for count > 1, workers are named threadName1,
// threadName2, and so on (best effort, see threadname).
func (p *PoolExecution) LaunchThreads(count int, threadName string) {
	p.mu.Lock()
	p.init()
	p.mu.Unlock()

	for i := 0; i < count; i++ {
		name := ""
		if threadName != "" {
			if count == 1 {
				name = threadName
			} else {
				name = threadName + itoa(i+1)
			}
		}
		p.wg.Add(1)
		go func(name string) {
			defer p.wg.Done()
			if name != "" {
				runtime.LockOSThread()
				if err := threadname.SetCurrentThreadName(name); err != nil {
					logger().Debug("xec: could not set pool worker thread name",
						zap.Error(err), zap.String("name", name))
				}
			}
			p.Run()
		}(name)
	}
}

// JoinThreads blocks until every worker goroutine launched by
// LaunchThreads has exited.
func (p *PoolExecution) JoinThreads() {
	p.wg.Wait()
}

// StopAndJoinThreads stops the pool and waits for its launched workers to
// exit.
func (p *PoolExecution) StopAndJoinThreads() {
	p.Stop()
	p.JoinThreads()
}

// itoa avoids pulling in strconv just for small non-negative thread
// suffixes.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// poolContext is the ExecutionContext PoolExecution hands to each
// executor it's driving. Unlike threadContext, it carries no wait logic
// of its own: its state (pending/active/scheduled membership) lives in
// the owning PoolExecution, which is what lets many contexts share a
// worker pool instead of each owning a thread.
type poolContext struct {
	pool *PoolExecution
	exec Executor

	runningMu sync.Mutex
	isRunning bool

	scheduledWakeUpTime *time.Time
}

func (c *poolContext) executor() Executor { return c.exec }

func (c *poolContext) scheduledWakeUpTimeLocked() *time.Time {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	return c.scheduledWakeUpTime
}

func (c *poolContext) wakeUpNow() {
	if c.running() {
		c.pool.wakeUpNow(c)
	}
}

func (c *poolContext) scheduleNextWakeUp(d time.Duration) {
	t := time.Now().Add(d)
	c.runningMu.Lock()
	c.scheduledWakeUpTime = &t
	c.runningMu.Unlock()
}

func (c *poolContext) unscheduleNextWakeUp() {
	c.runningMu.Lock()
	c.scheduledWakeUpTime = nil
	c.runningMu.Unlock()
}

func (c *poolContext) stop() {
	c.runningMu.Lock()
	wasRunning := c.isRunning
	c.isRunning = false
	c.runningMu.Unlock()
	if wasRunning {
		// one final wake-up, so the worker that eventually picks this
		// context up observes running() == false and finalizes it.
		c.pool.wakeUpNow(c)
	}
}

func (c *poolContext) running() bool {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	return c.isRunning
}

// PoolStats is a read-only snapshot of a PoolExecution's bookkeeping,
// useful for exposing pool health (e.g. via a metrics endpoint) without
// exposing the pool's internal sets directly.
type PoolStats struct {
	Active    int
	Pending   int
	Scheduled int
	Total     int
}

// Stats reports the current size of each of the pool's internal sets.
func (p *PoolExecution) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Active:    p.active.len(),
		Pending:   p.pending.len(),
		Scheduled: len(p.scheduled.items),
		Total:     len(p.all),
	}
}
