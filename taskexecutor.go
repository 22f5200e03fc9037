package xec

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work queued on a TaskExecutor.
type Task func()

// TaskID identifies a single queued task, returned by PushTask and
// ScheduleTask, for later use with CancelTask or RescheduleTask.
type TaskID uint64

// CancelToken groups tasks so they can be cancelled together: any task
// pushed or scheduled with a given non-zero token can later be bulk
// cancelled with CancelTasksWithToken. Token 0 means "no group" and is
// never matched.
type CancelToken uint64

// taskWithID is one entry of the immediate FIFO queue.
type taskWithID struct {
	task  Task
	id    TaskID
	token CancelToken
}

// timedTask is one entry of the scheduled min-heap, keyed by deadline.
type timedTask struct {
	taskWithID
}

// TaskExecutor is a concrete Executor that turns the wake-up/schedule
// contract into a closure queue: PushTask enqueues a task for the next
// update(), ScheduleTask arranges for one at a future deadline. Tasks
// scheduled close enough to "now" (within minTimeToSchedule) are pushed
// immediately instead, since the bookkeeping to schedule them would cost
// more than just running them.
//
// TaskExecutor embeds ExecutorBase, so it implements Executor once it's
// handed to a SingleThreadExecution or PoolExecution (or driven directly,
// for tests).
type TaskExecutor struct {
	ExecutorBase

	minTimeToSchedule time.Duration
	finishTasksOnExit bool

	mu         sync.Mutex
	locked     bool // set by LockTasks, cleared by UnlockTasks; the L methods do not check it
	nextID     TaskID
	queue      []taskWithID
	executing  []taskWithID // swapped in from queue at the start of update
	timed      timedQueue[timedTask]
}

// NewTaskExecutor creates a TaskExecutor. minTimeToSchedule is the
// threshold below which ScheduleTask runs the task immediately instead of
// scheduling it; 20ms is used if minTimeToSchedule is zero or negative.
func NewTaskExecutor(minTimeToSchedule time.Duration) *TaskExecutor {
	if minTimeToSchedule <= 0 {
		minTimeToSchedule = 20 * time.Millisecond
	}
	return &TaskExecutor{minTimeToSchedule: minTimeToSchedule}
}

// SetFinishTasksOnExit controls whether finalize() drains and runs every
// still-pending immediate task before the executor shuts down (scheduled
// tasks are never run at shutdown, on the theory that anything timed is,
// by definition, not urgent). Default is false.
func (t *TaskExecutor) SetFinishTasksOnExit(b bool) {
	t.mu.Lock()
	t.finishTasksOnExit = b
	t.mu.Unlock()
}

// TaskLocker batches several task operations under a single lock
// acquisition, which matters when, say, pushing a batch of related tasks
// that should appear atomically to a concurrent update(). Release it with
// Unlock when done; it is not safe to use concurrently with itself.
type TaskLocker struct {
	executor *TaskExecutor
}

// TaskLocker acquires the task lock and returns a locker through which
// the L-suffixed methods may be called. The caller must call Unlock.
func (t *TaskExecutor) TaskLocker() TaskLocker {
	t.LockTasks()
	return TaskLocker{executor: t}
}

// Unlock releases the lock acquired by TaskLocker.
func (l TaskLocker) Unlock() {
	if l.executor != nil {
		l.executor.UnlockTasks()
	}
}

// PushTaskL enqueues task for the next update(), under an already-held
// task lock. ownToken (if non-zero) tags the task for later bulk
// cancellation. tasksToCancelToken (if non-zero) is cancelled first, so a
// caller can atomically replace a prior batch of tasks with a new one.
func (l TaskLocker) PushTaskL(task Task, ownToken, tasksToCancelToken CancelToken) TaskID {
	return l.executor.pushTaskL(task, ownToken, tasksToCancelToken)
}

// ScheduleTaskL is PushTaskL's scheduled counterpart: task runs after
// timeFromNow, or immediately if timeFromNow is below the executor's
// minTimeToSchedule.
func (l TaskLocker) ScheduleTaskL(timeFromNow time.Duration, task Task, ownToken, tasksToCancelToken CancelToken) TaskID {
	return l.executor.scheduleTaskL(timeFromNow, task, ownToken, tasksToCancelToken)
}

// RescheduleTaskL moves a previously scheduled task's deadline.
func (l TaskLocker) RescheduleTaskL(timeFromNow time.Duration, id TaskID) bool {
	return l.executor.rescheduleTaskL(timeFromNow, id)
}

// PushTask enqueues task for the next update(). It's equivalent to
// acquiring a TaskLocker, calling PushTaskL, and unlocking, for the
// common case of a single task.
func (t *TaskExecutor) PushTask(task Task, ownToken, tasksToCancelToken CancelToken) TaskID {
	l := t.TaskLocker()
	defer l.Unlock()
	return l.PushTaskL(task, ownToken, tasksToCancelToken)
}

// ScheduleTask is PushTask's scheduled counterpart.
func (t *TaskExecutor) ScheduleTask(timeFromNow time.Duration, task Task, ownToken, tasksToCancelToken CancelToken) TaskID {
	l := t.TaskLocker()
	defer l.Unlock()
	return l.ScheduleTaskL(timeFromNow, task, ownToken, tasksToCancelToken)
}

// RescheduleTask moves a previously scheduled task's deadline.
func (t *TaskExecutor) RescheduleTask(timeFromNow time.Duration, id TaskID) bool {
	l := t.TaskLocker()
	defer l.Unlock()
	return l.RescheduleTaskL(timeFromNow, id)
}

// LockTasks acquires the task mutex directly; pair with UnlockTasks.
// Prefer TaskLocker, whose Unlock releases it (PushTask and its siblings
// pair the two via defer).
func (t *TaskExecutor) LockTasks() {
	t.mu.Lock()
	t.locked = true
}

// UnlockTasks releases the task mutex and wakes the executor, since
// something presumably changed while it was locked.
func (t *TaskExecutor) UnlockTasks() {
	t.locked = false
	t.mu.Unlock()
	t.WakeUpNow()
}

func (t *TaskExecutor) nextIDLocked() TaskID {
	t.nextID++
	return t.nextID
}

// pushTaskL is PushTaskL's unexported implementation; it and its siblings
// below assume t.mu is already held, per the "L" suffix convention for
// lock-assumed entry points.
func (t *TaskExecutor) pushTaskL(task Task, ownToken, tasksToCancelToken CancelToken) TaskID {
	t.cancelTasksWithTokenL(tasksToCancelToken)
	id := t.nextIDLocked()
	t.queue = append(t.queue, taskWithID{task: task, id: id, token: ownToken})
	return id
}

func (t *TaskExecutor) scheduleTaskL(timeFromNow time.Duration, task Task, ownToken, tasksToCancelToken CancelToken) TaskID {
	if timeFromNow < t.minTimeToSchedule {
		return t.pushTaskL(task, ownToken, tasksToCancelToken)
	}
	t.cancelTasksWithTokenL(tasksToCancelToken)
	id := t.nextIDLocked()
	deadline := time.Now().Add(timeFromNow)
	t.timed.push(deadline, timedTask{taskWithID{task: task, id: id, token: ownToken}})
	return id
}

// CancelTask cancels a previously pushed or scheduled task by id. It
// reports whether the task was found and removed from the pending queues.
// A false result means one of three things: the id was never valid, the
// task is currently executing, or it already finished -- the caller can't
// distinguish which.
func (t *TaskExecutor) CancelTask(id TaskID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelTaskL(id)
}

func (t *TaskExecutor) cancelTaskL(id TaskID) bool {
	for i, tk := range t.queue {
		if tk.id == id {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return true
		}
	}
	_, ok := t.timed.tryExtract(func(tt timedTask) bool { return tt.id == id })
	return ok
}

func (t *TaskExecutor) rescheduleTaskL(timeFromNow time.Duration, id TaskID) bool {
	if timeFromNow < t.minTimeToSchedule {
		tt, ok := t.timed.tryExtract(func(tt timedTask) bool { return tt.id == id })
		if !ok {
			return false
		}
		t.queue = append(t.queue, tt.taskWithID)
		return true
	}
	newTime := time.Now().Add(timeFromNow)
	return t.timed.tryReschedule(newTime, func(tt timedTask) bool { return tt.id == id })
}

// CancelTasksWithToken cancels every pending task (queued or scheduled)
// carrying token, and reports how many were removed. Token 0 matches
// nothing and returns 0 without acquiring the lock. Tasks already
// executing, or already promoted to the immediate queue for this
// update(), are not affected -- there may be more than one such task.
func (t *TaskExecutor) CancelTasksWithToken(token CancelToken) int {
	if token == 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelTasksWithTokenL(token)
}

func (t *TaskExecutor) cancelTasksWithTokenL(token CancelToken) int {
	if token == 0 {
		return 0
	}
	kept := t.queue[:0]
	removed := 0
	for _, tk := range t.queue {
		if tk.token == token {
			removed++
			continue
		}
		kept = append(kept, tk)
	}
	t.queue = kept
	removed += t.timed.eraseAll(func(tt timedTask) bool { return tt.token == token })
	return removed
}

// fillExecutingLocked swaps the pending queue into the executing buffer,
// leaving the queue empty for new pushes that happen while update() runs.
// Reusing the same two slices across calls means steady-state task
// traffic settles into zero allocations once both slices reach their peak
// size.
func (t *TaskExecutor) fillExecutingLocked() {
	t.executing, t.queue = t.queue, t.executing[:0]
}

func (t *TaskExecutor) executeTasks() {
	for _, tk := range t.executing {
		t.runOne(tk.task)
	}
	t.executing = t.executing[:0]
}

// runOne invokes a task closure, recovering a panic into a logged
// diagnostic rather than letting it escape into the owning
// ExecutionContext's worker goroutine. A misbehaving task shouldn't be
// able to take an entire pool or thread down with it.
func (t *TaskExecutor) runOne(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger().Error("xec: task panicked", zap.Any("panic", r))
		}
	}()
	task()
}

// update drains the immediate queue and promotes any scheduled tasks
// whose deadline falls within minTimeToSchedule of now, then runs
// everything collected. If scheduled tasks remain, the next wake-up is
// arranged for the earliest of them.
func (t *TaskExecutor) update() {
	t.mu.Lock()
	t.fillExecutingLocked()

	if !t.timed.empty() {
		now := time.Now()
		maxTimeToExecute := now.Add(t.minTimeToSchedule)
		for {
			topDeadline := t.timed.topDeadline()
			if !topDeadline.After(maxTimeToExecute) {
				tt := t.timed.pop()
				t.executing = append(t.executing, tt.taskWithID)
				if t.timed.empty() {
					t.UnscheduleNextWakeUp()
					break
				}
			} else {
				t.ScheduleNextWakeUp(topDeadline.Sub(now))
				break
			}
		}
	}

	t.mu.Unlock()

	t.executeTasks()
}

// finalize drains and runs whatever immediate tasks remain if
// SetFinishTasksOnExit(true) was called -- looping, since a finishing
// task may itself push another one -- then clears every queue
// unconditionally so nothing lingers holding references after shutdown.
// Scheduled tasks are never run here: by the time an executor is
// finalizing, anything merely timed is assumed non-essential.
func (t *TaskExecutor) finalize() {
	t.mu.Lock()
	finishOnExit := t.finishTasksOnExit
	t.mu.Unlock()

	if finishOnExit {
		for {
			t.mu.Lock()
			t.fillExecutingLocked()
			t.mu.Unlock()

			if len(t.executing) == 0 {
				break
			}
			t.executeTasks()
		}
	}

	t.mu.Lock()
	t.queue = nil
	t.timed.clear()
	t.mu.Unlock()
}
