package xec

import "time"

// ExecutionContext is the scheduler-side of an Executor: it mediates
// wake-up, scheduling, and stop. Every operation here must be safe to call
// concurrently, from any goroutine, whether or not the executor is
// currently being updated.
//
// ExecutionContext is only ever consumed through ExecutorBase; executors
// never see it directly, which is what lets ExecutorBase buffer calls made
// before a context exists (see initialContext in executorbase.go).
type ExecutionContext interface {
	// wakeUpNow requests that update() run as soon as possible. It is
	// idempotent: redundant concurrent calls collapse into at least one
	// future update(), never a storm of them.
	wakeUpNow()

	// scheduleNextWakeUp arranges a deadline at now+d. It overrides any
	// previously scheduled deadline, and is itself forgotten if a
	// wakeUpNow happens before it fires. A PoolExecution context reads the
	// deadline only when a worker releases the executor after update(), so
	// there it takes effect only when called from inside update(); a call
	// made while the executor is idle is dropped at its next dispatch.
	scheduleNextWakeUp(d time.Duration)

	// unscheduleNextWakeUp drops any pending deadline set by
	// scheduleNextWakeUp, without itself causing a wake-up.
	unscheduleNextWakeUp()

	// stop terminates execution at the next convenient point. Monotonic:
	// once running() is false, further calls are no-ops.
	stop()

	// running reports whether stop() has been called yet.
	running() bool
}
