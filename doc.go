// Package xec is a small concurrent execution library.
//
// It separates *what runs* (an Executor, which only knows how to `update()`
// pending work and `finalize()` gracefully) from *where and when it runs*
// (an ExecutionContext, which mediates wake-ups, scheduling, and stop).
//
// Three personalities build on the same ExecutionContext contract:
//
//   - SingleThreadExecution dedicates one goroutine to exactly one executor.
//   - PoolExecution multiplexes many executors onto a shared, bounded set of
//     worker goroutines while still serializing each executor's updates.
//   - TaskExecutor is a concrete ExecutorBase that turns the wake-up/schedule
//     contract into a closure queue, with an immediate FIFO and a
//     priority-ordered timed queue, plus cancellation by id or group token.
//
// None of this does work-stealing, preempts a running update, persists
// scheduled work, or makes real-time guarantees. It is deliberately small.
package xec
