package xec

import (
	"container/heap"
	"time"
)

// timedElement pairs a payload with the deadline it's ordered by.
type timedElement[T any] struct {
	deadline time.Time
	payload  T
}

// timedQueue is a min-heap of (deadline, payload) pairs, ordered so the
// earliest deadline always sits at index 0. Cancellation by arbitrary
// predicate is expected to be uncommon relative to push/pop, so it's a
// linear scan rather than an indexed heap.
//
// timedQueue is not safe for concurrent use; callers serialize access with
// their own mutex (PoolExecution's pool mutex and TaskExecutor's task
// mutex already guard the state around it).
type timedQueue[T any] struct {
	items timedHeap[T]
}

func (q *timedQueue[T]) push(deadline time.Time, payload T) {
	heap.Push(&q.items, timedElement[T]{deadline, payload})
}

func (q *timedQueue[T]) top() T {
	return q.items[0].payload
}

func (q *timedQueue[T]) topDeadline() time.Time {
	return q.items[0].deadline
}

func (q *timedQueue[T]) pop() T {
	e := heap.Pop(&q.items).(timedElement[T])
	return e.payload
}

func (q *timedQueue[T]) empty() bool {
	return len(q.items) == 0
}

func (q *timedQueue[T]) clear() {
	q.items = nil
}

// tryExtract removes the first element matching pred and returns it. The
// zero value and false are returned if nothing matches.
func (q *timedQueue[T]) tryExtract(pred func(T) bool) (T, bool) {
	for i, e := range q.items {
		if pred(e.payload) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			heap.Init(&q.items)
			return e.payload, true
		}
	}
	var zero T
	return zero, false
}

// tryReschedule overwrites the deadline of the first element matching pred
// and re-heapifies. Reports whether a match was found.
func (q *timedQueue[T]) tryReschedule(newTime time.Time, pred func(T) bool) bool {
	for i, e := range q.items {
		if pred(e.payload) {
			q.items[i].deadline = newTime
			heap.Init(&q.items)
			return true
		}
	}
	return false
}

// eraseAll removes every element matching pred in bulk, re-heapifying once,
// and returns how many were removed.
func (q *timedQueue[T]) eraseAll(pred func(T) bool) int {
	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if pred(e.payload) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.items = kept
	if removed > 0 {
		heap.Init(&q.items)
	}
	return removed
}

// timedHeap implements container/heap.Interface for timedElement[T]. It is
// only ever touched through timedQueue's methods.
type timedHeap[T any] []timedElement[T]

func (h timedHeap[T]) Len() int            { return len(h) }
func (h timedHeap[T]) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timedHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timedHeap[T]) Push(x interface{}) { *h = append(*h, x.(timedElement[T])) }
func (h *timedHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
