package xec

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioSingleThreadCounter drives a TaskExecutor directly (no
// worker goroutine) through a batch of increments/decrements, mirroring
// what a single-thread execution would deliver in one update cycle.
func TestScenarioSingleThreadCounter(t *testing.T) {
	te := NewTaskExecutor(0)

	var counter int
	for i := 0; i < 37; i++ {
		te.PushTask(func() { counter++ }, 0, 0)
	}
	te.update()
	assert.Equal(t, 37, counter)

	for i := 0; i < 37; i++ {
		te.PushTask(func() { counter-- }, 0, 0)
	}
	for i := 0; i < 74; i++ {
		te.PushTask(func() { counter++ }, 0, 0)
	}
	for i := 0; i < 37; i++ {
		te.PushTask(func() { counter-- }, 0, 0)
	}
	te.update()
	assert.Equal(t, 37, counter)
}

// TestScenarioCancelByID pushes a batch of id-carrying tasks, cancels one,
// and checks the surviving sum.
func TestScenarioCancelByID(t *testing.T) {
	te := NewTaskExecutor(0)

	var sum int64
	var cancelID TaskID
	var sumOfAll int64
	for i := 1; i <= 50; i++ {
		i := i
		id := te.PushTask(func() { atomic.AddInt64(&sum, int64(i)) }, 0, 0)
		sumOfAll += int64(i)
		if i == 25 {
			cancelID = id
		}
	}

	require.True(t, te.CancelTask(cancelID))
	te.update()

	assert.Equal(t, sumOfAll-25, sum)
}

// TestScenarioCancelByToken exercises token-grouped cancellation across
// several interleaved batches, including the token-0 no-op case.
func TestScenarioCancelByToken(t *testing.T) {
	te := NewTaskExecutor(0)

	var counter int
	var token0Sum, token2Sum int

	push := func(token CancelToken, values []int, accumulate *int) {
		for _, v := range values {
			v := v
			te.PushTask(func() { counter += v; if accumulate != nil { *accumulate += v } }, token, 0)
		}
	}

	push(1, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, nil)
	push(0, []int{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, &token0Sum)
	push(2, []int{21, 22, 23, 24, 25, 26, 27, 28, 29, 30}, &token2Sum)
	push(0, []int{31, 32, 33, 34, 35, 36, 37, 38, 39, 40}, &token0Sum)
	push(3, []int{41, 42, 43, 44, 45, 46, 47, 48, 49, 50}, nil)
	push(0, []int{51, 52, 53, 54, 55, 56, 57, 58, 59, 60}, &token0Sum)

	assert.Equal(t, 10, te.CancelTasksWithToken(1))
	assert.Equal(t, 10, te.CancelTasksWithToken(3))
	assert.Equal(t, 0, te.CancelTasksWithToken(0))

	te.update()
	assert.Equal(t, token0Sum+token2Sum, counter)
}

// TestScenarioFinishTasksOnExit schedules a near task, a far task, pushes
// an immediate one, then stops with finishTasksOnExit=true: only the near
// and immediate tasks should run.
func TestScenarioFinishTasksOnExit(t *testing.T) {
	te := NewTaskExecutor(5 * time.Millisecond)
	te.SetFinishTasksOnExit(true)

	var aRan, bRan, cRan bool
	te.ScheduleTask(time.Millisecond, func() { aRan = true }, 0, 0)
	te.ScheduleTask(100*time.Second, func() { bRan = true }, 0, 0)
	te.PushTask(func() { cRan = true }, 0, 0)

	exec := NewSingleThreadExecution(te)
	exec.LaunchThread("")
	exec.StopAndJoinThread()

	assert.True(t, cRan, "immediate task must run before shutdown")
	assert.True(t, aRan, "a task close enough to its deadline should run before shutdown")
	assert.False(t, bRan, "a task scheduled far in the future must not run on shutdown")
}

// TestScenarioRescheduleOrdering reschedules X to run after Y, and checks
// that Y really does run first.
func TestScenarioRescheduleOrdering(t *testing.T) {
	te := NewTaskExecutor(5 * time.Millisecond)

	var mu sync.Mutex
	var order []string

	xID := te.ScheduleTask(30*time.Millisecond, func() {
		mu.Lock()
		order = append(order, "X")
		mu.Unlock()
	}, 0, 0)

	require.True(t, te.RescheduleTask(60*time.Millisecond, xID))

	te.ScheduleTask(50*time.Millisecond, func() {
		mu.Lock()
		order = append(order, "Y")
		mu.Unlock()
	}, 0, 0)

	time.Sleep(70 * time.Millisecond)
	te.update()
	te.update()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []string{"Y", "X"}, order)
}

// TestScenarioPoolEightExecutors registers 8 TaskExecutors on a 4-worker
// pool and pushes 1000 increments to each, checking every counter lands
// on exactly 1000 with no executor ever re-entering its own update.
func TestScenarioPoolEightExecutors(t *testing.T) {
	pool := &PoolExecution{}

	const executors = 8
	const tasksPerExecutor = 1000

	tes := make([]*TaskExecutor, executors)
	counters := make([]int64, executors)
	reentered := make([]int32, executors)
	inUpdate := make([]int32, executors)

	for i := range tes {
		te := NewTaskExecutor(0)
		tes[i] = te
		pool.AddExecutor(te)
	}
	pool.LaunchThreads(4, "")

	var wg sync.WaitGroup
	wg.Add(executors * tasksPerExecutor)

	for i, te := range tes {
		i, te := i, te
		for j := 0; j < tasksPerExecutor; j++ {
			te.PushTask(func() {
				if !atomic.CompareAndSwapInt32(&inUpdate[i], 0, 1) {
					atomic.AddInt32(&reentered[i], 1)
				}
				atomic.AddInt64(&counters[i], 1)
				atomic.StoreInt32(&inUpdate[i], 0)
				wg.Done()
			}, 0, 0)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("not all 8000 tasks completed in time")
	}

	pool.StopAndJoinThreads()

	for i := range tes {
		assert.Equal(t, int64(tasksPerExecutor), atomic.LoadInt64(&counters[i]))
		assert.Equal(t, int32(0), atomic.LoadInt32(&reentered[i]))
	}
}
