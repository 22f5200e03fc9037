package xec

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExecutor struct {
	ExecutorBase
	updates    int32
	finalized  int32
	onUpdate   func()
}

func (c *countingExecutor) update() {
	atomic.AddInt32(&c.updates, 1)
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

func (c *countingExecutor) finalize() {
	atomic.AddInt32(&c.finalized, 1)
}

func TestSingleThreadExecutionRunsAndStops(t *testing.T) {
	e := &countingExecutor{}
	exec := NewSingleThreadExecution(e)
	exec.LaunchThread("")

	e.WakeUpNow()
	e.WakeUpNow()

	// give the worker a moment to process the wake-ups before stopping
	time.Sleep(20 * time.Millisecond)

	exec.StopAndJoinThread()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&e.updates), int32(1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&e.finalized))
}

func TestSingleThreadExecutionScheduledWakeUp(t *testing.T) {
	e := &countingExecutor{}
	woke := make(chan struct{}, 1)
	e.onUpdate = func() {
		// the first update comes from the context's initial pending work;
		// it only arranges the scheduled wake-up
		if atomic.LoadInt32(&e.updates) == 1 {
			e.ScheduleNextWakeUp(10 * time.Millisecond)
			return
		}
		select {
		case woke <- struct{}{}:
		default:
		}
	}

	exec := NewSingleThreadExecution(e)
	exec.LaunchThread("")

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("scheduled wake-up never triggered an update")
	}

	exec.StopAndJoinThread()
}

func TestSingleThreadExecutionBuffersWakeUpBeforeLaunch(t *testing.T) {
	e := &countingExecutor{}
	e.WakeUpNow() // buffered via initialContext, before any context exists

	exec := NewSingleThreadExecution(e)
	require.NotNil(t, exec)
	exec.LaunchThread("")

	time.Sleep(20 * time.Millisecond)
	exec.StopAndJoinThread()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&e.updates), int32(1))
}
