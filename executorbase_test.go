package xec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingContext is a minimal ExecutionContext used to observe what
// ExecutorBase replays onto a freshly attached context.
type recordingContext struct {
	stopped   bool
	wokenUp   bool
	scheduled time.Duration
	hasSched  bool
	running_  bool
}

func newRecordingContext() *recordingContext { return &recordingContext{running_: true} }

func (c *recordingContext) wakeUpNow()                         { c.wokenUp = true }
func (c *recordingContext) scheduleNextWakeUp(d time.Duration)  { c.scheduled = d; c.hasSched = true }
func (c *recordingContext) unscheduleNextWakeUp()               { c.hasSched = false }
func (c *recordingContext) stop()                               { c.stopped = true; c.running_ = false }
func (c *recordingContext) running() bool                       { return c.running_ }

type stubExecutor struct {
	ExecutorBase
}

func (s *stubExecutor) update() {}

func TestExecutorBaseBuffersBeforeAttach(t *testing.T) {
	e := &stubExecutor{}
	e.WakeUpNow()

	ctx := newRecordingContext()
	e.setExecutionContext(ctx)

	assert.True(t, ctx.wokenUp)
	assert.False(t, ctx.stopped)
}

func TestExecutorBaseReplaysStopOverWakeUp(t *testing.T) {
	e := &stubExecutor{}
	e.WakeUpNow()
	e.Stop()

	ctx := newRecordingContext()
	e.setExecutionContext(ctx)

	assert.True(t, ctx.stopped)
}

func TestExecutorBaseReplaysElapsedScheduleAsWakeUp(t *testing.T) {
	e := &stubExecutor{}
	e.ScheduleNextWakeUp(-time.Millisecond) // already "in the past"

	ctx := newRecordingContext()
	e.setExecutionContext(ctx)

	assert.True(t, ctx.wokenUp)
	assert.False(t, ctx.hasSched)
}

func TestExecutorBaseReplaysFutureSchedule(t *testing.T) {
	e := &stubExecutor{}
	e.ScheduleNextWakeUp(time.Hour)

	ctx := newRecordingContext()
	e.setExecutionContext(ctx)

	assert.False(t, ctx.wokenUp)
	require.True(t, ctx.hasSched)
	assert.InDelta(t, time.Hour.Seconds(), ctx.scheduled.Seconds(), 1)
}

func TestExecutorBaseDoubleAttachPanics(t *testing.T) {
	e := &stubExecutor{}
	e.setExecutionContext(newRecordingContext())

	assert.Panics(t, func() {
		e.setExecutionContext(newRecordingContext())
	})
}

func TestExecutorBaseProxiesAfterAttach(t *testing.T) {
	e := &stubExecutor{}
	ctx := newRecordingContext()
	e.setExecutionContext(ctx)

	e.WakeUpNow()
	assert.True(t, ctx.wokenUp)

	e.Stop()
	assert.True(t, ctx.stopped)
	assert.False(t, e.Running())
}
