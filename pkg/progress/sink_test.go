package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector is a test Emitter.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Emit(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) list() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// manualClock advances only when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSink_BeginAndEndNeverDropped(t *testing.T) {
	c := &collector{}
	clock := newManualClock()
	s := NewSink(c, SinkOptions{MinInterval: time.Hour, MinDelta: 1000, Clock: clock.Now})

	s.BeginStage(StageExec, "run", 10)
	for i := 1; i <= 10; i++ {
		s.Step(StageExec, i, "step", nil)
	}
	s.EndStageOk(StageExec, nil)

	events := c.list()
	// begin + first step (always passes) + end.
	require.Len(t, events, 3)
	assert.Equal(t, StatusBegin, events[0].Status)
	assert.Equal(t, StatusRunning, events[1].Status)
	assert.Equal(t, 1, events[1].Completed)
	assert.Equal(t, StatusOK, events[2].Status)
	assert.Equal(t, 10, events[2].Completed)
}

func TestSink_RateLimitIntervalOrDelta(t *testing.T) {
	c := &collector{}
	clock := newManualClock()
	s := NewSink(c, SinkOptions{MinInterval: 100 * time.Millisecond, MinDelta: 5, Clock: clock.Now})

	s.BeginStage(StageExec, "run", 100)
	s.Step(StageExec, 1, "first", nil) // always passes
	s.Step(StageExec, 2, "dropped", nil)

	clock.Advance(100 * time.Millisecond)
	s.Step(StageExec, 3, "interval", nil) // Δt >= minInterval

	s.Step(StageExec, 8, "delta", nil) // Δcompleted >= minDelta
	s.Step(StageExec, 9, "dropped", nil)

	var running []Event
	for _, e := range c.list() {
		if e.Status == StatusRunning {
			running = append(running, e)
		}
	}
	require.Len(t, running, 3)
	assert.Equal(t, []int{1, 3, 8}, []int{running[0].Completed, running[1].Completed, running[2].Completed})
}

func TestSink_ZeroGatesAlwaysPass(t *testing.T) {
	c := &collector{}
	clock := newManualClock()
	s := NewSink(c, SinkOptions{Clock: clock.Now})

	s.BeginStage(StageExec, "run", 3)
	s.Step(StageExec, 1, "", nil)
	s.Step(StageExec, 2, "", nil)
	s.Step(StageExec, 3, "", nil)

	count := 0
	for _, e := range c.list() {
		if e.Status == StatusRunning {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestSink_MonotonicAndClamped(t *testing.T) {
	c := &collector{}
	s := NewSink(c, SinkOptions{Clock: newManualClock().Now})

	s.BeginStage(StageExec, "run", 5)
	s.Step(StageExec, 3, "", nil)
	s.Step(StageExec, 2, "", nil) // regress: held at 3
	s.Step(StageExec, 9, "", nil) // above total: clamped to 5

	events := c.list()
	completed := []int{}
	for _, e := range events {
		if e.Status == StatusRunning {
			completed = append(completed, e.Completed)
		}
	}
	assert.Equal(t, []int{3, 3, 5}, completed)
	for _, e := range events {
		assert.LessOrEqual(t, e.Completed, 5)
	}
}

func TestSink_StepAfterEndIgnored(t *testing.T) {
	c := &collector{}
	s := NewSink(c, SinkOptions{Clock: newManualClock().Now})

	s.BeginStage(StagePlan, "plan", 0)
	s.EndStageOk(StagePlan, nil)
	s.Step(StagePlan, 1, "late", nil)
	s.EndStageError(StagePlan, "twice", nil)

	events := c.list()
	require.Len(t, events, 2)
	assert.Equal(t, StatusOK, events[1].Status)
}

func TestSink_StepForUnknownStageIgnored(t *testing.T) {
	c := &collector{}
	s := NewSink(c, SinkOptions{Clock: newManualClock().Now})

	s.Step(StageExec, 1, "orphan", nil)
	assert.Empty(t, c.list())
}

func TestSink_EndStageError(t *testing.T) {
	c := &collector{}
	s := NewSink(c, SinkOptions{Clock: newManualClock().Now})

	s.BeginStage(StageExec, "run", 4)
	s.Step(StageExec, 2, "", nil)
	s.EndStageError(StageExec, "StepExhausted: step failed", map[string]any{"step": "t1"})

	events := c.list()
	last := events[len(events)-1]
	assert.Equal(t, StatusError, last.Status)
	assert.Equal(t, "StepExhausted: step failed", last.Message)
	// Error keeps the last observed completed, not the total.
	assert.Equal(t, 2, last.Completed)
	assert.Equal(t, "t1", last.Attrs["step"])
}

func TestSink_EndStageCancelled(t *testing.T) {
	c := &collector{}
	s := NewSink(c, SinkOptions{Clock: newManualClock().Now})

	s.BeginStage(StageExec, "run", 4)
	s.EndStageCancelled(StageExec, "Cancelled", nil)

	events := c.list()
	assert.Equal(t, StatusCancelled, events[len(events)-1].Status)
}

func TestSink_IsCancelled(t *testing.T) {
	cancelled := false
	s := NewSink(&collector{}, SinkOptions{IsCancelled: func() bool { return cancelled }})
	assert.False(t, s.IsCancelled())
	cancelled = true
	assert.True(t, s.IsCancelled())
}

func TestSink_PercentAndProtocolVersion(t *testing.T) {
	c := &collector{}
	s := NewSink(c, SinkOptions{Clock: newManualClock().Now})

	s.BeginStage(StageExec, "run", 4)
	s.Step(StageExec, 1, "", nil)
	s.EndStageOk(StageExec, nil)

	events := c.list()
	assert.Equal(t, 0, events[0].Percent)
	assert.Equal(t, 25, events[1].Percent)
	assert.Equal(t, 100, events[2].Percent)
	for _, e := range events {
		assert.Equal(t, ProtocolVersion, e.ProtocolVersion)
	}
}

func TestNoopSink(t *testing.T) {
	s := NewNoopSink(nil)
	s.BeginStage(StageExec, "run", 1)
	s.Step(StageExec, 1, "", nil)
	s.EndStageOk(StageExec, nil)
	assert.False(t, s.IsCancelled())

	cancelled := NewNoopSink(func() bool { return true })
	assert.True(t, cancelled.IsCancelled())
}
