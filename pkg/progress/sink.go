package progress

import (
	"sync"
	"time"
)

// Sink is the progress contract the orchestration core reports through.
// Implementations must serialize concurrent callers internally.
type Sink interface {
	// BeginStage opens a stage. Never dropped.
	BeginStage(id StageID, label string, total int)

	// Step reports intra-stage progress. Subject to rate limiting.
	Step(id StageID, completed int, message string, attrs map[string]any)

	// EndStageOk closes a stage successfully. Never dropped.
	EndStageOk(id StageID, attrs map[string]any)

	// EndStageError closes a stage with an error summary. Never dropped.
	EndStageError(id StageID, summary string, attrs map[string]any)

	// EndStageCancelled closes a stage after cooperative cancellation.
	// Never dropped.
	EndStageCancelled(id StageID, summary string, attrs map[string]any)

	// IsCancelled reports whether the caller has requested cancellation.
	IsCancelled() bool
}

// Emitter receives the events a sink decides to deliver.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(e Event) { f(e) }

// Clock abstracts time for the rate limiter so tests control it.
type Clock func() time.Time

// SinkOptions configure a rate-limited sink.
type SinkOptions struct {
	// MinInterval is the minimum time between consecutive step emissions
	// for a stage. Zero means the time gate always passes.
	MinInterval time.Duration

	// MinDelta is the minimum completed-work delta between consecutive step
	// emissions for a stage. Zero means the delta gate always passes.
	MinDelta int

	// Clock defaults to time.Now.
	Clock Clock

	// IsCancelled reports caller cancellation. Defaults to "never".
	IsCancelled func() bool
}

// stageState tracks per-stage rate-limiter state.
type stageState struct {
	label     string
	total     int
	completed int // last observed completed, monotonic
	lastEmit  time.Time
	emitted   int // last emitted completed value
	anyEmit   bool
	closed    bool
}

// RateLimitedSink delivers begin/end events unconditionally and step events
// under the "interval elapsed OR delta reached" policy. The first step event
// of a stage always passes. Completed values are forced monotonic and
// clamped to the stage total.
type RateLimitedSink struct {
	mu      sync.Mutex
	emitter Emitter
	opts    SinkOptions
	stages  map[StageID]*stageState
}

// NewSink creates a rate-limited sink delivering to emitter.
func NewSink(emitter Emitter, opts SinkOptions) *RateLimitedSink {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IsCancelled == nil {
		opts.IsCancelled = func() bool { return false }
	}
	return &RateLimitedSink{
		emitter: emitter,
		opts:    opts,
		stages:  make(map[StageID]*stageState),
	}
}

// BeginStage implements Sink.
func (s *RateLimitedSink) BeginStage(id StageID, label string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &stageState{label: label, total: total}
	s.stages[id] = st
	s.emitter.Emit(Event{
		StageID:         id,
		Label:           label,
		Completed:       0,
		Total:           total,
		Percent:         percent(0, total),
		Status:          StatusBegin,
		ProtocolVersion: ProtocolVersion,
	})
}

// Step implements Sink.
func (s *RateLimitedSink) Step(id StageID, completed int, message string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stages[id]
	if st == nil || st.closed {
		return
	}

	// Monotonic, clamped to total.
	if completed < st.completed {
		completed = st.completed
	}
	if st.total > 0 && completed > st.total {
		completed = st.total
	}
	st.completed = completed

	now := s.opts.Clock()
	// Allow iff enough time elapsed OR enough work completed since the last
	// emission. The first step event of a stage always passes.
	if st.anyEmit {
		intervalOK := now.Sub(st.lastEmit) >= s.opts.MinInterval
		deltaOK := completed-st.emitted >= s.opts.MinDelta
		if !intervalOK && !deltaOK {
			return
		}
	}

	st.anyEmit = true
	st.lastEmit = now
	st.emitted = completed
	s.emitter.Emit(Event{
		StageID:         id,
		Label:           st.label,
		Completed:       completed,
		Total:           st.total,
		Percent:         percent(completed, st.total),
		Message:         message,
		Attrs:           attrs,
		Status:          StatusRunning,
		ProtocolVersion: ProtocolVersion,
	})
}

// EndStageOk implements Sink.
func (s *RateLimitedSink) EndStageOk(id StageID, attrs map[string]any) {
	s.endStage(id, StatusOK, "", attrs)
}

// EndStageError implements Sink.
func (s *RateLimitedSink) EndStageError(id StageID, summary string, attrs map[string]any) {
	s.endStage(id, StatusError, summary, attrs)
}

// EndStageCancelled implements Sink.
func (s *RateLimitedSink) EndStageCancelled(id StageID, summary string, attrs map[string]any) {
	s.endStage(id, StatusCancelled, summary, attrs)
}

// IsCancelled implements Sink.
func (s *RateLimitedSink) IsCancelled() bool {
	return s.opts.IsCancelled()
}

func (s *RateLimitedSink) endStage(id StageID, status Status, summary string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stages[id]
	if st == nil {
		st = &stageState{}
		s.stages[id] = st
	}
	if st.closed {
		return
	}
	st.closed = true

	completed := st.completed
	if status == StatusOK && st.total > 0 {
		completed = st.total
	}
	s.emitter.Emit(Event{
		StageID:         id,
		Label:           st.label,
		Completed:       completed,
		Total:           st.total,
		Percent:         percent(completed, st.total),
		Message:         summary,
		Attrs:           attrs,
		Status:          status,
		ProtocolVersion: ProtocolVersion,
	})
}

// NoopSink drops all events but still answers the cancellation query.
// Used when progress is disabled or the caller supplied no progress token.
type NoopSink struct {
	isCancelled func() bool
}

// NewNoopSink creates a sink that emits nothing. isCancelled may be nil.
func NewNoopSink(isCancelled func() bool) *NoopSink {
	if isCancelled == nil {
		isCancelled = func() bool { return false }
	}
	return &NoopSink{isCancelled: isCancelled}
}

// BeginStage implements Sink.
func (s *NoopSink) BeginStage(StageID, string, int) {}

// Step implements Sink.
func (s *NoopSink) Step(StageID, int, string, map[string]any) {}

// EndStageOk implements Sink.
func (s *NoopSink) EndStageOk(StageID, map[string]any) {}

// EndStageError implements Sink.
func (s *NoopSink) EndStageError(StageID, string, map[string]any) {}

// EndStageCancelled implements Sink.
func (s *NoopSink) EndStageCancelled(StageID, string, map[string]any) {}

// IsCancelled implements Sink.
func (s *NoopSink) IsCancelled() bool { return s.isCancelled() }
