package snippet

import (
	"context"
	"sync"
)

// FakeRuntime is a scripted Runtime for tests and local development. Each
// Compile/Run call consumes the next scripted outcome; when the script is
// exhausted the default outcome (success) applies.
type FakeRuntime struct {
	mu sync.Mutex

	// CompileScript holds outcomes consumed in order by Compile.
	CompileScript []CompileResult

	// RunScript holds outcomes consumed in order by Run.
	RunScript []RunResult

	// CompileErr and RunErr, when set, are returned by every call instead
	// of a scripted result (simulates a broken sandbox).
	CompileErr error
	RunErr     error

	// Recorded calls, in order.
	CompiledSnippets []string
	RunContexts      []RunContext
}

// NewFakeRuntime creates an empty FakeRuntime (everything succeeds).
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{}
}

// Compile implements Runtime.
func (f *FakeRuntime) Compile(_ context.Context, snippet string) (*CompileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CompileErr != nil {
		return nil, f.CompileErr
	}
	f.CompiledSnippets = append(f.CompiledSnippets, snippet)

	if len(f.CompileScript) > 0 {
		result := f.CompileScript[0]
		f.CompileScript = f.CompileScript[1:]
		return &result, nil
	}
	return &CompileResult{Artifact: Artifact{ID: "fake-artifact"}}, nil
}

// Run implements Runtime.
func (f *FakeRuntime) Run(_ context.Context, _ Artifact, rc RunContext) (*RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunErr != nil {
		return nil, f.RunErr
	}
	f.RunContexts = append(f.RunContexts, rc)

	if len(f.RunScript) > 0 {
		result := f.RunScript[0]
		f.RunScript = f.RunScript[1:]
		return &result, nil
	}
	return &RunResult{Summary: "ok"}, nil
}

// CompileCalls returns the number of Compile invocations.
func (f *FakeRuntime) CompileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.CompiledSnippets)
}

// RunCalls returns the number of Run invocations.
func (f *FakeRuntime) RunCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.RunContexts)
}
