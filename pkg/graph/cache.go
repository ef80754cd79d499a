package graph

import (
	"context"
	"sync"
)

// CachedGraph memoizes graph reads for the lifetime of one execution
// request. The planner, the step implementer, and the executor all resolve
// the same operations repeatedly; the snapshot taken at plan time must stay
// stable for the whole request anyway, so caching is both a performance and
// a consistency measure.
type CachedGraph struct {
	inner KnowledgeGraph

	mu         sync.Mutex
	contexts   map[string][]Candidate
	operations map[string]*OperationBundle
}

// NewCachedGraph wraps inner with request-scoped memoization.
func NewCachedGraph(inner KnowledgeGraph) *CachedGraph {
	return &CachedGraph{
		inner:      inner,
		contexts:   make(map[string][]Candidate),
		operations: make(map[string]*OperationBundle),
	}
}

// QueryContext implements KnowledgeGraph.
func (g *CachedGraph) QueryContext(ctx context.Context, prompt string) ([]Candidate, error) {
	g.mu.Lock()
	cached, ok := g.contexts[prompt]
	g.mu.Unlock()
	if ok {
		return cached, nil
	}

	candidates, err := g.inner.QueryContext(ctx, prompt)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.contexts[prompt] = candidates
	g.mu.Unlock()
	return candidates, nil
}

// QueryOperationForPrompt implements KnowledgeGraph. Negative results
// (nil bundle) are cached too; an operation absent at plan time stays
// absent for the request.
func (g *CachedGraph) QueryOperationForPrompt(ctx context.Context, operationKey string) (*OperationBundle, error) {
	g.mu.Lock()
	cached, ok := g.operations[operationKey]
	g.mu.Unlock()
	if ok {
		return cached, nil
	}

	bundle, err := g.inner.QueryOperationForPrompt(ctx, operationKey)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.operations[operationKey] = bundle
	g.mu.Unlock()
	return bundle, nil
}
