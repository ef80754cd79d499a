// Package graph provides the read-only knowledge-graph contract over the
// user's API catalog, plus the client implementations the server ships with:
// a remote HTTP client for a graph service and an in-memory index for local
// catalogs. Catalog ingestion happens elsewhere; this package only queries
// the finished graph.
package graph

import (
	"context"
	"encoding/json"
)

// Candidate is one ranked entity match for a prompt.
type Candidate struct {
	// EntityName is the catalog service the candidate belongs to.
	EntityName string `json:"entity_name"`

	// OperationKeys lists the matched operations as "service.operation".
	OperationKeys []string `json:"operation_keys"`

	// Confidence ranks candidates; higher is better. Values are comparable
	// within one query only.
	Confidence float64 `json:"confidence"`
}

// OperationBundle is the per-operation prompt material: everything a step
// implementer needs to generate code against one REST operation.
type OperationBundle struct {
	OperationID    string          `json:"operation_id"`
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	RequestSchema  json.RawMessage `json:"request_schema,omitempty"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
	Examples       []string        `json:"examples,omitempty"`
	DocsMarkdown   string          `json:"docs_markdown,omitempty"`
}

// KnowledgeGraph is the read contract the orchestration core depends on.
// Both operations return (nil, nil) when nothing matches.
type KnowledgeGraph interface {
	// QueryContext resolves the entities and operations relevant to a
	// prompt, ranked by confidence.
	QueryContext(ctx context.Context, prompt string) ([]Candidate, error)

	// QueryOperationForPrompt fetches the prompt bundle for one operation
	// key ("service.operation").
	QueryOperationForPrompt(ctx context.Context, operationKey string) (*OperationBundle, error)
}
