// Package memory implements the per-request shared value store. Snippets
// publish named values after a successful step; later steps and the summary
// composer read them. The store lives exactly as long as one execution
// request and is never persisted.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ErrInvalidIdentifier is returned for writes whose identifier does not match
// the identifier grammar (ASCII letter followed by letters, digits or '_').
var ErrInvalidIdentifier = fmt.Errorf("invalid memory identifier")

// Entry is one named value in shared memory.
type Entry struct {
	// Identifier is the stable name of the value.
	Identifier string `json:"identifier"`

	// Description states the human-readable purpose of the value.
	Description string `json:"description,omitempty"`

	// Model is a JSON-schema-like structural description of the value shape.
	Model json.RawMessage `json:"model,omitempty"`

	// Value is the JSON-representable payload. No live object references.
	Value json.RawMessage `json:"value"`
}

// ValidIdentifier reports whether id matches the identifier grammar.
func ValidIdentifier(id string) bool {
	if len(id) == 0 {
		return false
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_'):
		default:
			return false
		}
	}
	return true
}

// SharedMemory is the request-scoped identifier → Entry mapping. Reads are
// concurrent; writes replace. Steps execute serially, so a single writer at
// a time is guaranteed by the executor, but the store is safe for concurrent
// readers (runtime context builder, summary composer) regardless.
type SharedMemory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty SharedMemory.
func New() *SharedMemory {
	return &SharedMemory{entries: make(map[string]Entry)}
}

// Put stores an entry, replacing any previous value under the same
// identifier. Returns ErrInvalidIdentifier for names outside the grammar.
func (m *SharedMemory) Put(e Entry) error {
	if !ValidIdentifier(e.Identifier) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, e.Identifier)
	}
	m.mu.Lock()
	m.entries[e.Identifier] = e
	m.mu.Unlock()
	return nil
}

// Get returns the entry for id. The second return is false when the
// identifier is absent; reads never fail.
func (m *SharedMemory) Get(id string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// Delete removes an entry if present.
func (m *SharedMemory) Delete(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// Len returns the number of stored entries.
func (m *SharedMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Snapshot returns all entries sorted by identifier. The returned slice is
// independent of the store.
func (m *SharedMemory) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identifier < entries[j].Identifier })
	return entries
}

// Dump renders the store as a JSON object keyed by identifier. Used by the
// summary composer to show the LLM the final state of the value store.
func (m *SharedMemory) Dump() (json.RawMessage, error) {
	snapshot := m.Snapshot()
	dump := make(map[string]json.RawMessage, len(snapshot))
	for _, e := range snapshot {
		dump[e.Identifier] = e.Value
	}
	out, err := json.Marshal(dump)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal memory dump: %w", err)
	}
	return out, nil
}
