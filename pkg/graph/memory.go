package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk shape of a finished graph for the in-memory
// implementation. It is a query index, not an ingestion input: schemas and
// docs are expected to be complete.
type Catalog struct {
	Services []CatalogService `yaml:"services"`
}

// CatalogService is one REST service in the catalog.
type CatalogService struct {
	Name       string             `yaml:"name"`
	Aliases    []string           `yaml:"aliases,omitempty"`
	Operations []CatalogOperation `yaml:"operations"`
}

// CatalogOperation is one operation of a service.
type CatalogOperation struct {
	Name           string   `yaml:"name"`
	Method         string   `yaml:"method"`
	Path           string   `yaml:"path"`
	Intents        []string `yaml:"intents,omitempty"`
	RequestSchema  string   `yaml:"request_schema,omitempty"`
	ResponseSchema string   `yaml:"response_schema,omitempty"`
	Examples       []string `yaml:"examples,omitempty"`
	Docs           string   `yaml:"docs,omitempty"`
}

// MemoryGraph answers graph queries from an in-memory catalog index.
// Matching is lexical: prompt tokens against service names, aliases,
// operation names, and intent verbs.
type MemoryGraph struct {
	services map[string]*indexedService // lowercase name → service
	bundles  map[string]*OperationBundle
}

type indexedService struct {
	name     string
	tokens   map[string]bool     // name + aliases, lowercased
	opKeys   []string
	opTokens map[string][]string // operationKey → name + intent tokens
}

// NewMemoryGraph builds the index from a catalog.
func NewMemoryGraph(catalog *Catalog) (*MemoryGraph, error) {
	g := &MemoryGraph{
		services: make(map[string]*indexedService),
		bundles:  make(map[string]*OperationBundle),
	}
	for _, svc := range catalog.Services {
		if svc.Name == "" {
			return nil, fmt.Errorf("catalog service with empty name")
		}
		idx := &indexedService{
			name:     svc.Name,
			tokens:   make(map[string]bool),
			opTokens: make(map[string][]string),
		}
		idx.tokens[strings.ToLower(svc.Name)] = true
		for _, alias := range svc.Aliases {
			idx.tokens[strings.ToLower(alias)] = true
		}

		for _, op := range svc.Operations {
			if op.Name == "" {
				return nil, fmt.Errorf("service %s: operation with empty name", svc.Name)
			}
			key := svc.Name + "." + op.Name
			if _, dup := g.bundles[key]; dup {
				return nil, fmt.Errorf("duplicate operation key %s", key)
			}
			idx.opKeys = append(idx.opKeys, key)

			tokens := []string{strings.ToLower(op.Name)}
			for _, intent := range op.Intents {
				tokens = append(tokens, strings.ToLower(intent))
			}
			idx.opTokens[key] = tokens

			g.bundles[key] = &OperationBundle{
				OperationID:    key,
				Method:         op.Method,
				Path:           op.Path,
				RequestSchema:  rawOrNil(op.RequestSchema),
				ResponseSchema: rawOrNil(op.ResponseSchema),
				Examples:       op.Examples,
				DocsMarkdown:   op.Docs,
			}
		}
		g.services[strings.ToLower(svc.Name)] = idx
	}
	return g, nil
}

// LoadCatalog reads a catalog YAML file and builds a MemoryGraph.
func LoadCatalog(path string) (*MemoryGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return NewMemoryGraph(&catalog)
}

// QueryContext implements KnowledgeGraph. Scoring: a service-name or alias
// hit weighs 2, an operation-name or intent hit weighs 1 and selects the
// operation. Services with no hits are omitted; a service hit with no
// operation hits includes all its operations.
func (g *MemoryGraph) QueryContext(_ context.Context, prompt string) ([]Candidate, error) {
	tokens := tokenize(prompt)
	if len(tokens) == 0 {
		return nil, nil
	}

	var candidates []Candidate
	for _, svc := range g.services {
		score := 0.0
		for tok := range tokens {
			if svc.tokens[tok] {
				score += 2
			}
		}

		var matchedOps []string
		for _, key := range svc.opKeys {
			for _, opTok := range svc.opTokens[key] {
				if tokens[opTok] {
					score++
					matchedOps = append(matchedOps, key)
					break
				}
			}
		}
		if score == 0 {
			continue
		}
		if len(matchedOps) == 0 {
			matchedOps = append([]string(nil), svc.opKeys...)
		}
		sort.Strings(matchedOps)
		candidates = append(candidates, Candidate{
			EntityName:    svc.name,
			OperationKeys: matchedOps,
			Confidence:    score,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].EntityName < candidates[j].EntityName
	})
	return candidates, nil
}

// QueryOperationForPrompt implements KnowledgeGraph.
func (g *MemoryGraph) QueryOperationForPrompt(_ context.Context, operationKey string) (*OperationBundle, error) {
	bundle, ok := g.bundles[operationKey]
	if !ok {
		return nil, nil
	}
	return bundle, nil
}

// tokenize lowercases and splits a prompt on non-alphanumeric runes.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		tokens[field] = true
	}
	return tokens
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
