package models

import "fmt"

// ExecutionPlan is the ordered sequence of steps the planner produced for a
// request. Immutable after validation.
type ExecutionPlan struct {
	Steps []Step `json:"steps"`
}

// Step is one unit of plan execution.
type Step struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Services    []ServiceRef `json:"services"`
}

// ServiceRef names a catalog service and the operations a step may call on it.
type ServiceRef struct {
	ServiceName string   `json:"service_name"`
	Operations  []string `json:"operations"`
}

// Validate checks the structural plan invariants that do not need a catalog
// snapshot: at least one step, unique step titles, and no operation repeated
// within a step. Catalog resolution is the planner's job.
func (p *ExecutionPlan) Validate() []string {
	var reasons []string
	if len(p.Steps) == 0 {
		return []string{"plan must contain at least one step"}
	}

	titles := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.Title == "" {
			reasons = append(reasons, fmt.Sprintf("step %d has an empty title", i+1))
			continue
		}
		if titles[step.Title] {
			reasons = append(reasons, fmt.Sprintf("duplicate step title %q", step.Title))
		}
		titles[step.Title] = true

		seen := make(map[string]bool)
		for _, svc := range step.Services {
			if svc.ServiceName == "" {
				reasons = append(reasons, fmt.Sprintf("step %q references a service with an empty name", step.Title))
			}
			for _, op := range svc.Operations {
				key := svc.ServiceName + "." + op
				if seen[key] {
					reasons = append(reasons, fmt.Sprintf("step %q repeats operation %s", step.Title, key))
				}
				seen[key] = true
			}
		}
	}
	return reasons
}

// OperationKeys returns every "service.operation" pair the plan references,
// in plan order, without duplicates.
func (p *ExecutionPlan) OperationKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, step := range p.Steps {
		for _, svc := range step.Services {
			for _, op := range svc.Operations {
				key := svc.ServiceName + "." + op
				if !seen[key] {
					seen[key] = true
					keys = append(keys, key)
				}
			}
		}
	}
	return keys
}

// StepImplementation is one attempt's executable snippet for a step.
type StepImplementation struct {
	// QualifiedClassName is derived from the snippet text (package plus the
	// single public top-level class).
	QualifiedClassName string `json:"qualified_class_name"`

	// Snippet is the normalized executable source text.
	Snippet string `json:"snippet"`

	// Explanation is a short narrative for telemetry and the final report.
	Explanation string `json:"explanation,omitempty"`
}
