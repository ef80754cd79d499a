// Package prompt provides the centralized prompt construction framework for
// the orchestration pipeline. Prompts are built from first-class sections,
// each with an ID, a role, a default-enabled flag, and a parameterized body,
// rendered with a fixed helper set and composed into chat messages.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/restpilot/restpilot/pkg/llm"
)

// Chat roles a section may target.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Section is one template section.
type Section struct {
	// ID names the section for enable/disable overrides.
	ID string

	// Role is the chat role the rendered content belongs to.
	Role string

	// EnabledByDefault controls whether the section renders without an
	// explicit override.
	EnabledByDefault bool

	// Body is a text/template body. Only the fixed helper set is available;
	// there is deliberately no way to call arbitrary methods.
	Body string
}

// helperFuncs is the fixed helper set available inside section bodies.
var helperFuncs = template.FuncMap{
	"join": strings.Join,
	"trim": strings.TrimSpace,
	"indent": func(prefix, s string) string {
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if line != "" {
				lines[i] = prefix + line
			}
		}
		return strings.Join(lines, "\n")
	},
}

// Template is an ordered, parsed set of sections.
type Template struct {
	name     string
	sections []Section
	parsed   map[string]*template.Template
}

// NewTemplate parses the section bodies. Section IDs must be unique.
func NewTemplate(name string, sections ...Section) (*Template, error) {
	t := &Template{
		name:     name,
		sections: sections,
		parsed:   make(map[string]*template.Template, len(sections)),
	}
	for _, s := range sections {
		if s.ID == "" {
			return nil, fmt.Errorf("template %s: section with empty ID", name)
		}
		if _, dup := t.parsed[s.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate section ID %q", name, s.ID)
		}
		parsed, err := template.New(name + "/" + s.ID).Funcs(helperFuncs).Option("missingkey=error").Parse(s.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s: section %s: %w", name, s.ID, err)
		}
		t.parsed[s.ID] = parsed
	}
	return t, nil
}

// MustTemplate parses sections or panics. For package-level templates only.
func MustTemplate(name string, sections ...Section) *Template {
	t, err := NewTemplate(name, sections...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes vars into every enabled section and composes the result
// into chat messages: all system sections joined into one system message,
// all user sections into one user message, in declaration order. overrides
// maps section ID → enabled and beats EnabledByDefault.
func (t *Template) Render(vars map[string]any, overrides map[string]bool) ([]llm.Message, error) {
	var system, user []string
	for _, s := range t.sections {
		enabled := s.EnabledByDefault
		if v, ok := overrides[s.ID]; ok {
			enabled = v
		}
		if !enabled {
			continue
		}

		var buf strings.Builder
		if err := t.parsed[s.ID].Execute(&buf, vars); err != nil {
			return nil, fmt.Errorf("template %s: section %s: %w", t.name, s.ID, err)
		}
		content := strings.TrimSpace(buf.String())
		if content == "" {
			continue
		}

		switch s.Role {
		case RoleSystem:
			system = append(system, content)
		case RoleUser:
			user = append(user, content)
		default:
			return nil, fmt.Errorf("template %s: section %s has unknown role %q", t.name, s.ID, s.Role)
		}
	}

	var messages []llm.Message
	if len(system) > 0 {
		messages = append(messages, llm.Message{Role: RoleSystem, Content: strings.Join(system, "\n\n")})
	}
	if len(user) > 0 {
		messages = append(messages, llm.Message{Role: RoleUser, Content: strings.Join(user, "\n\n")})
	}
	return messages, nil
}
