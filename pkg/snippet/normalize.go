package snippet

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxBytes is the default snippet size cap.
const DefaultMaxBytes = 256 * 1024

// ErrTooLarge is returned for snippets above the configured byte cap.
var ErrTooLarge = errors.New("snippet too large")

var (
	// codeFencePattern matches a whole-snippet markdown fence wrapper.
	codeFencePattern = regexp.MustCompile("(?s)\\A\\s*```[a-zA-Z]*\\s*\\n(.*?)\\n?```\\s*\\z")

	// fencedBlockPattern matches the first fenced block anywhere in the text.
	fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\n(.*?)\\n?```")

	// packagePattern extracts the package declaration.
	packagePattern = regexp.MustCompile(`\bpackage\s+([A-Za-z_][\w.]*);`)

	// publicClassPattern extracts public top-level class names.
	publicClassPattern = regexp.MustCompile(`\bpublic\s+(?:final\s+|abstract\s+)?class\s+([A-Za-z_]\w*)`)

	// importLinePattern matches existing import declarations.
	importLinePattern = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\.\*)?);`)
)

// ClassCountError reports a snippet without exactly one public top-level
// class. It converts to a synthetic diagnostic the LLM can act on.
type ClassCountError struct {
	Count int
}

// Error implements error.
func (e *ClassCountError) Error() string {
	if e.Count == 0 {
		return "snippet declares no public top-level class"
	}
	return fmt.Sprintf("snippet declares %d public top-level classes, expected exactly 1", e.Count)
}

// Diagnostic renders the error as a compile-style diagnostic for the retry
// prompt.
func (e *ClassCountError) Diagnostic() Diagnostic {
	return Diagnostic{Message: e.Error() + "; declare exactly one public class containing the entry point"}
}

// Normalized is the result of applying the normalization policies.
type Normalized struct {
	// Source is the normalized snippet text.
	Source string

	// Package is the effective package name (declared or assigned).
	Package string

	// ClassName is the single public top-level class.
	ClassName string
}

// QualifiedClassName returns "package.Class".
func (n *Normalized) QualifiedClassName() string {
	return n.Package + "." + n.ClassName
}

// Normalizer applies the snippet normalization policies: fence stripping,
// size cap, package assignment, public-class extraction, and known-symbol
// import resolution. Normalization is idempotent.
type Normalizer struct {
	// MaxBytes caps the snippet size. Zero means DefaultMaxBytes.
	MaxBytes int

	// DefaultNamespace is assigned when the snippet declares no package.
	// Request-scoped so concurrent requests never collide inside an
	// in-process runtime.
	DefaultNamespace string

	// Imports maps known symbols to fully-qualified names for auto-insert.
	// Nil means DefaultImportTable.
	Imports map[string]string
}

// Normalize applies all policies in order. Returns ErrTooLarge for oversized
// snippets and *ClassCountError when the public-class policy fails.
func (n *Normalizer) Normalize(snippet string) (*Normalized, error) {
	maxBytes := n.MaxBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(snippet) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds cap of %d", ErrTooLarge, len(snippet), maxBytes)
	}

	source := StripCodeFence(snippet)

	// Package: declared, or the request default prepended.
	pkg := ExtractPackage(source)
	if pkg == "" {
		if n.DefaultNamespace == "" {
			return nil, fmt.Errorf("snippet declares no package and no default namespace is configured")
		}
		pkg = n.DefaultNamespace
		source = "package " + pkg + ";\n\n" + strings.TrimLeft(source, "\n")
	}

	// Exactly one public top-level class.
	classes := ExtractPublicClasses(source)
	if len(classes) != 1 {
		return nil, &ClassCountError{Count: len(classes)}
	}

	source = n.resolveImports(source)

	return &Normalized{Source: source, Package: pkg, ClassName: classes[0]}, nil
}

// StripCodeFence removes a whole-snippet markdown code fence, if present.
func StripCodeFence(snippet string) string {
	if m := codeFencePattern.FindStringSubmatch(snippet); len(m) > 1 {
		return m[1] + "\n"
	}
	return snippet
}

// SplitCodeFence separates the first fenced code block from the prose around
// it. The prose becomes the step explanation; input without a fence is
// returned whole as code with empty prose.
func SplitCodeFence(s string) (code, prose string) {
	m := fencedBlockPattern.FindStringSubmatchIndex(s)
	if m == nil {
		return s, ""
	}
	code = s[m[2]:m[3]] + "\n"
	before := strings.TrimSpace(s[:m[0]])
	after := strings.TrimSpace(s[m[1]:])
	switch {
	case before == "":
		prose = after
	case after == "":
		prose = before
	default:
		prose = before + "\n" + after
	}
	return code, prose
}

// ExtractPackage returns the declared package name, or "".
func ExtractPackage(source string) string {
	if m := packagePattern.FindStringSubmatch(source); len(m) > 1 {
		return m[1]
	}
	return ""
}

// ExtractPublicClasses returns all public top-level class names in order.
func ExtractPublicClasses(source string) []string {
	var names []string
	for _, m := range publicClassPattern.FindAllStringSubmatch(source, -1) {
		names = append(names, m[1])
	}
	return names
}

// resolveImports inserts imports for known symbols used but not imported.
// Insertion happens once per symbol directly after the package declaration;
// running it again is a no-op.
func (n *Normalizer) resolveImports(source string) string {
	table := n.Imports
	if table == nil {
		table = DefaultImportTable
	}

	imported := make(map[string]bool)
	for _, m := range importLinePattern.FindAllStringSubmatch(source, -1) {
		imported[m[1]] = true
	}

	var missing []string
	for symbol, fqn := range table {
		if imported[fqn] {
			continue
		}
		if !regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`).MatchString(source) {
			continue
		}
		missing = append(missing, fqn)
	}
	if len(missing) == 0 {
		return source
	}
	sort.Strings(missing)

	var block strings.Builder
	for _, fqn := range missing {
		block.WriteString("import " + fqn + ";\n")
	}

	loc := packagePattern.FindStringIndex(source)
	if loc == nil {
		return block.String() + source
	}
	insertAt := loc[1]
	return source[:insertAt] + "\n" + block.String() + source[insertAt:]
}
