package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompileSchema compiles an inline JSON schema document.
func CompileSchema(raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid schema document: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("inline.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// MustCompileSchema compiles an inline schema or panics. For package-level
// schema constants only.
func MustCompileSchema(raw string) *jsonschema.Schema {
	schema, err := CompileSchema(raw)
	if err != nil {
		panic(err)
	}
	return schema
}

// DecodeConstrained extracts JSON from an LLM response, validates it against
// the schema, and unmarshals it into out. A non-nil error means the response
// did not satisfy the constraint; the caller decides whether to fall back
// or feed the failure into a retry prompt.
func DecodeConstrained(schema *jsonschema.Schema, content string, out any) error {
	extracted := ExtractJSON(content)
	if extracted == "" {
		return fmt.Errorf("response contains no JSON object")
	}

	value, err := jsonschema.UnmarshalJSON(strings.NewReader(extracted))
	if err != nil {
		return fmt.Errorf("response JSON is malformed: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("response JSON violates schema: %w", err)
	}
	if err := json.Unmarshal([]byte(extracted), out); err != nil {
		return fmt.Errorf("failed to unmarshal response JSON: %w", err)
	}
	return nil
}
