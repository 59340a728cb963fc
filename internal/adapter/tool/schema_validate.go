package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tidgi-agent/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation.
type SchemaValidatingTool struct {
	inner  Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates params against
// the tool's declared parameter schema before forwarding to the inner tool.
// Tools without a schema are returned unchanged.
func WithSchemaValidation(t Tool) (Tool, error) {
	desc := t.Describe()
	raw := desc.Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", desc.ID, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", desc.ID, err)
	}
	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Describe() domain.ToolDescription { return s.inner.Describe() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage, scope domain.ToolScope) domain.ToolResult {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	var v interface{}
	if err := json.Unmarshal(params, &v); err != nil {
		return domain.ToolResult{Error: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := s.schema.Validate(v); err != nil {
		return domain.ToolResult{Error: fmt.Sprintf("schema validation failed: %v", err)}
	}
	return s.inner.Execute(ctx, params, scope)
}
