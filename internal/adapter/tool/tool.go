// Package tool implements the tool execution collaborator: a registry of
// local tools with JSON Schema validated parameters, and a dialer that
// bridges Model Context Protocol servers.
package tool

import (
	"context"
	"encoding/json"

	"tidgi-agent/internal/domain"
)

// Tool is a locally implemented tool. Failures are reported in the result.
type Tool interface {
	Describe() domain.ToolDescription
	Execute(ctx context.Context, params json.RawMessage, scope domain.ToolScope) domain.ToolResult
}
