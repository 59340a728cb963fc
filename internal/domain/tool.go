package domain

import (
	"context"
	"encoding/json"
)

// ToolCall is a tool invocation detected in an LLM response.
type ToolCall struct {
	ToolID     string          `json:"tool_id"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	// PluginID is the config instance id of the plugin that detected the call.
	PluginID string `json:"plugin_id,omitempty"`
	// Raw is the matched marker text.
	Raw string `json:"raw,omitempty"`
}

// ToolScope carries the workspace-scoping context for a tool execution.
type ToolScope struct {
	AgentID   string `json:"agent_id"`
	Workspace string `json:"workspace,omitempty"`
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolDescription describes a tool for prompt injection.
type ToolDescription struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolExecutor is the tool execution collaborator. Failures are reported in
// the result, never as a Go error.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, call ToolCall, scope ToolScope) ToolResult
}

// ToolCatalog lists the tools available for prompt injection.
type ToolCatalog interface {
	Describe() []ToolDescription
}

// MCPSession is a live connection to one Model Context Protocol server.
type MCPSession interface {
	// ListTools returns the tools the server exposes.
	ListTools(ctx context.Context) ([]ToolDescription, error)
	// CallTool invokes a tool by its server-side name.
	CallTool(ctx context.Context, name string, params json.RawMessage) ToolResult
	Close() error
}

// MCPDialer opens MCP sessions from plugin parameters.
type MCPDialer interface {
	Dial(ctx context.Context, param MCPParam) (MCPSession, error)
}
