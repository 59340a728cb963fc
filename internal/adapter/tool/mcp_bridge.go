package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"tidgi-agent/internal/domain"
)

var _ domain.MCPDialer = (*MCPDialer)(nil)

// mcpClient abstracts the MCP client for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPDialer connects to MCP servers over stdio or streamable HTTP.
type MCPDialer struct {
	logger *slog.Logger
	// connect is replaced in tests.
	connect func(ctx context.Context, param domain.MCPParam) (mcpClient, error)
}

// NewMCPDialer creates a dialer.
func NewMCPDialer(logger *slog.Logger) *MCPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	d := &MCPDialer{logger: logger}
	d.connect = d.connectServer
	return d
}

// Dial implements domain.MCPDialer.
func (d *MCPDialer) Dial(ctx context.Context, param domain.MCPParam) (domain.MCPSession, error) {
	c, err := d.connect(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: %w", param.ServerName, err)
	}
	d.logger.Info("mcp server connected", "name", param.ServerName, "transport", param.Transport)
	return &mcpSession{name: param.ServerName, client: c, logger: d.logger}, nil
}

func (d *MCPDialer) connectServer(ctx context.Context, p domain.MCPParam) (mcpClient, error) {
	var c *mcpclient.Client

	switch p.Transport {
	case "stdio":
		var err error
		c, err = mcpclient.NewStdioMCPClient(p.Command, envSlice(p.Env), p.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, err := transport.NewStreamableHTTP(p.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, domain.NewDomainError("MCPDialer.Dial", domain.ErrInvalidInput, fmt.Sprintf("unsupported transport %q", p.Transport))
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "tidgi-agent",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize", err)
	}
	return c, nil
}

// mcpSession implements domain.MCPSession over one client.
type mcpSession struct {
	name   string
	client mcpClient
	logger *slog.Logger
}

func (s *mcpSession) ListTools(ctx context.Context) ([]domain.ToolDescription, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ToolDescription, 0, len(result.Tools))
	for _, t := range result.Tools {
		desc := t.Description
		if desc == "" {
			desc = fmt.Sprintf("MCP tool %q from server %q", t.Name, s.name)
		}
		params := json.RawMessage(`{"type": "object"}`)
		if t.InputSchema.Properties != nil || t.InputSchema.Required != nil {
			if data, err := json.Marshal(t.InputSchema); err == nil {
				params = data
			}
		}
		out = append(out, domain.ToolDescription{ID: t.Name, Description: desc, Parameters: params})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.logger.Debug("mcp tools listed", "server", s.name, "count", len(out))
	return out, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, params json.RawMessage) domain.ToolResult {
	var args map[string]interface{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return ErrResult("invalid arguments: %v", err)
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = args

	s.logger.Debug("mcp tool call", "server", s.name, "tool", name)

	result, err := s.client.CallTool(ctx, callReq)
	if err != nil {
		return ErrResult("MCP tool error: %v", err)
	}
	content := extractMCPContent(result)
	if result.IsError {
		return domain.ToolResult{Error: content}
	}
	return TextResult(content)
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}

// extractMCPContent converts MCP result content to a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// envSlice converts a map of env vars to sorted KEY=VALUE entries.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}
