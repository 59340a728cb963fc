package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidgi-agent/internal/domain"
)

// mockMCPClient implements mcpClient for testing.
type mockMCPClient struct {
	tools    []mcp.Tool
	callFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed   bool
	listErr  error
}

func (m *mockMCPClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &mcp.ListToolsResult{Tools: m.tools}, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.callFunc != nil {
		return m.callFunc(ctx, req)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("called %s", req.Params.Name))},
	}, nil
}

func (m *mockMCPClient) Close() error {
	m.closed = true
	return nil
}

func dialMock(t *testing.T, mock *mockMCPClient) domain.MCPSession {
	t.Helper()
	d := NewMCPDialer(testLogger())
	d.connect = func(context.Context, domain.MCPParam) (mcpClient, error) { return mock, nil }
	s, err := d.Dial(context.Background(), domain.MCPParam{ServerName: "fs", Transport: "stdio"})
	require.NoError(t, err)
	return s
}

func TestMCPSessionListTools(t *testing.T) {
	mock := &mockMCPClient{tools: []mcp.Tool{
		{Name: "write_file", Description: "Write a file"},
		{
			Name: "read_file",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"path": map[string]any{"type": "string"}},
				Required:   []string{"path"},
			},
		},
	}}
	s := dialMock(t, mock)

	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "read_file", tools[0].ID)
	assert.Equal(t, `MCP tool "read_file" from server "fs"`, tools[0].Description)
	assert.Contains(t, string(tools[0].Parameters), `"path"`)
	assert.Equal(t, "Write a file", tools[1].Description)
	assert.JSONEq(t, `{"type":"object"}`, string(tools[1].Parameters))
}

func TestMCPSessionListToolsError(t *testing.T) {
	s := dialMock(t, &mockMCPClient{listErr: errors.New("boom")})
	_, err := s.ListTools(context.Background())
	assert.Error(t, err)
}

func TestMCPSessionCallTool(t *testing.T) {
	var gotArgs any
	mock := &mockMCPClient{callFunc: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		gotArgs = req.Params.Arguments
		return &mcp.CallToolResult{Content: []mcp.Content{
			mcp.NewTextContent("line one"),
			mcp.NewTextContent("line two"),
		}}, nil
	}}
	s := dialMock(t, mock)

	res := s.CallTool(context.Background(), "read_file", json.RawMessage(`{"path":"/tmp/x"}`))
	assert.True(t, res.Success)
	assert.Equal(t, "line one\nline two", res.Data)
	assert.Equal(t, map[string]interface{}{"path": "/tmp/x"}, gotArgs)
}

func TestMCPSessionCallToolFailures(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		s := dialMock(t, &mockMCPClient{callFunc: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("pipe closed")
		}})
		res := s.CallTool(context.Background(), "x", nil)
		assert.False(t, res.Success)
		assert.Equal(t, "MCP tool error: pipe closed", res.Error)
	})
	t.Run("tool error", func(t *testing.T) {
		s := dialMock(t, &mockMCPClient{callFunc: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.NewTextContent("denied")}}, nil
		}})
		res := s.CallTool(context.Background(), "x", nil)
		assert.Equal(t, domain.ToolResult{Error: "denied"}, res)
	})
	t.Run("bad arguments", func(t *testing.T) {
		s := dialMock(t, &mockMCPClient{})
		res := s.CallTool(context.Background(), "x", json.RawMessage(`[1,2]`))
		assert.Contains(t, res.Error, "invalid arguments")
	})
}

func TestMCPSessionClose(t *testing.T) {
	mock := &mockMCPClient{}
	s := dialMock(t, mock)
	require.NoError(t, s.Close())
	assert.True(t, mock.closed)
}

func TestMCPDialerUnsupportedTransport(t *testing.T) {
	d := NewMCPDialer(testLogger())
	_, err := d.Dial(context.Background(), domain.MCPParam{ServerName: "x", Transport: "carrier-pigeon"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEnvSlice(t *testing.T) {
	assert.Nil(t, envSlice(nil))
	assert.Equal(t, []string{"A=1", "B=2"}, envSlice(map[string]string{"B": "2", "A": "1"}))
}
