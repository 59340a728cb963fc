package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidgi-agent/internal/adapter/knowledge"
	"tidgi-agent/internal/adapter/store"
	"tidgi-agent/internal/adapter/tool"
	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
	"tidgi-agent/internal/plugin"
	"tidgi-agent/internal/usecase"
)

type echoAI struct{}

func (echoAI) GenerateFromAI(_ context.Context, _ []domain.PromptFragment, _ domain.AIConfig) <-chan domain.AIStreamChunk {
	ch := make(chan domain.AIStreamChunk, 3)
	ch <- domain.AIStreamChunk{RequestID: "r1", Status: domain.StreamUpdate, Content: "Hi"}
	ch <- domain.AIStreamChunk{RequestID: "r1", Status: domain.StreamUpdate, Content: "Hi there"}
	ch <- domain.AIStreamChunk{RequestID: "r1", Status: domain.StreamDone, Content: "Hi there."}
	close(ch)
	return ch
}

func (echoAI) CancelAIRequest(string)        {}
func (echoAI) GetAIConfig() domain.AIConfig { return domain.AIConfig{} }

func newTestSession(t *testing.T, out io.Writer) (*session, *store.SQLiteStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "messages.db"), time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	idx, err := knowledge.Open(filepath.Join(dir, "knowledge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	defs, err := loadDefinitions("")
	require.NoError(t, err)
	def := defs["wiki-assistant"]
	require.NotNil(t, def)

	h := usecase.NewHandler(usecase.HandlerDeps{
		AI:        echoAI{},
		Persister: st,
		Plugins:   plugin.Deps{Retriever: idx, Logger: logger},
		Logger:    logger,
	})
	s := &session{
		handler: h,
		def:     def,
		agent:   domain.NewAgentInstance(def),
		store:   st,
		out:     out,
	}
	s.render = newRenderer(out)
	return s, st
}

func feed(lines ...string) <-chan string {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func TestSessionRoundTrip(t *testing.T) {
	var out bytes.Buffer
	s, st := newTestSession(t, &out)

	require.NoError(t, s.loop(context.Background(), feed("", "hello", "/quit", "never sent")))

	assert.Contains(t, out.String(), "agent> Hi there.\n")
	assert.NotContains(t, out.String(), "never sent")

	loaded, err := st.LoadAgent(context.Background(), s.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStateCompleted, loaded.Status.State)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "hello", loaded.Messages[0].Content)
	assert.True(t, loaded.Messages[0].Processed())
	assert.Equal(t, "Hi there.", loaded.Messages[1].Content)
}

func TestSessionNewConversation(t *testing.T) {
	var out bytes.Buffer
	s, _ := newTestSession(t, &out)
	first := s.agent.ID

	require.NoError(t, s.loop(context.Background(), feed("/new")))
	assert.NotEqual(t, first, s.agent.ID)
	assert.Contains(t, out.String(), "new conversation "+s.agent.ID)
}

func TestSessionInterrupt(t *testing.T) {
	s, _ := newTestSession(t, io.Discard)
	assert.False(t, s.interrupt(), "idle session is not interrupted")

	s.running.Store(true)
	assert.True(t, s.interrupt())
	assert.True(t, s.cancelled.Load())
}

func TestSessionStopsOnContextDone(t *testing.T) {
	s, _ := newTestSession(t, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.loop(ctx, make(chan string)))
}

func TestRendererStreamsDeltas(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)
	msg := domain.NewMessage(domain.RoleAgent, "Hel")
	r.status(domain.AgentStatus{State: domain.AgentStateWorking, Message: msg})
	msg.Content = "Hello"
	r.status(domain.AgentStatus{State: domain.AgentStateWorking, Message: msg})
	msg.Content = "Hello!"
	r.status(domain.AgentStatus{State: domain.AgentStateCompleted, Message: msg})

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "agent> "))
	assert.True(t, strings.HasSuffix(got, "Hello!\n"), got)
}

func TestRendererToolAndError(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)
	tool := domain.NewMessage(domain.RoleTool, "<functions_result>\nTool: wiki-search\nResult: ok\n</functions_result>")
	r.status(domain.AgentStatus{State: domain.AgentStateWorking, Message: tool})
	r.status(domain.AgentStatus{State: domain.AgentStateWorking, Message: tool})
	r.status(domain.AgentStatus{State: domain.AgentStateCompleted, Message: domain.NewMessage(domain.RoleError, "Error: boom")})
	r.status(domain.AgentStatus{State: domain.AgentStateCanceled})

	got := out.String()
	assert.Equal(t, 1, strings.Count(got, "Tool: wiki-search"))
	assert.Contains(t, got, "Error: boom")
	assert.Contains(t, got, "(canceled)")
}

func TestSummarizeToolResult(t *testing.T) {
	in := "<functions_result>\n1\n2\n3\n4\n5\n6\n</functions_result>"
	assert.Equal(t, "1\n2\n3\n4\n... (2 more lines)", summarizeToolResult(in))
}

func TestConfigPath(t *testing.T) {
	t.Setenv("TIDGI_CONFIG", "")
	assert.Equal(t, "config.yaml", configPath(""))

	for _, args := range [][]string{
		{"-config", "a.yaml"},
		{"--config", "a.yaml"},
		{"--definition", "x", "--config=a.yaml"},
	} {
		fs := flag.NewFlagSet("chat", flag.ContinueOnError)
		cfgPath := configFlag(fs)
		fs.String("definition", "", "")
		require.NoError(t, fs.Parse(args))
		assert.Equal(t, "a.yaml", configPath(*cfgPath), args)
	}

	t.Setenv("TIDGI_CONFIG", "env.yaml")
	assert.Equal(t, "env.yaml", configPath(""))
	assert.Equal(t, "flag.yaml", configPath("flag.yaml"))
}

func TestToolRegistryRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idx, err := knowledge.Open(filepath.Join(t.TempDir(), "knowledge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	reg, err := newToolRegistry(config.ToolsConfig{
		RateLimit: config.ToolRateLimitConfig{Calls: 1, Window: time.Hour},
	}, idx, logger)
	require.NoError(t, err)

	call := domain.ToolCall{ToolID: tool.KnowledgeSearchToolID, Parameters: []byte(`{"query":"go"}`)}
	first := reg.ExecuteTool(context.Background(), call, domain.ToolScope{})
	second := reg.ExecuteTool(context.Background(), call, domain.ToolScope{})
	assert.True(t, first.Success, first.Error)
	assert.Contains(t, second.Error, "rate limited")
}

func TestLoadDefinitionsBuiltin(t *testing.T) {
	defs, err := loadDefinitions(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	def := defs["wiki-assistant"]
	require.NotNil(t, def)
	for _, p := range def.HandlerConfig.Plugins {
		assert.NoError(t, p.Validate(), p.ID)
	}
}
