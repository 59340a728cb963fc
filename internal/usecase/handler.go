package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/tracer"
	"tidgi-agent/internal/plugin"
	"tidgi-agent/internal/usecase/hooks"
	"tidgi-agent/internal/usecase/prompt"
	"tidgi-agent/internal/usecase/response"
)

// DefaultMaxRounds bounds consecutive AI rounds per invocation.
const DefaultMaxRounds = 10

// HandlerDeps holds injected dependencies for the orchestrator.
type HandlerDeps struct {
	AI        domain.AIService
	Tools     domain.ToolExecutor     // optional, used for tools no plugin claims
	Persister domain.MessagePersister // optional, nil = no persistence
	Bus       domain.EventBus         // optional, nil = no events
	Plugins   plugin.Deps
	// GlobalAI overrides AI.GetAIConfig() as the lowest config layer.
	GlobalAI  *domain.AIConfig
	MaxRounds int
	Logger    *slog.Logger
	Locker    *AgentLocker // optional, nil = caller serializes runs
}

// Handler drives conversation rounds between the user, the AI and plugins.
type Handler struct {
	deps HandlerDeps
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(deps HandlerDeps) *Handler {
	if deps.MaxRounds <= 0 {
		deps.MaxRounds = DefaultMaxRounds
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Plugins.Logger == nil {
		deps.Plugins.Logger = deps.Logger
	}
	if deps.Plugins.Bus == nil {
		deps.Plugins.Bus = deps.Bus
	}
	return &Handler{deps: deps}
}

// RunInput is one invocation of the orchestrator.
type RunInput struct {
	Agent      *domain.AgentInstance
	Definition *domain.AgentDefinition
	// IsCancelled is polled between steps and between stream chunks.
	// Cancelling ctx has the same effect.
	IsCancelled func() bool
}

// Run returns the lazy status sequence for one invocation. The sequence
// always ends with a terminal status unless the consumer stops early, and
// it can be iterated only once; later iterations yield nothing.
func (h *Handler) Run(ctx context.Context, in RunInput) iter.Seq[domain.AgentStatus] {
	var started atomic.Bool
	return func(yield func(domain.AgentStatus) bool) {
		if !started.CompareAndSwap(false, true) {
			return
		}
		r := &run{
			h:           h,
			agent:       in.Agent,
			def:         in.Definition,
			isCancelled: in.IsCancelled,
			yield:       yield,
			logger:      h.deps.Logger,
		}
		r.execute(ctx)
	}
}

// run is the state of one invocation.
type run struct {
	h           *Handler
	agent       *domain.AgentInstance
	def         *domain.AgentDefinition
	isCancelled func() bool
	yield       func(domain.AgentStatus) bool
	logger      *slog.Logger

	reg     *hooks.Registry
	configs []domain.PluginConfig
	aiCfg   domain.AIConfig

	requestID string
	inFlight  bool
	lastState domain.AgentState
	finished  bool
	inYield   bool
}

func (r *run) execute(ctx context.Context) {
	if r.agent == nil || r.def == nil {
		err := domain.NewDomainError("Handler.Run", domain.ErrInvalidInput, "agent and definition are required")
		r.emit(ctx, CompletedStatus(NewUnexpectedErrorMessage(err, ""), ""))
		return
	}

	ctx, cancel := context.WithCancel(domain.ContextWithAgentID(ctx, r.agent.ID))
	defer cancel()
	r.logger = r.logger.With("agent_id", r.agent.ID, "definition_id", r.def.ID)

	ctx, span := tracer.StartSpan(ctx, "agent.run", trace.WithAttributes(
		tracer.StringAttr("agent.id", r.agent.ID),
		tracer.StringAttr("agent.definition", r.def.ID),
	))
	defer span.End()

	defer r.cancelOutstanding()
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if r.inYield {
			panic(rec)
		}
		r.logger.ErrorContext(ctx, "agent run failed", "panic", rec, "stack", string(debug.Stack()))
		tracer.RecordError(span, fmt.Errorf("panic: %v", rec))
		r.fail(ctx, NewUnexpectedErrorMessage(rec, r.aiCfg.Provider))
	}()

	if l := r.h.deps.Locker; l != nil {
		unlock, err := l.Lock(ctx, r.agent.ID)
		if err != nil {
			r.emit(ctx, CanceledStatus())
			return
		}
		defer unlock()
	}

	r.reg = hooks.NewRegistry(r.logger)
	defer r.reg.Close()
	r.configs = plugin.Load(ctx, r.reg, r.def.HandlerConfig.Plugins, r.h.deps.Plugins)

	latest := r.agent.LatestMessage()
	answerable := latest != nil && latest.Role == domain.RoleUser && strings.TrimSpace(latest.Content) != ""
	if answerable && !latest.Processed() {
		r.reg.UserMessageReceived.Call(ctx, hooks.UserMessageEvent{Agent: r.agent, Message: latest})
		r.publish(ctx, domain.EventMessageReceived, map[string]string{"message_id": latest.ID})
		r.transition(ctx, WorkingStatus(latest, ""))
		latest.SetMeta(domain.MetaProcessed, true)
		r.persist(latest)
	}
	if !answerable {
		r.logger.DebugContext(ctx, "no user message to answer")
		r.emit(ctx, CompletedStatus(NewNoticeMessage(NoUserMessageText), ""))
		return
	}

	r.aiCfg = r.mergeAIConfig(ctx)

	if r.cancelled(ctx) {
		r.emit(ctx, CanceledStatus())
		return
	}

	for round := 1; ; round++ {
		if round > r.h.deps.MaxRounds {
			r.logger.WarnContext(ctx, "round budget exhausted", "max_rounds", r.h.deps.MaxRounds)
			r.fail(ctx, NewMaxRoundsMessage(r.h.deps.MaxRounds, r.aiCfg.Provider))
			return
		}
		if !r.round(ctx, round) {
			tracer.SetOK(span)
			return
		}
	}
}

func (r *run) mergeAIConfig(ctx context.Context) domain.AIConfig {
	var global domain.AIConfig
	if r.h.deps.GlobalAI != nil {
		global = *r.h.deps.GlobalAI
	} else {
		global = r.h.deps.AI.GetAIConfig()
	}
	cfg, err := MergeAIConfig(global, r.def.AIAPIConfig, r.agent.AIAPIConfig)
	if err != nil {
		r.logger.WarnContext(ctx, "ai config merge failed, using global config", "error", err)
		return global
	}
	return cfg
}

// round runs one prompt, stream and response cycle. It reports whether
// another round should follow.
func (r *run) round(ctx context.Context, n int) bool {
	ctx, span := tracer.StartSpan(ctx, "agent.round", trace.WithAttributes(tracer.IntAttr("round", n)))
	defer span.End()

	if n > 1 && r.cancelled(ctx) {
		r.emit(ctx, CanceledStatus())
		return false
	}

	built := prompt.Concat(ctx, r.reg, prompt.Input{
		Agent:   r.agent,
		History: r.agent.History(),
		Prompts: r.def.HandlerConfig.Prompts,
		Configs: r.configs,
	})

	// Plugins may block on I/O while building prompts.
	if r.cancelled(ctx) {
		r.emit(ctx, CanceledStatus())
		return false
	}

	r.publish(ctx, domain.EventLLMCallStarted, map[string]int{"round": n})
	llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_stream")
	defer llmSpan.End()

	started := time.Now()
	var reply *domain.AgentInstanceMessage
	for chunk := range r.h.deps.AI.GenerateFromAI(llmCtx, built.Fragments, r.aiCfg) {
		if chunk.RequestID != "" {
			r.requestID = chunk.RequestID
		}
		r.inFlight = chunk.Status != domain.StreamDone && chunk.Status != domain.StreamError

		if r.cancelled(ctx) {
			r.cancelOutstanding()
			r.emit(ctx, CanceledStatus())
			return false
		}

		switch chunk.Status {
		case domain.StreamStart:
		case domain.StreamUpdate:
			reply = r.upsertReply(reply, chunk.Content)
			r.reg.ResponseUpdate.Call(ctx, hooks.ResponseEvent{Agent: r.agent, Message: reply, RequestID: r.requestID})
			if !r.emit(ctx, WorkingStatus(reply, r.requestID)) {
				return false
			}
		case domain.StreamDone:
			reply = r.upsertReply(reply, chunk.Content)
			ms := int(time.Since(started).Milliseconds())
			reply.Duration = &ms
			r.publish(ctx, domain.EventLLMCallCompleted, map[string]int{"round": n, "duration_ms": ms})
			tracer.SetOK(llmSpan)
			return r.complete(ctx, reply)
		case domain.StreamError:
			detail := r.streamErrorDetail(chunk)
			tracer.RecordError(llmSpan, errors.New(detail.Message))
			r.fail(ctx, NewErrorMessage(detail))
			return false
		default:
			r.logger.DebugContext(ctx, "ignoring stream chunk", "status", chunk.Status)
		}
	}

	r.inFlight = false
	if r.cancelled(ctx) {
		r.emit(ctx, CanceledStatus())
		return false
	}
	err := domain.NewDomainError("Handler.round", domain.ErrProviderError, "stream ended without a result")
	r.fail(ctx, NewErrorMessage(domain.ErrorDetailOf(err, r.aiCfg.Provider)))
	return false
}

// complete runs the response side of a finished answer and decides who
// gets control next.
func (r *run) complete(ctx context.Context, reply *domain.AgentInstanceMessage) bool {
	ev := hooks.ResponseEvent{Agent: r.agent, Message: reply, RequestID: r.requestID}
	decision := r.reg.ResponseComplete.Call(ctx, ev)

	res := response.Process(ctx, r.reg, response.Input{
		Agent:       r.agent,
		History:     r.agent.History(),
		LLMResponse: reply.Content,
		Template:    r.def.HandlerConfig.Response,
		Configs:     r.configs,
	})
	decision = decision.Merge(res.Decision)

	reply.Content = res.Text
	reply.Modified = time.Now()
	r.persist(reply)

	if decision.ToolCall != nil {
		r.executeTool(ctx, *decision.ToolCall)
	}
	if decision.NextUserMessage != "" {
		next := domain.NewMessage(domain.RoleUser, decision.NextUserMessage)
		next.SetMeta(domain.MetaAutoReply, true)
		next.SetMeta(domain.MetaProcessed, true)
		r.agent.AppendMessage(next)
		r.persist(next)
	}

	if decision.Continue() {
		r.logger.DebugContext(ctx, "continuing without user input",
			"tool_call", decision.ToolCall != nil, "auto_reply", decision.NextUserMessage != "")
		return r.emit(ctx, WorkingStatus(reply, r.requestID))
	}
	r.emit(ctx, CompletedStatus(reply, r.requestID))
	return false
}

func (r *run) executeTool(ctx context.Context, call domain.ToolCall) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool", trace.WithAttributes(
		tracer.StringAttr("tool.id", call.ToolID),
		tracer.StringAttr("plugin.id", call.PluginID),
	))
	defer span.End()

	r.publish(ctx, domain.EventToolCallStarted, domain.ToolCallPayload{ToolID: call.ToolID, PluginID: call.PluginID})
	result := r.invokeTool(ctx, call)
	r.publish(ctx, domain.EventToolCallCompleted, domain.ToolCallPayload{
		ToolID:   call.ToolID,
		PluginID: call.PluginID,
		Success:  result.Success,
		Error:    result.Error,
	})
	if result.Success {
		tracer.SetOK(span)
	} else {
		tracer.RecordError(span, errors.New(result.Error))
		r.logger.InfoContext(ctx, "tool call failed", "tool", call.ToolID, "error", result.Error)
	}

	before := len(r.agent.Messages)
	r.reg.ToolExecuted.Call(ctx, hooks.ToolExecutedEvent{
		Agent:  r.agent,
		Config: r.configByID(call.PluginID),
		Call:   call,
		Result: result,
	})
	for _, m := range r.agent.Messages[before:] {
		r.persist(m)
	}
}

func (r *run) invokeTool(ctx context.Context, call domain.ToolCall) (result domain.ToolResult) {
	exec, ok := r.reg.ToolExecutor(call.ToolID)
	if !ok && r.h.deps.Tools != nil {
		exec, ok = r.h.deps.Tools, true
	}
	if !ok {
		err := domain.NewSubSystemError("tool", "Handler.executeTool", domain.ErrNotFound, call.ToolID)
		return domain.ToolResult{Error: err.Error()}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "tool panicked", "tool", call.ToolID, "panic", rec)
			result = domain.ToolResult{Error: fmt.Sprintf("tool %s panicked: %v", call.ToolID, rec)}
		}
	}()
	return exec.ExecuteTool(ctx, call, domain.ToolScope{AgentID: r.agent.ID, Workspace: workspaceOf(call)})
}

// workspaceOf extracts the workspaceName parameter, if any.
func workspaceOf(call domain.ToolCall) string {
	var p struct {
		WorkspaceName string `json:"workspaceName"`
	}
	if len(call.Parameters) == 0 || json.Unmarshal(call.Parameters, &p) != nil {
		return ""
	}
	return p.WorkspaceName
}

func (r *run) configByID(id string) domain.PluginConfig {
	for _, c := range r.configs {
		if c.ID == id {
			return c
		}
	}
	return domain.PluginConfig{}
}

func (r *run) upsertReply(reply *domain.AgentInstanceMessage, content string) *domain.AgentInstanceMessage {
	if reply == nil {
		reply = domain.NewMessage(domain.RoleAgent, content)
		if r.requestID != "" {
			reply.SetMeta(domain.MetaRequestID, r.requestID)
		}
		r.agent.AppendMessage(reply)
	} else {
		reply.Content = content
		reply.Modified = time.Now()
	}
	r.persist(reply)
	return reply
}

func (r *run) streamErrorDetail(chunk domain.AIStreamChunk) domain.ErrorDetail {
	var detail domain.ErrorDetail
	if chunk.ErrorDetail != nil {
		detail = *chunk.ErrorDetail
	} else {
		detail = domain.ErrorDetail{Name: "ProviderError", Code: domain.CodeProviderError, Message: chunk.Content}
	}
	if detail.Provider == "" {
		detail.Provider = r.aiCfg.Provider
	}
	if detail.Message == "" {
		detail.Message = "the AI provider returned an error"
	}
	return detail
}

// fail records an error turn and ends the invocation with it.
func (r *run) fail(ctx context.Context, msg *domain.AgentInstanceMessage) {
	if r.finished {
		return
	}
	r.agent.AppendMessage(msg)
	r.persist(msg)

	detail, _ := msg.Metadata[domain.MetaErrorDetail].(domain.ErrorDetail)
	r.logger.WarnContext(ctx, "round ended with error", "code", detail.Code, "error", detail.Message)
	r.publish(ctx, domain.EventAgentError, detail)
	r.emit(ctx, ErrorStatus(msg, r.requestID))
}

// emit hands st to the consumer. It returns false once the consumer has
// stopped or a terminal status was delivered.
func (r *run) emit(ctx context.Context, st domain.AgentStatus) bool {
	if r.finished {
		return false
	}
	if st.State != domain.AgentStateCanceled && r.agent != nil {
		r.transition(ctx, st)
	}
	if st.Terminal() {
		r.finished = true
	}
	r.inYield = true
	ok := r.yield(st)
	r.inYield = false
	if !ok {
		r.finished = true
	}
	return ok && !st.Terminal()
}

// transition records a state change, fires agentStatusChanged and publishes
// it. Repeated working statuses count as one transition.
func (r *run) transition(ctx context.Context, st domain.AgentStatus) {
	if st.State == r.lastState && st.State == domain.AgentStateWorking {
		return
	}
	r.lastState = st.State
	r.agent.SetState(st.State)
	if r.reg != nil {
		r.reg.AgentStatusChanged.Call(ctx, hooks.StatusEvent{Agent: r.agent, Status: st})
	}

	payload := domain.StatusChangedPayload{State: st.State, RequestID: st.RequestID}
	if st.Message != nil {
		payload.MessageID = st.Message.ID
		payload.Role = st.Message.Role
	}
	r.publish(ctx, domain.EventAgentStatusChanged, payload)
}

func (r *run) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return r.isCancelled != nil && r.isCancelled()
}

// cancelOutstanding aborts the in-flight AI request, if any.
func (r *run) cancelOutstanding() {
	if !r.inFlight || r.requestID == "" {
		return
	}
	r.inFlight = false
	r.h.deps.AI.CancelAIRequest(r.requestID)
}

func (r *run) persist(msg *domain.AgentInstanceMessage) {
	if r.h.deps.Persister == nil || msg == nil {
		return
	}
	r.h.deps.Persister.DebounceUpdateMessage(msg.Clone(), r.agent.ID)
}

func (r *run) publish(ctx context.Context, typ domain.EventType, payload any) {
	if r.h.deps.Bus == nil {
		return
	}
	r.h.deps.Bus.Publish(ctx, domain.NewEvent(typ, r.agent.ID, payload))
}
