package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

// WikiSearchToolID is the tool id the wikiSearch plugin answers to.
const WikiSearchToolID = "wiki-search"

const wikiSearchSchema = `{
  "type": "object",
  "properties": {
    "workspaceName": {"type": "string"},
    "query": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 1, "maximum": 50}
  },
  "required": ["query"],
  "additionalProperties": false
}`

type wikiSearchParams struct {
	WorkspaceName string `json:"workspaceName"`
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
}

func registerWikiSearch(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginWikiSearch)

	schema, err := jsonschema.NewCompiler().Compile([]byte(wikiSearchSchema))
	if err != nil {
		return fmt.Errorf("compile wiki search schema: %w", err)
	}

	reg.ProcessPrompts.Tap(string(domain.PluginWikiSearch),
		func(_ context.Context, pc hooks.PromptContext) (hooks.PromptContext, hooks.Decision, error) {
			if pc.Config.PluginID != domain.PluginWikiSearch {
				return pc, hooks.Decision{}, nil
			}
			p := pc.Config.WikiSearchParam
			placeNode(&pc, p.Placement, newNode(pc.Config, describeWikiSearch(pc.Config.Content, p.Workspaces)), logger)
			return pc, hooks.Decision{}, nil
		})

	reg.PostProcess.Tap(string(domain.PluginWikiSearch),
		func(_ context.Context, rc hooks.ResponseContext) (hooks.ResponseContext, hooks.Decision, error) {
			if rc.Config.PluginID != domain.PluginWikiSearch {
				return rc, hooks.Decision{}, nil
			}
			call, ok := defaultMatcher.find(rc.LLMResponse, allowList([]string{WikiSearchToolID}))
			if !ok {
				return rc, hooks.Decision{}, nil
			}
			call.PluginID = rc.Config.ID

			exec := &wikiSearchExecutor{
				schema:    schema,
				retriever: deps.Retriever,
				param:     *rc.Config.WikiSearchParam,
			}
			reg.RegisterToolExecutor(WikiSearchToolID, exec)
			return rc, hooks.Decision{YieldTo: hooks.YieldSelf, ToolCall: &call}, nil
		})

	reg.ToolExecuted.Tap(string(domain.PluginWikiSearch), appendToolResult(domain.PluginWikiSearch))
	return nil
}

func describeWikiSearch(header string, workspaces []string) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(strings.TrimSpace(header))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "## %s\nSearch the user's wiki for notes relevant to a query.\n", WikiSearchToolID)
	if len(workspaces) > 0 {
		fmt.Fprintf(&b, "Available workspaces: %s\n", strings.Join(workspaces, ", "))
	}
	fmt.Fprintf(&b, "Parameters: %s\n", compactJSON(wikiSearchSchema))
	b.WriteString("Example: ")
	b.WriteString(FormatToolUse(WikiSearchToolID, `{"query": "meeting notes", "limit": 3}`))
	return b.String()
}

type wikiSearchExecutor struct {
	schema    *jsonschema.Schema
	retriever domain.Retriever
	param     domain.WikiSearchParam
}

func (e *wikiSearchExecutor) ExecuteTool(ctx context.Context, call domain.ToolCall, scope domain.ToolScope) domain.ToolResult {
	var data any
	if err := json.Unmarshal(call.Parameters, &data); err != nil {
		return domain.ToolResult{Error: fmt.Sprintf("invalid parameters: %v", err)}
	}
	if result := e.schema.Validate(data); !result.IsValid() {
		return domain.ToolResult{Error: fmt.Sprintf("invalid parameters: %s", result.Error())}
	}

	var params wikiSearchParams
	if err := json.Unmarshal(call.Parameters, &params); err != nil {
		return domain.ToolResult{Error: fmt.Sprintf("invalid parameters: %v", err)}
	}

	workspace := params.WorkspaceName
	if workspace == "" {
		workspace = scope.Workspace
	}
	if workspace != "" && len(e.param.Workspaces) > 0 && !slices.Contains(e.param.Workspaces, workspace) {
		return domain.ToolResult{Error: fmt.Sprintf("workspace %q is not available", workspace)}
	}
	if e.retriever == nil {
		return domain.ToolResult{Error: "wiki search is not configured"}
	}

	limit := params.Limit
	if limit <= 0 {
		limit = e.param.Limit
	}
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	passages, err := e.retriever.Retrieve(ctx, params.Query, domain.RetrieveOptions{Limit: limit, Workspace: workspace})
	if err != nil {
		return domain.ToolResult{Error: err.Error()}
	}
	if len(passages) == 0 {
		return domain.ToolResult{Success: true, Data: "No matching notes found."}
	}
	return domain.ToolResult{Success: true, Data: formatPassages("", passages)}
}

func compactJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(b)
}
