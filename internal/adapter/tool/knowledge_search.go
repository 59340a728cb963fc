package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/tracer"
)

// KnowledgeSearchToolID is the id of the knowledge search tool.
const KnowledgeSearchToolID = "knowledge-search"

const defaultKnowledgeLimit = 5

var knowledgeSearchSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "workspaceName": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 50}
  },
  "required": ["query"]
}`)

// KnowledgeSearchTool searches the indexed knowledge base.
type KnowledgeSearchTool struct {
	retriever domain.Retriever
	logger    *slog.Logger
}

// NewKnowledgeSearchTool creates the tool over retriever.
func NewKnowledgeSearchTool(retriever domain.Retriever, logger *slog.Logger) *KnowledgeSearchTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeSearchTool{retriever: retriever, logger: logger}
}

func (t *KnowledgeSearchTool) Describe() domain.ToolDescription {
	return domain.ToolDescription{
		ID:          KnowledgeSearchToolID,
		Description: "Full-text search over indexed notes. Returns the best matching passages with their titles.",
		Parameters:  knowledgeSearchSchema,
	}
}

type knowledgeSearchParams struct {
	Query     string `json:"query"`
	Workspace string `json:"workspaceName"`
	Limit     int    `json:"limit"`
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, params json.RawMessage, scope domain.ToolScope) domain.ToolResult {
	return Execute(ctx, KnowledgeSearchToolID, t.logger, params,
		func(ctx context.Context, span trace.Span, p knowledgeSearchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return ErrResult("query is required"), nil
			}
			workspace := p.Workspace
			if workspace == "" {
				workspace = scope.Workspace
			}
			limit := p.Limit
			if limit <= 0 {
				limit = defaultKnowledgeLimit
			}
			span.SetAttributes(
				tracer.StringAttr("knowledge.workspace", workspace),
				tracer.IntAttr("knowledge.limit", limit),
			)

			passages, err := t.retriever.Retrieve(ctx, p.Query, domain.RetrieveOptions{Limit: limit, Workspace: workspace})
			if err != nil {
				return nil, err
			}
			if len(passages) == 0 {
				return fmt.Sprintf("No results for %q.", p.Query), nil
			}

			var b strings.Builder
			for i, ps := range passages {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "## %s\n%s", ps.Title, strings.TrimSpace(ps.Text))
			}
			return b.String(), nil
		})
}
