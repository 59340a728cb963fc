package plugin

import (
	"context"
	"fmt"
	"strings"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

const defaultRetrievalLimit = 5

func registerRetrieval(reg *hooks.Registry, deps Deps) error {
	logger := deps.logger().With("plugin", domain.PluginRetrieval)

	reg.ProcessPrompts.Tap(string(domain.PluginRetrieval),
		func(ctx context.Context, pc hooks.PromptContext) (hooks.PromptContext, hooks.Decision, error) {
			if pc.Config.PluginID != domain.PluginRetrieval {
				return pc, hooks.Decision{}, nil
			}
			if deps.Retriever == nil {
				logger.Debug("no retriever configured", "id", pc.Config.ID)
				return pc, hooks.Decision{}, nil
			}
			query := latestUserMessage(pc.History)
			if strings.TrimSpace(query) == "" {
				return pc, hooks.Decision{}, nil
			}

			p := pc.Config.RetrievalParam
			limit := p.Limit
			if limit <= 0 {
				limit = defaultRetrievalLimit
			}
			passages, err := deps.Retriever.Retrieve(ctx, query, domain.RetrieveOptions{Limit: limit, Workspace: p.Workspace})
			if err != nil {
				return pc, hooks.Decision{}, domain.WrapOp("retrieve", err)
			}
			if len(passages) == 0 {
				return pc, hooks.Decision{}, nil
			}

			placeNode(&pc, p.Placement, newNode(pc.Config, formatPassages(pc.Config.Content, passages)), logger)
			return pc, hooks.Decision{}, nil
		})
	return nil
}

func formatPassages(header string, passages []domain.Passage) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", p.Title, strings.TrimSpace(p.Text))
	}
	return b.String()
}
