package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: parse params, start a
// span, run the handler and format its result.
//
// The handler returns:
//   - (string, nil): plain text result
//   - (domain.ToolResult, nil): returned as-is
//   - (any other value, nil): JSON-marshaled into the result data
//   - (nil, error): an error result, marked transient when retrying may help
func Execute[P any](
	ctx context.Context,
	toolID string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "tool."+toolID,
		trace.WithAttributes(tracer.StringAttr("tool.id", toolID)),
	)
	defer span.End()

	var p P
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &p); err != nil {
			tracer.RecordError(span, err)
			return domain.ToolResult{Error: fmt.Sprintf("invalid params: %v", err)}
		}
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn("tool failed", "tool", toolID, "error", err)

		content := err.Error()
		if classifyToolError(err) {
			content += " (transient error, may succeed on retry)"
		}
		return domain.ToolResult{Error: content}
	}
	return formatResult(span, result)
}

func formatResult(span trace.Span, result any) domain.ToolResult {
	switch v := result.(type) {
	case domain.ToolResult:
		if !v.Success {
			tracer.RecordError(span, fmt.Errorf("%s", v.Error))
		} else {
			tracer.SetOK(span)
		}
		return v
	case string:
		tracer.SetOK(span)
		return TextResult(v)
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			tracer.RecordError(span, err)
			return domain.ToolResult{Error: fmt.Sprintf("failed to format response: %v", err)}
		}
		tracer.SetOK(span)
		return TextResult(string(data))
	}
}

// TextResult creates a plain text success result.
func TextResult(s string) domain.ToolResult {
	return domain.ToolResult{Success: true, Data: s}
}

// ErrResult creates a failure result without logging.
func ErrResult(format string, args ...any) domain.ToolResult {
	return domain.ToolResult{Error: fmt.Sprintf(format, args...)}
}
