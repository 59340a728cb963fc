package hooks

import "tidgi-agent/internal/domain"

// YieldTo names who receives control after a round.
type YieldTo string

const (
	YieldHuman YieldTo = "human"
	YieldSelf  YieldTo = "self"
	YieldAgent YieldTo = "agent"
)

func (y YieldTo) rank() int {
	switch y {
	case YieldSelf:
		return 3
	case YieldAgent:
		return 2
	case YieldHuman:
		return 1
	default:
		return 0
	}
}

// Decision is the control-flow outcome a handler contributes to a round.
// The zero value expresses no opinion.
type Decision struct {
	YieldTo         YieldTo
	ToolCall        *domain.ToolCall
	NextUserMessage string
}

// Merge combines d with other. self beats agent beats human; the first
// tool call and the first non-empty synthetic user message are kept.
func (d Decision) Merge(other Decision) Decision {
	out := d
	if other.YieldTo.rank() > out.YieldTo.rank() {
		out.YieldTo = other.YieldTo
	}
	if out.ToolCall == nil && other.ToolCall != nil {
		call := *other.ToolCall
		out.ToolCall = &call
	}
	if out.NextUserMessage == "" {
		out.NextUserMessage = other.NextUserMessage
	}
	return out
}

// Target resolves the effective yield target, defaulting to human.
func (d Decision) Target() YieldTo {
	if d.YieldTo == "" {
		return YieldHuman
	}
	return d.YieldTo
}

// Continue reports whether the AI should run another round without waiting
// for the human.
func (d Decision) Continue() bool {
	return d.Target() == YieldSelf
}
