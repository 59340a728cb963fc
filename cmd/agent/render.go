package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tidgi-agent/internal/domain"
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	toolStyle   = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("8")).PaddingLeft(2)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
)

// renderer prints streamed statuses incrementally. Agent text is written as
// deltas against what was already printed for the same message.
type renderer struct {
	w       io.Writer
	current string // id of the agent message being streamed
	printed int    // bytes of current already written
	seen    map[string]bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, seen: make(map[string]bool)}
}

func (r *renderer) status(s domain.AgentStatus) {
	msg := s.Message
	switch {
	case s.State == domain.AgentStateCanceled:
		r.endLine()
		fmt.Fprintln(r.w, noticeStyle.Render("(canceled)"))
		return
	case msg == nil:
		return
	}

	switch msg.Role {
	case domain.RoleAgent:
		r.agentText(msg)
		if s.Terminal() {
			r.endLine()
		}
	case domain.RoleTool:
		if r.seen[msg.ID] {
			return
		}
		r.seen[msg.ID] = true
		r.endLine()
		fmt.Fprintln(r.w, toolStyle.Render(summarizeToolResult(msg.Content)))
	case domain.RoleError:
		r.endLine()
		fmt.Fprintln(r.w, errorStyle.Render(msg.Content))
	default:
		if s.Terminal() {
			r.endLine()
			fmt.Fprintln(r.w, noticeStyle.Render(msg.Content))
		}
	}
}

func (r *renderer) agentText(msg *domain.AgentInstanceMessage) {
	if msg.ID != r.current {
		r.endLine()
		r.current = msg.ID
		r.printed = 0
		fmt.Fprint(r.w, agentStyle.Render("agent>"), " ")
	}
	// Response processing may rewrite the final text; only an unseen
	// suffix is printed.
	if len(msg.Content) < r.printed {
		return
	}
	if delta := msg.Content[r.printed:]; delta != "" {
		fmt.Fprint(r.w, delta)
		r.printed = len(msg.Content)
	}
}

func (r *renderer) endLine() {
	if r.current != "" {
		fmt.Fprintln(r.w)
		r.current = ""
		r.printed = 0
	}
}

func promptLine(name string) string {
	return userStyle.Render(name+">") + " "
}

// summarizeToolResult keeps the first lines of a tool result message.
func summarizeToolResult(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "<functions_result>")
	content = strings.TrimSuffix(content, "</functions_result>")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	const maxLines = 4
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], fmt.Sprintf("... (%d more lines)", len(lines)-maxLines))
	}
	return strings.Join(lines, "\n")
}
