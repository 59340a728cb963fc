package plugin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tidgi-agent/internal/domain"
)

// DefaultToolPattern matches <tool_use name="ID">{json}</tool_use> markers.
const DefaultToolPattern = `(?s)<tool_use\s+name="(?P<name>[^"]+)"\s*>(?P<params>.*?)</tool_use>`

var defaultMatcher = mustMatcher(DefaultToolPattern)

// FormatToolUse renders a tool marker the way the model is asked to emit it.
func FormatToolUse(toolID string, params string) string {
	return fmt.Sprintf(`<tool_use name="%s">%s</tool_use>`, toolID, params)
}

type toolMatcher struct {
	re        *regexp.Regexp
	nameIdx   int
	paramsIdx int
}

func newToolMatcher(pattern string) (*toolMatcher, error) {
	if pattern == "" {
		pattern = DefaultToolPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, domain.NewSubSystemError("plugin", "newToolMatcher", domain.ErrInvalidInput, err.Error())
	}
	m := &toolMatcher{re: re, nameIdx: re.SubexpIndex("name"), paramsIdx: re.SubexpIndex("params")}
	if m.nameIdx < 0 {
		return nil, domain.NewSubSystemError("plugin", "newToolMatcher", domain.ErrInvalidInput,
			"pattern has no (?P<name>...) group")
	}
	return m, nil
}

func mustMatcher(pattern string) *toolMatcher {
	m, err := newToolMatcher(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// find returns the first marker whose tool id passes allow.
func (m *toolMatcher) find(text string, allow func(string) bool) (domain.ToolCall, bool) {
	for _, sub := range m.re.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(sub[m.nameIdx])
		if name == "" || (allow != nil && !allow(name)) {
			continue
		}
		var params string
		if m.paramsIdx >= 0 {
			params = sub[m.paramsIdx]
		}
		return domain.ToolCall{ToolID: name, Parameters: normalizeParams(params), Raw: sub[0]}, true
	}
	return domain.ToolCall{}, false
}

// normalizeParams turns marker content into JSON. Non-JSON content is
// carried as a JSON string so validators can report it.
func normalizeParams(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	b, _ := json.Marshal(raw)
	return b
}

func allowList(ids []string) func(string) bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

// describeTools renders a tool catalog for the system prompt.
func describeTools(tools []domain.ToolDescription) string {
	var b strings.Builder
	b.WriteString("You can call the following tools. To call one, reply with a single marker:\n")
	b.WriteString(FormatToolUse("TOOL_ID", `{"param": "value"}`))
	b.WriteString("\n\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "## %s\n%s\n", t.ID, t.Description)
		if len(t.Parameters) > 0 {
			fmt.Fprintf(&b, "Parameters: %s\n", string(t.Parameters))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// toolResultMessage builds the history entry recording a tool execution.
func toolResultMessage(call domain.ToolCall, result domain.ToolResult) *domain.AgentInstanceMessage {
	var b strings.Builder
	b.WriteString("<functions_result>\n")
	fmt.Fprintf(&b, "Tool: %s\n", call.ToolID)
	fmt.Fprintf(&b, "Parameters: %s\n", string(call.Parameters))
	if result.Success {
		fmt.Fprintf(&b, "Result: %s\n", result.Data)
	} else {
		fmt.Fprintf(&b, "Error: %s\n", result.Error)
	}
	b.WriteString("</functions_result>")

	msg := domain.NewMessage(domain.RoleTool, b.String())
	msg.SetMeta(domain.MetaIsToolResult, true)
	msg.SetMeta(domain.MetaToolID, call.ToolID)
	return msg
}
