package domain

import "strings"

// ResponseNode is a node of the response template tree.
type ResponseNode struct {
	ID       string          `json:"id"                 yaml:"id"`
	Text     string          `json:"text,omitempty"     yaml:"text,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"  yaml:"enabled,omitempty"`
	Children []*ResponseNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsEnabled reports whether the node renders. Nodes default to enabled.
func (n *ResponseNode) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// SetEnabled toggles rendering of the node and its subtree.
func (n *ResponseNode) SetEnabled(v bool) {
	n.Enabled = &v
}

// FindResponseNode searches depth-first for the node with id.
func FindResponseNode(nodes []*ResponseNode, id string) *ResponseNode {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.ID == id {
			return n
		}
		if found := FindResponseNode(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// CloneResponses deep-copies a response tree.
func CloneResponses(nodes []*ResponseNode) []*ResponseNode {
	if nodes == nil {
		return nil
	}
	out := make([]*ResponseNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		cp := *n
		if n.Enabled != nil {
			v := *n.Enabled
			cp.Enabled = &v
		}
		cp.Children = CloneResponses(n.Children)
		out = append(out, &cp)
	}
	return out
}

// RenderResponses concatenates the text of enabled leaves in order,
// newline-joined and trimmed. A disabled node suppresses its subtree.
func RenderResponses(nodes []*ResponseNode) string {
	var parts []string
	collectLeaves(&parts, nodes)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func collectLeaves(parts *[]string, nodes []*ResponseNode) {
	for _, n := range nodes {
		if n == nil || !n.IsEnabled() {
			continue
		}
		if len(n.Children) > 0 {
			collectLeaves(parts, n.Children)
			continue
		}
		if n.Text != "" {
			*parts = append(*parts, n.Text)
		}
	}
}
