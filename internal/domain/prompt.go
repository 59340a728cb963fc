package domain

import (
	"fmt"
	"strings"
)

// Prompt roles understood by the LLM collaborator.
const (
	PromptRoleSystem    = "system"
	PromptRoleUser      = "user"
	PromptRoleAssistant = "assistant"
)

// PromptNode is a node of an agent's prompt template tree. After plugin
// processing a node carries either Text or Children.
type PromptNode struct {
	ID       string        `json:"id"                 yaml:"id"`
	Caption  string        `json:"caption,omitempty"  yaml:"caption,omitempty"`
	Text     string        `json:"text,omitempty"     yaml:"text,omitempty"`
	Role     string        `json:"role,omitempty"     yaml:"role,omitempty"`
	Children []*PromptNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// FindPromptNode searches the tree depth-first and returns the first node
// with the given id.
func FindPromptNode(nodes []*PromptNode, id string) *PromptNode {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.ID == id {
			return n
		}
		if found := FindPromptNode(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// locatePromptNode returns the slice holding the node with id and its index.
func locatePromptNode(nodes *[]*PromptNode, id string) (*[]*PromptNode, int) {
	for i, n := range *nodes {
		if n == nil {
			continue
		}
		if n.ID == id {
			return nodes, i
		}
		if container, idx := locatePromptNode(&n.Children, id); container != nil {
			return container, idx
		}
	}
	return nil, -1
}

// InsertPromptNode splices node into the tree rooted at root.
//
// before/after insert a sibling of the target; relative inserts into the
// target's children at offset; absolute inserts into the root list at
// offset and ignores targetID. Negative offsets count from the end, -1
// meaning append.
func InsertPromptNode(root *[]*PromptNode, targetID string, pos Position, offset int, node *PromptNode) error {
	if pos == PositionAbsolute {
		*root = insertAt(*root, clampOffset(offset, len(*root)), node)
		return nil
	}

	container, idx := locatePromptNode(root, targetID)
	if container == nil {
		return NewDomainError("InsertPromptNode", ErrNotFound, fmt.Sprintf("target %q", targetID))
	}

	switch pos {
	case PositionBefore:
		*container = insertAt(*container, idx, node)
	case PositionAfter, "":
		*container = insertAt(*container, idx+1, node)
	case PositionRelative:
		target := (*container)[idx]
		target.Children = insertAt(target.Children, clampOffset(offset, len(target.Children)), node)
		target.Text = ""
	default:
		return NewDomainError("InsertPromptNode", ErrInvalidInput, fmt.Sprintf("position %q", pos))
	}
	return nil
}

func clampOffset(offset, n int) int {
	if offset < 0 {
		offset = n + 1 + offset
	}
	if offset < 0 {
		return 0
	}
	if offset > n {
		return n
	}
	return offset
}

func insertAt(nodes []*PromptNode, idx int, node *PromptNode) []*PromptNode {
	nodes = append(nodes, nil)
	copy(nodes[idx+1:], nodes[idx:])
	nodes[idx] = node
	return nodes
}

// ClonePrompts deep-copies a prompt tree.
func ClonePrompts(nodes []*PromptNode) []*PromptNode {
	if nodes == nil {
		return nil
	}
	out := make([]*PromptNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		cp := *n
		cp.Children = ClonePrompts(n.Children)
		out = append(out, &cp)
	}
	return out
}

// FlattenPrompts walks the tree depth-first, emitting a fragment for every
// node with non-blank text. A node's text precedes its children. Roles are
// inherited from the nearest ancestor and default to system.
func FlattenPrompts(nodes []*PromptNode) []PromptFragment {
	var out []PromptFragment
	flattenInto(&out, nodes, PromptRoleSystem)
	return out
}

func flattenInto(out *[]PromptFragment, nodes []*PromptNode, inherited string) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		role := inherited
		if n.Role != "" {
			role = n.Role
		}
		if strings.TrimSpace(n.Text) != "" {
			*out = append(*out, PromptFragment{ID: n.ID, Role: role, Text: n.Text})
		}
		flattenInto(out, n.Children, role)
	}
}
