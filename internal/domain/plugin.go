package domain

import (
	"fmt"
	"time"
)

// PluginKind identifies one of the built-in plugin implementations.
type PluginKind string

const (
	PluginFullReplacement PluginKind = "fullReplacement"
	PluginDynamicPosition PluginKind = "dynamicPosition"
	PluginRetrieval       PluginKind = "retrievalAugmentedGeneration"
	PluginMCP             PluginKind = "modelContextProtocol"
	PluginToolCalling     PluginKind = "toolCalling"
	PluginAutoReply       PluginKind = "autoReply"
	PluginWikiSearch      PluginKind = "wikiSearch"
)

// PluginKinds lists every known kind in a stable order.
func PluginKinds() []PluginKind {
	return []PluginKind{
		PluginFullReplacement,
		PluginDynamicPosition,
		PluginRetrieval,
		PluginMCP,
		PluginToolCalling,
		PluginAutoReply,
		PluginWikiSearch,
	}
}

// Valid reports whether k is a known plugin kind.
func (k PluginKind) Valid() bool {
	for _, known := range PluginKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Position controls where a plugin inserts content relative to its target node.
type Position string

const (
	PositionBefore   Position = "before"
	PositionAfter    Position = "after"
	PositionRelative Position = "relative" // inside the target, as a child at Offset
	PositionAbsolute Position = "absolute" // at Offset in the top-level list
)

// Source types for the fullReplacement plugin.
const (
	SourceHistoryOfSession = "historyOfSession"
	SourceLLMResponse      = "llmResponse"
)

// PluginConfig is one entry of an agent definition's plugin list.
// Exactly one parameter field, the one matching PluginID, is populated.
type PluginConfig struct {
	ID       string     `json:"id"                 yaml:"id"`
	PluginID PluginKind `json:"pluginId"           yaml:"pluginId"`
	Caption  string     `json:"caption,omitempty"  yaml:"caption,omitempty"`
	Content  string     `json:"content,omitempty"  yaml:"content,omitempty"`
	Role     string     `json:"role,omitempty"     yaml:"role,omitempty"`

	FullReplacementParam *FullReplacementParam `json:"fullReplacementParam,omitempty" yaml:"fullReplacementParam,omitempty"`
	DynamicPositionParam *DynamicPositionParam `json:"dynamicPositionParam,omitempty" yaml:"dynamicPositionParam,omitempty"`
	RetrievalParam       *RetrievalParam       `json:"retrievalParam,omitempty"       yaml:"retrievalParam,omitempty"`
	MCPParam             *MCPParam             `json:"mcpParam,omitempty"             yaml:"mcpParam,omitempty"`
	ToolCallingParam     *ToolCallingParam     `json:"toolCallingParam,omitempty"     yaml:"toolCallingParam,omitempty"`
	AutoReplyParam       *AutoReplyParam       `json:"autoReplyParam,omitempty"       yaml:"autoReplyParam,omitempty"`
	WikiSearchParam      *WikiSearchParam      `json:"wikiSearchParam,omitempty"      yaml:"wikiSearchParam,omitempty"`
}

// Placement names a target node and where to put new content.
type Placement struct {
	TargetID string   `json:"targetId"         yaml:"targetId"`
	Position Position `json:"position"         yaml:"position"`
	Offset   int      `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// FullReplacementParam configures the fullReplacement plugin.
type FullReplacementParam struct {
	TargetID   string `json:"targetId"   yaml:"targetId"`
	SourceType string `json:"sourceType" yaml:"sourceType"`
	// MaxHistoryTokens bounds the history copied into the prompt; 0 = unbounded.
	MaxHistoryTokens int `json:"maxHistoryTokens,omitempty" yaml:"maxHistoryTokens,omitempty"`
}

// DynamicPositionParam configures the dynamicPosition plugin.
type DynamicPositionParam struct {
	Placement `yaml:",inline"`
}

// RetrievalParam configures retrieval augmented generation.
type RetrievalParam struct {
	Placement `yaml:",inline"`
	Limit     int    `json:"limit,omitempty"     yaml:"limit,omitempty"`
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

// MCPParam configures a Model Context Protocol server bridge.
type MCPParam struct {
	Placement       `yaml:",inline"`
	ServerName      string            `json:"serverName"                yaml:"serverName"`
	Transport       string            `json:"transport"                 yaml:"transport"` // "stdio" or "http"
	Command         string            `json:"command,omitempty"         yaml:"command,omitempty"`
	Args            []string          `json:"args,omitempty"            yaml:"args,omitempty"`
	URL             string            `json:"url,omitempty"             yaml:"url,omitempty"`
	Env             map[string]string `json:"env,omitempty"             yaml:"env,omitempty"`
	Timeout         time.Duration     `json:"timeout,omitempty"         yaml:"timeout,omitempty"`
	FallbackMessage string            `json:"fallbackMessage,omitempty" yaml:"fallbackMessage,omitempty"`
}

// ToolCallingParam configures generic tool calling.
type ToolCallingParam struct {
	Placement `yaml:",inline"`
	// Tools restricts detection to these tool ids; empty allows any.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	// MatchPattern overrides the default tool marker regexp. It must define
	// named groups "name" and "params".
	MatchPattern string `json:"matchPattern,omitempty" yaml:"matchPattern,omitempty"`
}

// AutoReplyParam configures automatic continuation rounds.
type AutoReplyParam struct {
	Keywords    []string `json:"keywords,omitempty"    yaml:"keywords,omitempty"`
	Probability float64  `json:"probability,omitempty" yaml:"probability,omitempty"`
	Filter      string   `json:"filter,omitempty"      yaml:"filter,omitempty"`
	Message     string   `json:"message"               yaml:"message"`
	MaxReplies  int      `json:"maxReplies,omitempty"  yaml:"maxReplies,omitempty"`
}

// WikiSearchParam configures the wiki search tool.
type WikiSearchParam struct {
	Placement  `yaml:",inline"`
	Workspaces []string `json:"workspaces,omitempty" yaml:"workspaces,omitempty"`
	Limit      int      `json:"limit,omitempty"      yaml:"limit,omitempty"`
}

// Validate checks that exactly one parameter field is set and that it
// matches PluginID.
func (c PluginConfig) Validate() error {
	if c.ID == "" {
		return NewSubSystemError("plugin", "PluginConfig.Validate", ErrInvalidInput, "missing id")
	}
	if !c.PluginID.Valid() {
		return NewSubSystemError("plugin", "PluginConfig.Validate", ErrNotFound, fmt.Sprintf("unknown plugin %q", c.PluginID))
	}

	set := c.populatedParams()
	if len(set) != 1 {
		return NewSubSystemError("plugin", "PluginConfig.Validate", ErrInvalidInput,
			fmt.Sprintf("plugin %q must set exactly one parameter, got %d", c.ID, len(set)))
	}
	if set[0] != c.PluginID {
		return NewSubSystemError("plugin", "PluginConfig.Validate", ErrInvalidInput,
			fmt.Sprintf("plugin %q has %s parameters but pluginId %s", c.ID, set[0], c.PluginID))
	}
	return nil
}

func (c PluginConfig) populatedParams() []PluginKind {
	var set []PluginKind
	if c.FullReplacementParam != nil {
		set = append(set, PluginFullReplacement)
	}
	if c.DynamicPositionParam != nil {
		set = append(set, PluginDynamicPosition)
	}
	if c.RetrievalParam != nil {
		set = append(set, PluginRetrieval)
	}
	if c.MCPParam != nil {
		set = append(set, PluginMCP)
	}
	if c.ToolCallingParam != nil {
		set = append(set, PluginToolCalling)
	}
	if c.AutoReplyParam != nil {
		set = append(set, PluginAutoReply)
	}
	if c.WikiSearchParam != nil {
		set = append(set, PluginWikiSearch)
	}
	return set
}
