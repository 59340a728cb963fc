// Package plugin maps plugin kinds to the factories that attach their
// handlers to a per-round hook registry.
package plugin

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/usecase/hooks"
)

// Factory attaches one plugin kind's handlers to reg. It runs at most once
// per registry; handlers must filter on the config they are invoked with.
type Factory func(reg *hooks.Registry, deps Deps) error

// Deps carries the optional collaborators plugins use. Nil collaborators
// disable the features that need them.
type Deps struct {
	Logger    *slog.Logger
	Retriever domain.Retriever
	Tools     domain.ToolCatalog
	MCP       domain.MCPDialer
	Bus       domain.EventBus
	// Rand returns a float in [0,1). Defaults to math/rand/v2.
	Rand   func() float64
	Tokens TokenCounter
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) random() float64 {
	if d.Rand == nil {
		return rand.Float64()
	}
	return d.Rand()
}

func (d Deps) tokens() TokenCounter {
	if d.Tokens == nil {
		return NewTokenCounter()
	}
	return d.Tokens
}

var (
	mu           sync.RWMutex
	factories    = make(map[domain.PluginKind]Factory)
	builtinsOnce sync.Once
)

// Register installs f for kind, replacing any previous factory.
func Register(kind domain.PluginKind, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Lookup returns the factory for kind.
func Lookup(kind domain.PluginKind) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

// RegisterBuiltins installs the built-in plugins. Safe to call repeatedly
// and concurrently; only the first call registers.
func RegisterBuiltins() {
	builtinsOnce.Do(func() {
		Register(domain.PluginFullReplacement, registerFullReplacement)
		Register(domain.PluginDynamicPosition, registerDynamicPosition)
		Register(domain.PluginRetrieval, registerRetrieval)
		Register(domain.PluginMCP, registerMCP)
		Register(domain.PluginToolCalling, registerToolCalling)
		Register(domain.PluginAutoReply, registerAutoReply)
		Register(domain.PluginWikiSearch, registerWikiSearch)
	})
}
