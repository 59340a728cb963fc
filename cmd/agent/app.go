package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tidgi-agent/internal/adapter/knowledge"
	"tidgi-agent/internal/adapter/llm"
	"tidgi-agent/internal/adapter/store"
	"tidgi-agent/internal/adapter/tool"
	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
	"tidgi-agent/internal/infra/logger"
	"tidgi-agent/internal/infra/tracer"
	"tidgi-agent/internal/plugin"
	"tidgi-agent/internal/usecase"
	"tidgi-agent/internal/usecase/eventbus"
)

//go:embed default_definition.yaml
var defaultDefinitionYAML []byte

// app holds the wired components of one process.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *eventbus.Bus
	store     *store.SQLiteStore
	knowledge *knowledge.Index
	tools     *tool.Registry
	ai        *llm.Service
	handler   *usecase.Handler
	defs      map[string]*domain.AgentDefinition

	closers []func() error
}

// setup loads config and opens every collaborator. Callers must call close.
func setup(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, logCloser)

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return tracerShutdown(context.Background()) })

	for _, p := range []string{cfg.Store.Path, cfg.Knowledge.Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
	}

	a.knowledge, err = knowledge.Open(cfg.Knowledge.Path, log.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	a.closers = append(a.closers, a.knowledge.Close)

	a.store, err = store.New(cfg.Store.Path, cfg.Store.Debounce, log.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.bus = eventbus.New(log)
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	a.tools, err = newToolRegistry(cfg.Tools, a.knowledge, log)
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}

	a.ai, err = llm.NewFromConfig(cfg, log.With("component", "llm"))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	a.defs, err = loadDefinitions(cfg.Agent.DefinitionsDir)
	if err != nil {
		return nil, err
	}

	a.handler = usecase.NewHandler(usecase.HandlerDeps{
		AI:        a.ai,
		Tools:     a.tools,
		Persister: a.store,
		Bus:       a.bus,
		Plugins: plugin.Deps{
			Retriever: a.knowledge,
			Tools:     a.tools,
			MCP:       tool.NewMCPDialer(log.With("component", "mcp")),
			Tokens:    plugin.NewTokenCounter(),
		},
		MaxRounds: cfg.Agent.MaxRounds,
		Logger:    log,
		Locker:    usecase.NewAgentLocker(),
	})

	ok = true
	return a, nil
}

// newToolRegistry registers the built-in tools, each under the configured
// rate limit.
func newToolRegistry(cfg config.ToolsConfig, retriever domain.Retriever, log *slog.Logger) (*tool.Registry, error) {
	reg := tool.NewRegistry(log.With("component", "tool"))
	limit := tool.WithRateLimit(cfg.RateLimit.Calls, cfg.RateLimit.Window)
	if err := reg.Register(tool.NewKnowledgeSearchTool(retriever, log), limit); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadDefinitions reads dir and adds the built-in definition unless a file
// overrides it.
func loadDefinitions(dir string) (map[string]*domain.AgentDefinition, error) {
	defs := map[string]*domain.AgentDefinition{}
	if dir != "" {
		var err error
		defs, err = config.LoadDefinitions(dir)
		if err != nil {
			return nil, fmt.Errorf("definitions: %w", err)
		}
	}
	builtin, err := config.ParseDefinition(defaultDefinitionYAML)
	if err != nil {
		return nil, fmt.Errorf("built-in definition: %w", err)
	}
	if _, exists := defs[builtin.ID]; !exists {
		defs[builtin.ID] = builtin
	}
	return defs, nil
}

// definition returns the named definition, falling back to the configured
// one and then the built-in.
func (a *app) definition(id string) (*domain.AgentDefinition, error) {
	if id == "" {
		id = a.cfg.Agent.Definition
	}
	if id == "" {
		id = "wiki-assistant"
	}
	def, ok := a.defs[id]
	if !ok {
		return nil, domain.NewDomainError("definition", domain.ErrNotFound, id)
	}
	return def, nil
}

// close releases components in reverse order of creation.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
