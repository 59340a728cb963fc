package llm

import (
	"fmt"
	"slices"
	"sync"

	"tidgi-agent/internal/domain"
)

// Registry holds named streamers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Streamer
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Streamer),
	}
}

// Register adds a streamer. Returns error if name already registered.
func (r *Registry) Register(s Streamer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = s
	return nil
}

// Get retrieves a streamer by name.
func (r *Registry) Get(name string) (Streamer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return s, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
