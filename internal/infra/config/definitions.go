package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tidgi-agent/internal/domain"
)

// LoadDefinition reads a single agent definition from a YAML file.
func LoadDefinition(path string) (*domain.AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", filepath.Base(path), err)
	}
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// ParseDefinition decodes a definition document. Plugin entries are not
// validated here; the plugin loader skips invalid entries at run time.
func ParseDefinition(data []byte) (*domain.AgentDefinition, error) {
	var def domain.AgentDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, domain.NewDomainError("ParseDefinition", domain.ErrConfigLoad, err.Error())
	}
	seen := make(map[string]bool, len(def.HandlerConfig.Plugins))
	for _, p := range def.HandlerConfig.Plugins {
		if p.ID == "" {
			continue
		}
		if seen[p.ID] {
			return nil, domain.NewDomainError("ParseDefinition", domain.ErrDuplicate, fmt.Sprintf("plugin id %q", p.ID))
		}
		seen[p.ID] = true
	}
	return &def, nil
}

// LoadDefinitions reads every *.yaml / *.yml file in dir, keyed by id.
// A missing directory yields an empty map.
func LoadDefinitions(dir string) (map[string]*domain.AgentDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*domain.AgentDefinition{}, nil
		}
		return nil, fmt.Errorf("read definitions dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make(map[string]*domain.AgentDefinition, len(names))
	for _, name := range names {
		def, err := LoadDefinition(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := defs[def.ID]; dup {
			return nil, domain.NewDomainError("LoadDefinitions", domain.ErrDuplicate, fmt.Sprintf("definition id %q", def.ID))
		}
		defs[def.ID] = def
	}
	return defs, nil
}
