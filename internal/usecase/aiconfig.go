package usecase

import (
	"maps"

	"dario.cat/mergo"

	"tidgi-agent/internal/domain"
)

// MergeAIConfig layers AI configs left to right; non-zero fields of later
// layers win and Extra maps merge key by key. Inputs are never modified.
func MergeAIConfig(layers ...domain.AIConfig) (domain.AIConfig, error) {
	var out domain.AIConfig
	for _, layer := range layers {
		layer.Extra = maps.Clone(layer.Extra)
		if err := mergo.Merge(&out, layer, mergo.WithOverride); err != nil {
			return out, domain.WrapOp("MergeAIConfig", err)
		}
	}
	return out, nil
}
