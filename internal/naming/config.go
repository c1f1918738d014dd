// Package naming derives the GraphQL names (types, inputs, mutation fields and
// response fields) generated for each node type, including pluralization,
// reserved word handling and collision detection.
package naming

import "strings"

// Config customizes generated names.
type Config struct {
	// PluralOverrides maps a node type name to its plural, e.g.
	// {"Person": "People"}. Keys match case-insensitively.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
}

// DefaultConfig has no overrides.
func DefaultConfig() Config {
	return Config{PluralOverrides: map[string]string{}}
}

// plural returns the configured plural for name. An exact key wins over a
// case-insensitive one so {"person": ..., "Person": ...} stays deterministic.
func (c Config) plural(name string) (string, bool) {
	if p, ok := c.PluralOverrides[name]; ok {
		return p, true
	}
	for k, p := range c.PluralOverrides {
		if strings.EqualFold(k, name) {
			return p, true
		}
	}
	return "", false
}
