// Package schemafilter applies allow/deny filters to type definitions
// before they are compiled, so one definitions file can back several
// deployments that expose different node types.
package schemafilter

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"cypher-graphql/internal/schema"
)

// Config controls which node types and properties are exposed. Patterns
// are case-insensitive path.Match globs. Missing allow lists default to
// allow-all; deny rules always win.
type Config struct {
	AllowNodes []string `mapstructure:"allow_nodes"`
	DenyNodes  []string `mapstructure:"deny_nodes"`
	// DenyProperties is keyed by node name; "*" applies to every node.
	DenyProperties map[string][]string `mapstructure:"deny_properties"`
}

// Enabled reports whether any filter is configured.
func (c Config) Enabled() bool {
	return len(c.AllowNodes) > 0 || len(c.DenyNodes) > 0 || len(c.DenyProperties) > 0
}

// Validate rejects malformed glob patterns.
func (c Config) Validate() error {
	all := slices.Concat(c.AllowNodes, c.DenyNodes)
	for _, patterns := range c.DenyProperties {
		all = append(all, patterns...)
	}
	for _, p := range all {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

// Report lists what Apply removed.
type Report struct {
	HiddenNodes          []string
	HiddenProperties     []string // Node.property
	DroppedRelationships []string // Node.field
}

// Apply returns a filtered copy of def. Relationships whose target was
// hidden are dropped. Hiding a property that an auth rule of its node
// references is an error, since the rule could no longer be compiled.
func Apply(def schema.Definition, cfg Config) (schema.Definition, Report, error) {
	var report Report
	if !cfg.Enabled() {
		return def, report, nil
	}

	kept := make(map[string]bool, len(def.Nodes))
	nodes := make([]schema.NodeDefinition, 0, len(def.Nodes))
	for _, nd := range def.Nodes {
		if !nodeAllowed(nd.Name, cfg.AllowNodes, cfg.DenyNodes) {
			report.HiddenNodes = append(report.HiddenNodes, nd.Name)
			continue
		}
		kept[nd.Name] = true
		nodes = append(nodes, nd)
	}

	for i := range nodes {
		nd := &nodes[i]
		deny := mergePatterns(cfg.DenyProperties, nd.Name)
		referenced := authReferences(nd.Auth)

		props := make([]schema.PropertyDefinition, 0, len(nd.Properties))
		for _, p := range nd.Properties {
			if !matchesAny(p.Name, deny) {
				props = append(props, p)
				continue
			}
			if referenced[p.Name] {
				return schema.Definition{}, report, fmt.Errorf("node %s: property %s is referenced by an auth rule and cannot be hidden", nd.Name, p.Name)
			}
			report.HiddenProperties = append(report.HiddenProperties, nd.Name+"."+p.Name)
		}
		nd.Properties = props

		rels := make([]schema.RelationshipDefinition, 0, len(nd.Relationships))
		for _, r := range nd.Relationships {
			if !kept[r.Target] {
				report.DroppedRelationships = append(report.DroppedRelationships, nd.Name+"."+r.Field)
				continue
			}
			rels = append(rels, r)
		}
		nd.Relationships = rels
	}

	return schema.Definition{Nodes: nodes}, report, nil
}

func authReferences(rules []schema.AuthRuleDefinition) map[string]bool {
	refs := make(map[string]bool)
	for _, rule := range rules {
		for prop := range rule.Allow {
			refs[prop] = true
		}
		for prop := range rule.Bind {
			refs[prop] = true
		}
		for _, field := range rule.Fields {
			refs[field] = true
		}
	}
	return refs
}

func nodeAllowed(name string, allow, deny []string) bool {
	if matchesAny(name, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(name, allow)
}

func mergePatterns(patterns map[string][]string, node string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	for key, list := range patterns {
		if key != "*" && strings.EqualFold(key, node) {
			combined = append(combined, list...)
		}
	}
	return combined
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if ok, err := path.Match(strings.ToLower(pattern), value); err == nil && ok {
			return true
		}
	}
	return false
}
