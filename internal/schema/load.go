package schema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Definition is the on-disk form of type definitions.
type Definition struct {
	Nodes []NodeDefinition `yaml:"nodes"`
}

// NodeDefinition declares one node type.
type NodeDefinition struct {
	Name          string                   `yaml:"name"`
	Labels        []string                 `yaml:"labels"`
	Properties    []PropertyDefinition     `yaml:"properties"`
	Relationships []RelationshipDefinition `yaml:"relationships"`
	Auth          []AuthRuleDefinition     `yaml:"auth"`
}

// PropertyDefinition declares a scalar property.
type PropertyDefinition struct {
	Name         string      `yaml:"name"`
	DBName       string      `yaml:"db_name"`
	Type         string      `yaml:"type"`
	List         bool        `yaml:"list"`
	Required     bool        `yaml:"required"`
	AutoGenerate bool        `yaml:"autogenerate"`
	Timestamp    bool        `yaml:"timestamp"`
	Default      interface{} `yaml:"default"`
}

// RelationshipDefinition declares a relationship field.
type RelationshipDefinition struct {
	Field     string `yaml:"field"`
	Type      string `yaml:"type"`
	Direction string `yaml:"direction"`
	Target    string `yaml:"target"`
	Many      bool   `yaml:"many"`
	Required  bool   `yaml:"required"`
}

// AuthRuleDefinition declares an auth rule.
type AuthRuleDefinition struct {
	Operations      []string          `yaml:"operations"`
	IsAuthenticated bool              `yaml:"is_authenticated"`
	Roles           []string          `yaml:"roles"`
	Allow           map[string]string `yaml:"allow"`
	Bind            map[string]string `yaml:"bind"`
	Fields          []string          `yaml:"fields"`
}

// Decode parses YAML type definitions. Unknown keys are rejected.
func Decode(r io.Reader) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if err == io.EOF {
			return Definition{}, nil
		}
		return Definition{}, fmt.Errorf("failed to decode type definitions: %w", err)
	}
	return def, nil
}

// LoadFile reads type definitions from a YAML file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read type definitions: %w", err)
	}
	def, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadFiles reads several definition files concurrently and concatenates
// their nodes in path order.
func LoadFiles(ctx context.Context, paths []string) (Definition, error) {
	defs := make([]Definition, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			def, err := LoadFile(path)
			if err != nil {
				return err
			}
			defs[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Definition{}, err
	}

	var merged Definition
	for _, def := range defs {
		merged.Nodes = append(merged.Nodes, def.Nodes...)
	}
	return merged, nil
}
