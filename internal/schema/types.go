// Package schema describes the graph node types exposed through GraphQL:
// their properties, relationships and authorization rules. A Schema is
// compiled once from type definitions and is immutable afterwards.
package schema

import (
	"strings"

	"cypher-graphql/internal/naming"
)

// Kind is the scalar kind of a property.
type Kind string

const (
	KindID       Kind = "ID"
	KindString   Kind = "String"
	KindInt      Kind = "Int"
	KindFloat    Kind = "Float"
	KindBoolean  Kind = "Boolean"
	KindDateTime Kind = "DateTime"
)

func (k Kind) valid() bool {
	switch k {
	case KindID, KindString, KindInt, KindFloat, KindBoolean, KindDateTime:
		return true
	}
	return false
}

// Property is a scalar field stored on a node.
type Property struct {
	// Name is the GraphQL field name.
	Name string
	// DBName is the property key stored in the graph.
	DBName string
	Kind   Kind
	List   bool
	// Required properties must be supplied on create unless they are
	// generated or defaulted.
	Required bool
	// AutoGenerate assigns randomUUID() on create. ID properties only.
	AutoGenerate bool
	// Timestamp assigns datetime() on create. DateTime properties only.
	Timestamp bool
	// Default is used when the property is absent from create input.
	Default interface{}
}

// Generated reports whether the value is produced by the database rather
// than taken from input.
func (p Property) Generated() bool {
	return p.AutoGenerate || p.Timestamp
}

// Direction is the direction of a relationship as seen from its owner.
type Direction string

const (
	DirectionOut Direction = "OUT"
	DirectionIn  Direction = "IN"
)

// Relationship is a field linking a node to another node type.
type Relationship struct {
	FieldName string
	// Type is the relationship type in the graph, e.g. ACTED_IN.
	Type      string
	Direction Direction
	Many      bool
	Required  bool
	Target    *Node
	// InputName is the create input type for the field, e.g.
	// MovieActorsFieldInput.
	InputName string
}

// Operation is an operation an auth rule can govern.
type Operation string

const (
	OperationRead    Operation = "READ"
	OperationCreate  Operation = "CREATE"
	OperationConnect Operation = "CONNECT"
)

// ClaimBinding pairs a node property with a claim reference such as
// "$jwt.sub".
type ClaimBinding struct {
	Property string
	Claim    string
}

// AuthRule restricts an operation on a node type.
type AuthRule struct {
	Operations      []Operation
	IsAuthenticated bool
	Roles           []string
	// Allow restricts reads to nodes whose properties equal claim values.
	Allow []ClaimBinding
	// Bind requires created property values to equal claim values.
	Bind []ClaimBinding
	// Fields limits the rule to requests touching these fields. Empty means
	// the rule applies to the whole node.
	Fields []string
}

// Covers reports whether the rule governs op.
func (r AuthRule) Covers(op Operation) bool {
	for _, o := range r.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// CoversField reports whether a field-scoped rule names field.
func (r AuthRule) CoversField(field string) bool {
	for _, f := range r.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Node is a node type.
type Node struct {
	Name          string
	Labels        []string
	Properties    []Property
	Relationships []Relationship
	Auth          []AuthRule
	Names         naming.OperationNames

	propertyIndex     map[string]int
	relationshipIndex map[string]int
}

// Property looks up a property by GraphQL field name.
func (n *Node) Property(name string) (*Property, bool) {
	i, ok := n.propertyIndex[name]
	if !ok {
		return nil, false
	}
	return &n.Properties[i], true
}

// Relationship looks up a relationship by GraphQL field name.
func (n *Node) Relationship(name string) (*Relationship, bool) {
	i, ok := n.relationshipIndex[name]
	if !ok {
		return nil, false
	}
	return &n.Relationships[i], true
}

// RulesFor returns the positions in n.Auth of the node-wide rules governing
// op, in declaration order. Positions name a rule's parameters.
func (n *Node) RulesFor(op Operation) []int {
	var out []int
	for i, r := range n.Auth {
		if r.Covers(op) && len(r.Fields) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// FieldRulesFor returns the positions in n.Auth of the field-scoped rules
// governing op for field.
func (n *Node) FieldRulesFor(op Operation, field string) []int {
	var out []int
	for i, r := range n.Auth {
		if r.Covers(op) && r.CoversField(field) {
			out = append(out, i)
		}
	}
	return out
}

// Schema is the compiled set of node types.
type Schema struct {
	Nodes []*Node

	byName     map[string]*Node
	byMutation map[string]*Node
}

// Node looks up a node type by name.
func (s *Schema) Node(name string) (*Node, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// NodeForMutation looks up the node type created by a mutation field such as
// "createMovies".
func (s *Schema) NodeForMutation(field string) (*Node, bool) {
	n, ok := s.byMutation[field]
	return n, ok
}

// ClaimPath splits a claim reference like "$jwt.org.id" into its path
// ("org", "id"). ok is false when the reference does not start with "$jwt.".
func ClaimPath(ref string) ([]string, bool) {
	const prefix = "$jwt."
	if !strings.HasPrefix(ref, prefix) || len(ref) == len(prefix) {
		return nil, false
	}
	return strings.Split(ref[len(prefix):], "."), true
}
