// Package translate compiles GraphQL create mutations into a single
// parameterized Cypher statement.
package translate

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/cypher"
	"cypher-graphql/internal/resolvetree"
	"cypher-graphql/internal/schema"
)

// ProjectionNamespace is the parameter namespace shared by every item's
// projection and authorization guard.
const ProjectionNamespace = "projection"

// Statement is a Cypher statement with its parameters.
type Statement struct {
	Cypher string
	Params map[string]interface{}
	// Node is the created node type.
	Node string
	// Items is the number of nodes created at the top level.
	Items int
	// Guarded reports whether the statement carries a read-authorization
	// guard.
	Guarded bool
}

// Empty reports whether there is nothing to execute.
func (s Statement) Empty() bool {
	return s.Cypher == ""
}

// Translator compiles requests against a compiled schema. It is safe for
// concurrent use.
type Translator struct {
	schema *schema.Schema
	logger *slog.Logger
}

// New creates a Translator.
func New(s *schema.Schema, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{schema: s, logger: logger}
}

// Schema returns the schema the translator was built with.
func (t *Translator) Schema() *schema.Schema {
	return t.schema
}

// TranslateCreate compiles a create<Plural> request. Each input object gets
// its own CALL subquery bound to this<i>; the projection is computed once and
// bound to every item; read-authorization predicates become a single guard
// per item. An empty input list yields an empty statement.
func (t *Translator) TranslateCreate(ec *auth.Context, tree *resolvetree.Tree) (Statement, error) {
	if ec == nil {
		ec = auth.Anonymous()
	}
	if tree == nil {
		return Statement{}, &NamingResolutionError{}
	}

	node, ok := t.schema.NodeForMutation(tree.Name)
	if !ok {
		return Statement{}, &NamingResolutionError{Operation: tree.Name}
	}
	responseFields, ok := tree.FieldsByTypeName[node.Names.ResponseType]
	if !ok {
		return Statement{}, &NamingResolutionError{
			Operation: tree.Name,
			TypeName:  node.Names.ResponseType,
			FieldName: node.Names.ResponseField,
		}
	}
	var selection resolvetree.Fields
	if nodesField, ok := responseFields.ByName(node.Names.ResponseField); ok {
		selection = nodesField.Fields(node.Name)
	}

	inputs, err := objectList(tree.Args["input"])
	if err != nil {
		return Statement{}, &ValidationError{Node: node.Name, Field: "input", Message: err.Error()}
	}
	if len(inputs) == 0 {
		t.logger.Debug("create request has no input items", slog.String("mutation", tree.Name))
		return Statement{}, nil
	}

	var params cypher.Params
	vars := make([]string, len(inputs))
	blocks := make([]string, len(inputs))
	for i, input := range inputs {
		vars[i] = "this" + strconv.Itoa(i)
		frag, err := CreateAndParams(ec, node, input, vars[i], []string{vars[i]})
		if err != nil {
			return Statement{}, fmt.Errorf("input %d: %w", i, err)
		}
		text, p, err := frag.Render()
		if err != nil {
			return Statement{}, fmt.Errorf("input %d: %w", i, err)
		}
		if err := params.Merge(p); err != nil {
			return Statement{}, fmt.Errorf("input %d: %w", i, err)
		}
		blocks[i] = "CALL {\n" + text + "\nRETURN " + vars[i] + "\n}"
	}

	projection, err := ProjectionAndParams(ec, node, selection, cypher.HoleVar(), cypher.HoleNamespace())
	if err != nil {
		return Statement{}, err
	}

	var ret cypher.Builder
	ret.Var(cypher.HoleVar()).Raw(" ").Fragment(projection.Fragment).Raw(" AS ").Var(cypher.HoleVar())
	returnTemplate := ret.Build()

	var guardTemplate cypher.Fragment
	guarded := len(projection.AuthPredicates) > 0
	if guarded {
		var g cypher.Builder
		g.Raw("CALL apoc.util.validate(").Fragment(negatedConjunction(projection.AuthPredicates)).
			Raw(", " + cypher.QuoteString(ForbiddenMessage) + ", [0])")
		guardTemplate = g.Build()
	}

	// Parameters of the shared namespace do not depend on the item
	// variable, so they are rendered and merged exactly once.
	ns := cypher.Binding{Namespace: ProjectionNamespace}
	for _, tmpl := range []cypher.Fragment{returnTemplate, guardTemplate} {
		p, err := tmpl.Bind(ns).Params()
		if err != nil {
			return Statement{}, err
		}
		if err := params.Merge(p); err != nil {
			return Statement{}, err
		}
	}

	guards := make([]string, 0, len(inputs))
	returns := make([]string, len(inputs))
	for i, v := range vars {
		binding := cypher.Binding{Var: v, Namespace: ProjectionNamespace}
		text, err := returnTemplate.Bind(binding).Text()
		if err != nil {
			return Statement{}, err
		}
		returns[i] = text
		if guarded {
			text, err := guardTemplate.Bind(binding).Text()
			if err != nil {
				return Statement{}, err
			}
			guards = append(guards, text)
		}
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(blocks, "\n"))
	for _, guard := range guards {
		sb.WriteString("\n")
		sb.WriteString(guard)
	}
	sb.WriteString("\nRETURN ")
	sb.WriteString(strings.Join(returns, ", "))

	t.logger.Debug("translated create mutation",
		slog.String("mutation", tree.Name),
		slog.Int("items", len(inputs)),
		slog.Int("params", params.Len()),
		slog.Bool("guarded", guarded),
	)

	return Statement{
		Cypher:  sb.String(),
		Params:  params.Map(),
		Node:    node.Name,
		Items:   len(inputs),
		Guarded: guarded,
	}, nil
}
