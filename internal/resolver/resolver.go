// Package resolver builds the executable GraphQL schema for a compiled set of
// node types. Every node type gets a create mutation whose resolver
// translates the request into one Cypher statement and runs it.
package resolver

import (
	"context"
	"log/slog"

	"github.com/graphql-go/graphql"

	"cypher-graphql/internal/audit"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/observability"
	"cypher-graphql/internal/scalars"
	"cypher-graphql/internal/schema"
	"cypher-graphql/internal/translate"
)

// AuditRecorder receives one entry per executed statement.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Options holds the optional collaborators of a Resolver.
type Options struct {
	Audit   AuditRecorder
	Metrics *observability.TranslateMetrics
	Logger  *slog.Logger
}

// Resolver owns the GraphQL types generated for one schema. Build a new
// Resolver whenever the type definitions change.
type Resolver struct {
	schema     *schema.Schema
	translator *translate.Translator
	executor   dbexec.Executor
	audit      AuditRecorder
	metrics    *observability.TranslateMetrics
	logger     *slog.Logger

	dateTime       *graphql.Scalar
	nonNegativeInt *graphql.Scalar

	// Generated types, keyed by node type name except fieldInputs which is
	// keyed by the relationship input name.
	objects       map[string]*graphql.Object
	responses     map[string]*graphql.Object
	createInputs  map[string]*graphql.InputObject
	whereInputs   map[string]*graphql.InputObject
	connectWhere  map[string]*graphql.InputObject
	optionsInputs map[string]*graphql.InputObject
	fieldInputs   map[string]*graphql.InputObject
}

// New creates a resolver for s that executes statements with executor.
func New(s *schema.Schema, executor dbexec.Executor, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		schema:         s,
		translator:     translate.New(s, logger),
		executor:       executor,
		audit:          opts.Audit,
		metrics:        opts.Metrics,
		logger:         logger,
		dateTime:       scalars.DateTime(),
		nonNegativeInt: scalars.NonNegativeInt(),
		objects:        make(map[string]*graphql.Object),
		responses:      make(map[string]*graphql.Object),
		createInputs:   make(map[string]*graphql.InputObject),
		whereInputs:    make(map[string]*graphql.InputObject),
		connectWhere:   make(map[string]*graphql.InputObject),
		optionsInputs:  make(map[string]*graphql.InputObject),
		fieldInputs:    make(map[string]*graphql.InputObject),
	}
}

// Translator returns the translator used by the mutation resolvers.
func (r *Resolver) Translator() *translate.Translator {
	return r.translator
}

// BuildGraphQLSchema constructs the executable schema: one object type per
// node, the create inputs, and a create<Plural> mutation per node.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	for _, node := range r.schema.Nodes {
		r.declareNodeTypes(node)
	}

	mutationFields := graphql.Fields{}
	for _, node := range r.schema.Nodes {
		mutationFields[node.Names.Mutation] = r.createField(node)
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: graphql.Fields{"_nodeTypes": r.nodeTypesField()},
		}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}
	return graphql.NewSchema(schemaConfig)
}

// nodeTypesField keeps the Query root non-empty; GraphQL requires one.
func (r *Resolver) nodeTypesField() *graphql.Field {
	names := make([]string, 0, len(r.schema.Nodes))
	for _, node := range r.schema.Nodes {
		names = append(names, node.Name)
	}
	return &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
		Description: "Names of the node types that can be created.",
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return names, nil
		},
	}
}
