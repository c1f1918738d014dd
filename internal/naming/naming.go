package naming

import (
	"log/slog"
)

// Namer derives GraphQL names for node types.
type Namer struct {
	config   Config
	logger   *slog.Logger
	registry *CollisionRegistry
}

// OperationNames are the generated names tied to one node type.
type OperationNames struct {
	// Mutation is the root mutation field, e.g. "createMovies".
	Mutation string
	// ResponseType is the mutation's object type, e.g. "CreateMoviesMutationResponse".
	ResponseType string
	// ResponseField is the response field holding created nodes, e.g. "movies".
	ResponseField string
	// CreateInput is the input object type for one new node, e.g. "MovieCreateInput".
	CreateInput string
	// ConnectWhere is the input type selecting nodes to connect, e.g. "MovieConnectWhere".
	ConnectWhere string
	// Where is the property equality filter type, e.g. "MovieWhere".
	Where string
	// Options is the list options input type, e.g. "MovieOptions".
	Options string
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		registry: NewCollisionRegistry(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision registry, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.registry = NewCollisionRegistry(n.logger)
}

// TypeName normalizes a node name to a GraphQL type name (PascalCase).
// Reserved names get a trailing underscore.
func (n *Namer) TypeName(name string) string {
	typeName := toPascalCase(name)
	if isReservedTypeName(typeName) {
		safeName := typeName + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", typeName),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return typeName
}

// FieldName normalizes a property or relationship name to camelCase.
func (n *Namer) FieldName(name string) string {
	fieldName := toCamelCase(name)
	if isReservedFieldName(name) {
		safeName := "f" + fieldName
		n.logger.Warn("GraphQL field name is reserved, auto-prefixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return fieldName
}

// Operations derives the generated names for a node type.
// Example: "Movie" -> createMovies / CreateMoviesMutationResponse / movies
func (n *Namer) Operations(typeName string) OperationNames {
	plural := n.Pluralize(toPascalCase(typeName))
	return OperationNames{
		Mutation:      "create" + plural,
		ResponseType:  "Create" + plural + "MutationResponse",
		ResponseField: n.Pluralize(toCamelCase(typeName)),
		CreateInput:   typeName + "CreateInput",
		ConnectWhere:  typeName + "ConnectWhere",
		Where:         typeName + "Where",
		Options:       typeName + "Options",
	}
}

// RelationshipInputName returns the input type for a relationship field on
// a create input, e.g. ("Movie", "actors") -> "MovieActorsFieldInput".
func (n *Namer) RelationshipInputName(typeName, fieldName string) string {
	return typeName + toPascalCase(fieldName) + "FieldInput"
}

// Register derives and registers the operation names of a node type.
// A second node producing the same mutation field or response type fails.
func (n *Namer) Register(typeName string) (OperationNames, error) {
	ops := n.Operations(typeName)
	source := "node:" + typeName
	if err := n.registry.Register("type", typeName, source); err != nil {
		return OperationNames{}, err
	}
	if err := n.registry.Register("mutation", ops.Mutation, source); err != nil {
		return OperationNames{}, err
	}
	if err := n.registry.Register("type", ops.ResponseType, source); err != nil {
		return OperationNames{}, err
	}
	return ops, nil
}
