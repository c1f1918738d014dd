package schemarefresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/naming"
	"cypher-graphql/internal/resolver"
	"cypher-graphql/internal/schema"
	"cypher-graphql/internal/schemafilter"

	"github.com/graphql-go/graphql"
)

// BuildSchemaConfig defines inputs for schema assembly.
type BuildSchemaConfig struct {
	TypeDefs []string
	Naming   naming.Config
	Filter   schemafilter.Config
	Executor dbexec.Executor
	Resolver resolver.Options
	Logger   *slog.Logger
}

// BuildSchemaResult contains the artifacts produced by BuildSchema.
type BuildSchemaResult struct {
	Schema        *schema.Schema
	Resolver      *resolver.Resolver
	GraphQLSchema graphql.Schema
}

// BuildSchema runs the assembly pipeline shared by the server and the
// cyphergen CLI: load type definitions, compile node types with a fresh
// namer, and generate the GraphQL schema.
func BuildSchema(ctx context.Context, cfg BuildSchemaConfig) (*BuildSchemaResult, error) {
	if len(cfg.TypeDefs) == 0 {
		return nil, fmt.Errorf("schema builder requires at least one type definitions file")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("schema builder requires an executor")
	}

	def, err := schema.LoadFiles(ctx, cfg.TypeDefs)
	if err != nil {
		return nil, err
	}
	def, report, err := schemafilter.Apply(def, cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to filter type definitions: %w", err)
	}
	if cfg.Logger != nil && cfg.Filter.Enabled() {
		cfg.Logger.Info("type definitions filtered",
			slog.Any("hidden_nodes", report.HiddenNodes),
			slog.Any("hidden_properties", report.HiddenProperties),
			slog.Any("dropped_relationships", report.DroppedRelationships),
		)
	}

	compiled, err := schema.Compile(def, naming.New(cfg.Naming, cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to compile type definitions: %w", err)
	}

	opts := cfg.Resolver
	if opts.Logger == nil {
		opts.Logger = cfg.Logger
	}
	res := resolver.New(compiled, cfg.Executor, opts)
	graphqlSchema, err := res.BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	return &BuildSchemaResult{
		Schema:        compiled,
		Resolver:      res,
		GraphQLSchema: graphqlSchema,
	}, nil
}

// Fingerprint hashes the contents of the type definition files in order.
// A missing file is an error so a half-written rename never looks like an
// empty schema.
func Fingerprint(paths []string) (string, error) {
	hash := sha256.New()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to fingerprint %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(hash, "%s\x00", path)
		_, err = io.Copy(hash, f)
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to fingerprint %s: %w", path, err)
		}
		_, _ = hash.Write([]byte{0})
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
