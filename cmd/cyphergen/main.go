// Command cyphergen compiles a create mutation against type definitions and
// prints the Cypher statement and parameters without touching a database.
//
//	cyphergen --typedefs movies.yaml \
//	  --query 'mutation { createMovies(input: [{title: "Heat"}]) { movies { title } } }'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/logging"
	"cypher-graphql/internal/naming"
	"cypher-graphql/internal/schemarefresh"

	"github.com/graphql-go/graphql"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "cyphergen:", err)
		os.Exit(1)
	}
}

type options struct {
	typeDefs   []string
	query      string
	queryFile  string
	variables  string
	claims     string
	rolesClaim string
	format     string
	verbose    bool
}

type statementOutput struct {
	Node   string                 `json:"node"`
	Items  int                    `json:"items"`
	Cypher string                 `json:"cypher"`
	Params map[string]interface{} `json:"params"`
}

type output struct {
	Statements []statementOutput `json:"statements"`
	Errors     []string          `json:"errors,omitempty"`
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("cyphergen", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringSliceVar(&opts.typeDefs, "typedefs", nil, "Type definition files (YAML)")
	fs.StringVarP(&opts.query, "query", "q", "", "GraphQL mutation document")
	fs.StringVar(&opts.queryFile, "query-file", "", "Read the mutation document from a file (- for stdin)")
	fs.StringVar(&opts.variables, "variables", "", "Variables as a JSON object")
	fs.StringVar(&opts.claims, "claims", "", "Caller JWT claims as a JSON object (anonymous when empty)")
	fs.StringVar(&opts.rolesClaim, "roles-claim", "roles", "Dotted claim path holding the caller roles")
	fs.StringVar(&opts.format, "format", "text", "Output format: text or json")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log schema assembly to stderr")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if len(opts.typeDefs) == 0 {
		return nil, errors.New("--typedefs is required")
	}
	if (opts.query == "") == (opts.queryFile == "") {
		return nil, errors.New("exactly one of --query or --query-file is required")
	}
	if opts.format != "text" && opts.format != "json" {
		return nil, fmt.Errorf("unknown --format %q", opts.format)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	query := opts.query
	if opts.queryFile != "" {
		query, err = readQuery(opts.queryFile)
		if err != nil {
			return err
		}
	}
	variables, err := decodeObject("--variables", opts.variables)
	if err != nil {
		return err
	}
	caller := auth.Anonymous()
	if opts.claims != "" {
		claims, err := decodeObject("--claims", opts.claims)
		if err != nil {
			return err
		}
		caller = auth.FromClaims(claims, opts.rolesClaim)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger := logging.NewLogger(logging.Config{Level: level, Format: "text", Output: stderr})

	executor := dbexec.NewRecordingExecutor()
	built, err := schemarefresh.BuildSchema(ctx, schemarefresh.BuildSchemaConfig{
		TypeDefs: opts.typeDefs,
		Naming:   naming.DefaultConfig(),
		Executor: executor,
		Logger:   logger.Logger,
	})
	if err != nil {
		return err
	}

	execCtx := logging.WithLogger(auth.WithContext(ctx, caller), logger)
	result := graphql.Do(graphql.Params{
		Schema:         built.GraphQLSchema,
		RequestString:  query,
		VariableValues: variables,
		Context:        execCtx,
	})

	out := output{}
	for _, stmt := range executor.Statements() {
		out.Statements = append(out.Statements, statementOutput{
			Node:   stmt.Node,
			Items:  stmt.Items,
			Cypher: stmt.Cypher,
			Params: stmt.Params,
		})
	}
	for _, gqlErr := range result.Errors {
		out.Errors = append(out.Errors, gqlErr.Message)
	}
	logger.Debug("dry run complete",
		slog.Int("statements", len(out.Statements)),
		slog.Int("errors", len(out.Errors)),
	)

	if err := write(stdout, opts.format, out); err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("%d GraphQL error(s)", len(out.Errors))
	}
	return nil
}

func write(w io.Writer, format string, out output) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for i, stmt := range out.Statements {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "// %s x%d\n%s\n", stmt.Node, stmt.Items, stmt.Cypher)
		params, err := json.MarshalIndent(stmt.Params, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "// params\n%s\n", params)
	}
	for _, msg := range out.Errors {
		fmt.Fprintf(w, "// error: %s\n", msg)
	}
	return nil
}

func readQuery(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return string(data), nil
}

func decodeObject(flag, raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%s must be a JSON object: %w", flag, err)
	}
	return out, nil
}
