package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cypher-graphql/internal/logging"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// maxAnalyzedBody caps how much of a request body is buffered for analysis.
const maxAnalyzedBody = 1 << 20

// OperationInfo describes the GraphQL operation a request selects.
type OperationInfo struct {
	Name string
	// Type is "query", "mutation" or "subscription"; "unknown" when the
	// document could not be parsed or the operation was not found.
	Type string
	// RootFields lists the selected root field names, e.g. "createMovies".
	RootFields []string
}

type operationInfoKey struct{}

// OperationFromContext returns the analyzed operation, if any.
func OperationFromContext(ctx context.Context) (OperationInfo, bool) {
	info, ok := ctx.Value(operationInfoKey{}).(OperationInfo)
	return info, ok
}

// GraphQLRequestMiddleware parses the request document once and stores the
// selected operation in the context for metrics, tracing and logs. The
// body is restored for the downstream handler.
func GraphQLRequestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := OperationFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			query, operationName := readGraphQLRequest(r)
			if query == "" {
				next.ServeHTTP(w, r)
				return
			}
			info := analyzeOperation(query, operationName)
			ctx := context.WithValue(r.Context(), operationInfoKey{}, info)

			fields := []any{slog.String("graphql.operation.type", info.Type)}
			if info.Name != "" {
				fields = append(fields, slog.String("graphql.operation.name", info.Name))
			}
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// readGraphQLRequest extracts the document and operation name from GET
// query parameters, an application/graphql body or a JSON envelope.
func readGraphQLRequest(r *http.Request) (query, operationName string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}
	if r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAnalyzedBody+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil || len(body) > maxAnalyzedBody {
		return "", ""
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var envelope struct {
		Query         string `json:"query"`
		OperationName string `json:"operationName"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}
	return envelope.Query, envelope.OperationName
}

func analyzeOperation(query, operationName string) OperationInfo {
	info := OperationInfo{Name: operationName, Type: "unknown"}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "GraphQL request"}),
	})
	if err != nil {
		return info
	}

	fragments := map[string]*ast.FragmentDefinition{}
	var selected *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			switch {
			case operationName == "" && selected == nil:
				selected = d
			case operationName != "" && d.Name != nil && d.Name.Value == operationName:
				selected = d
			}
		}
	}
	if selected == nil {
		return info
	}

	info.Type = string(selected.Operation)
	if selected.Name != nil {
		info.Name = selected.Name.Value
	}
	info.RootFields = rootFieldNames(selected.SelectionSet, fragments, map[string]bool{})
	return info
}

// rootFieldNames flattens inline fragments and spreads at the root level.
func rootFieldNames(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, seen map[string]bool) []string {
	if set == nil {
		return nil
	}
	var names []string
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			names = append(names, s.Name.Value)
		case *ast.InlineFragment:
			names = append(names, rootFieldNames(s.SelectionSet, fragments, seen)...)
		case *ast.FragmentSpread:
			name := s.Name.Value
			if seen[name] {
				continue
			}
			seen[name] = true
			if frag, ok := fragments[name]; ok {
				names = append(names, rootFieldNames(frag.SelectionSet, fragments, seen)...)
			}
		}
	}
	return names
}
