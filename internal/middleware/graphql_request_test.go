package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestAnalyzeOperation(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		operationName string
		want          OperationInfo
	}{
		{
			name:  "anonymous mutation",
			query: `mutation { createMovies(input: [{title: "Heat"}]) { movies { title } } }`,
			want:  OperationInfo{Type: "mutation", RootFields: []string{"createMovies"}},
		},
		{
			name: "named operation selected from several",
			query: `query Types { _nodeTypes }
				mutation Make { createActors(input: []) { actors { name } } }`,
			operationName: "Make",
			want:          OperationInfo{Name: "Make", Type: "mutation", RootFields: []string{"createActors"}},
		},
		{
			name: "aliases and fragments at the root",
			query: `fragment Both on Mutation {
					createMovies(input: []) { movies { title } }
					...Both
				}
				mutation {
					first: createActors(input: []) { actors { name } }
					... on Mutation { createPosts(input: []) { posts { title } } }
					...Both
				}`,
			want: OperationInfo{Type: "mutation", RootFields: []string{"createActors", "createPosts", "createMovies"}},
		},
		{
			name:          "unknown operation name",
			query:         `mutation Make { createMovies(input: []) { movies { title } } }`,
			operationName: "Other",
			want:          OperationInfo{Name: "Other", Type: "unknown"},
		},
		{
			name:  "syntax error",
			query: `mutation {`,
			want:  OperationInfo{Type: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analyzeOperation(tt.query, tt.operationName))
		})
	}
}

func TestReadGraphQLRequest(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("{ _nodeTypes }")+"&operationName=Types", nil)
	query, name := readGraphQLRequest(get)
	assert.Equal(t, "{ _nodeTypes }", query)
	assert.Equal(t, "Types", name)

	raw := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("mutation { createMovies(input: []) { movies { title } } }"))
	raw.Header.Set("Content-Type", "application/graphql")
	query, name = readGraphQLRequest(raw)
	assert.True(t, strings.HasPrefix(query, "mutation"))
	assert.Empty(t, name)

	put := httptest.NewRequest(http.MethodPut, "/graphql", strings.NewReader(`{"query":"{ _nodeTypes }"}`))
	query, _ = readGraphQLRequest(put)
	assert.Empty(t, query)
}

func TestGraphQLTracingMiddleware_StartsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	handler := GraphQLRequestMiddleware()(GraphQLTracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"mutation Make { createMovies(input: []) { movies { title } } }"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if assert.Len(t, spans, 1) {
		assert.Equal(t, "graphql.execute", spans[0].Name())
		attrs := map[string]string{}
		for _, kv := range spans[0].Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, "mutation", attrs["graphql.operation.type"])
		assert.Equal(t, "Make", attrs["graphql.operation.name"])
	}
}
