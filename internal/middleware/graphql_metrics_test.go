package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cypher-graphql/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestGraphQLMetricsMiddleware_Classification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		response   string
		opType     string
		hasErrors  bool
		errorCount int64
	}{
		{
			name:     "mutation",
			body:     `{"query":"mutation CreateMovies { createMovies(input: [{title: \"Heat\"}]) { movies { title } } }","operationName":"CreateMovies"}`,
			response: `{"data":{"createMovies":{"movies":[{"title":"Heat"}]}}}`,
			opType:   "mutation",
		},
		{
			name:     "query",
			body:     `{"query":"query Types { _nodeTypes }","operationName":"Types"}`,
			response: `{"data":{"_nodeTypes":["Movie"]}}`,
			opType:   "query",
		},
		{
			name:       "errors in a 200 response",
			body:       `{"query":"mutation { createMovies(input: []) { movies { title } } }"}`,
			response:   `{"data":null,"errors":[{"message":"Forbidden","extensions":{"code":"FORBIDDEN"}}]}`,
			opType:     "mutation",
			hasErrors:  true,
			errorCount: 1,
		},
		{
			name:     "unparsable body",
			body:     `{"query":`,
			response: `{"data":{"ok":true}}`,
			opType:   "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			}))

			req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			rm := collectMetrics(t, reader)
			assert.Equal(t, int64(1), sumInt64Value(rm, "graphql.requests.total", tt.opType, boolPtr(tt.hasErrors)))
			assert.Equal(t, tt.errorCount, sumInt64Value(rm, "graphql.errors.total", tt.opType, nil))
		})
	}
}

func setupGraphQLMetricsMiddleware(t *testing.T, next http.Handler) (http.Handler, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	oldProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(oldProvider)
	})

	metrics, err := observability.InitGraphQLMetrics()
	if err != nil {
		t.Fatalf("failed to initialize GraphQL metrics: %v", err)
	}
	return GraphQLMetricsMiddleware(metrics)(next), reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func sumInt64Value(rm metricdata.ResourceMetrics, metricName, operationType string, hasErrors *bool) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != metricName {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if !hasAttr(point.Attributes, "operation_type", attribute.StringValue(operationType)) {
					continue
				}
				if hasErrors != nil && !hasAttr(point.Attributes, "has_errors", attribute.BoolValue(*hasErrors)) {
					continue
				}
				total += point.Value
			}
		}
	}
	return total
}

func hasAttr(attrs attribute.Set, key string, want attribute.Value) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v == want
}

func boolPtr(v bool) *bool {
	return &v
}

func TestGraphQLMetricsMiddleware_BodyReachesHandler(t *testing.T) {
	body := `{"query":"mutation { createMovies(input: []) { movies { title } } }"}`
	var seen string
	var info OperationInfo
	handler, _ := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(raw)
		info, _ = OperationFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, body, seen)
	assert.Equal(t, "mutation", info.Type)
	assert.Equal(t, []string{"createMovies"}, info.RootFields)
}

func TestGraphQLMetricsMiddleware_SkipsGet(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	rm := collectMetrics(t, reader)
	assert.Zero(t, sumInt64Value(rm, "graphql.requests.total", "unknown", nil))
}
