package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"cypher-graphql/internal/observability"
)

// GraphQLMetricsMiddleware records request counts, durations and error
// outcomes per operation type. It runs the request analysis itself when
// GraphQLRequestMiddleware has not.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			operationType := "unknown"
			if info, ok := OperationFromContext(ctx); ok {
				operationType = info.Type
			}

			start := time.Now()
			cw := &capturingWriter{statusWriter: statusWriter{ResponseWriter: w, status: http.StatusOK}}
			next.ServeHTTP(cw, r)

			hasErrors := cw.status >= http.StatusBadRequest || hasGraphQLErrors(cw.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationType)
		})
		analyzed := GraphQLRequestMiddleware()(record)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GET serves GraphiQL pages as well as queries; only POST is counted.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			analyzed.ServeHTTP(w, r)
		})
	}
}

// capturingWriter keeps a copy of the body to detect GraphQL errors, which
// are returned with status 200.
type capturingWriter struct {
	statusWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.statusWriter.Write(b)
}

func hasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
