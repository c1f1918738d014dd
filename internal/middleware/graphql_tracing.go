package middleware

import (
	"log/slog"
	"net/http"

	"cypher-graphql/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a "graphql.execute"
// span and adds trace/span IDs to the request logger.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("cypher-graphql/graphql")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := OperationFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracer.Start(r.Context(), "graphql.execute", trace.WithAttributes(
				attribute.String("graphql.operation.type", info.Type),
				attribute.String("graphql.operation.name", info.Name),
				attribute.StringSlice("graphql.root_fields", info.RootFields),
			))
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
