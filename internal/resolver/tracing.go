package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cypher-graphql/internal/schema"
	"cypher-graphql/internal/translate"
)

var tracer = otel.Tracer("cypher-graphql/resolver")

// mutationSpan covers one create mutation from tree building to execution.
type mutationSpan struct {
	span trace.Span
}

func startMutationSpan(ctx context.Context, node *schema.Node, field string) (context.Context, mutationSpan) {
	ctx, span := tracer.Start(ctx, "graphql.mutation.create", trace.WithAttributes(
		attribute.String("graph.node", node.Name),
		attribute.String("graphql.mutation", node.Names.Mutation),
		attribute.String("graphql.field.name", field),
	))
	return ctx, mutationSpan{span: span}
}

// translated records the statement shape. Text and parameters stay out of
// spans since they carry user input.
func (s mutationSpan) translated(stmt translate.Statement) {
	s.span.AddEvent("cypher.translated", trace.WithAttributes(
		attribute.Int("cypher.items", stmt.Items),
		attribute.Int("cypher.params", len(stmt.Params)),
		attribute.Bool("cypher.guarded", stmt.Guarded),
	))
}

func (s mutationSpan) end(err error, outcome string) {
	if outcome == "" {
		outcome = errorOutcome(err)
	}
	s.span.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, outcome)
	}
	s.span.End()
}
