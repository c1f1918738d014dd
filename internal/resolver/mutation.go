package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/graphql-go/graphql"

	"cypher-graphql/internal/audit"
	"cypher-graphql/internal/auth"
	"cypher-graphql/internal/dbexec"
	"cypher-graphql/internal/logging"
	"cypher-graphql/internal/resolvetree"
	"cypher-graphql/internal/schema"
	"cypher-graphql/internal/translate"
)

// Error codes reported in GraphQL error extensions.
const (
	codeForbidden = "FORBIDDEN"
	codeBadInput  = "BAD_USER_INPUT"
	codeInternal  = "INTERNAL_SERVER_ERROR"
	codeDatabase  = "DATABASE_ERROR"
)

func (r *Resolver) createField(node *schema.Node) *graphql.Field {
	return &graphql.Field{
		Type: graphql.NewNonNull(r.responses[node.Name]),
		Args: graphql.FieldConfigArgument{
			"input": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.createInputs[node.Name]))),
			},
		},
		Description: "Creates " + node.Name + " nodes and returns them.",
		Resolve:     r.makeCreateResolver(node),
	}
}

func (r *Resolver) makeCreateResolver(node *schema.Node) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		outcome := ""
		ctx, span := startMutationSpan(p.Context, node, p.Info.FieldName)
		p.Context = ctx
		defer func() { span.end(err, outcome) }()

		tree, err := resolvetree.FromResolveParams(p)
		if err != nil {
			return nil, newMutationError(err.Error(), codeInternal)
		}
		stripEmptyInput(tree.Args)

		ec := auth.FromContext(ctx)
		start := time.Now()
		stmt, err := r.translator.TranslateCreate(ec, tree)
		outcome = errorOutcome(err)
		if r.metrics != nil {
			r.metrics.RecordTranslation(ctx, node.Names.Mutation, outcome, stmt.Items, stmt.Guarded, time.Since(start))
		}
		if err != nil {
			r.log(ctx).Info("create mutation rejected",
				slog.String("mutation", node.Names.Mutation),
				slog.String("outcome", outcome),
				slog.String("error", err.Error()),
			)
			return nil, normalizeMutationError(err)
		}
		if stmt.Empty() {
			return map[string]interface{}{node.Names.ResponseField: []interface{}{}}, nil
		}
		span.translated(stmt)

		start = time.Now()
		records, err := r.executor.ExecuteWrite(ctx, stmt)
		elapsed := time.Since(start)
		outcome = errorOutcome(err)
		if r.metrics != nil {
			r.metrics.RecordExecution(ctx, node.Names.Mutation, outcome, elapsed)
		}
		r.recordAudit(ctx, ec, node, stmt, outcome, elapsed)
		if err != nil {
			r.log(ctx).Warn("create mutation failed",
				slog.String("mutation", node.Names.Mutation),
				slog.String("outcome", outcome),
				slog.String("error", err.Error()),
			)
			return nil, normalizeMutationError(err)
		}

		r.log(ctx).Debug("create mutation executed",
			slog.String("mutation", node.Names.Mutation),
			slog.Int("items", stmt.Items),
			slog.Duration("duration", elapsed),
		)
		return map[string]interface{}{node.Names.ResponseField: dbexec.ItemRows(stmt, records)}, nil
	}
}

func (r *Resolver) recordAudit(ctx context.Context, ec *auth.Context, node *schema.Node, stmt translate.Statement, outcome string, elapsed time.Duration) {
	if r.audit == nil {
		return
	}
	entry := audit.Entry{
		RequestID: logging.GetRequestID(ctx),
		Subject:   ec.Subject,
		Mutation:  node.Names.Mutation,
		Node:      stmt.Node,
		Items:     stmt.Items,
		Cypher:    stmt.Cypher,
		Params:    stmt.Params,
		Outcome:   auditOutcome(outcome),
		Duration:  elapsed,
		At:        time.Now().UTC(),
	}
	if err := r.audit.Record(ctx, entry); err != nil {
		r.log(ctx).Error("failed to record audit entry",
			slog.String("mutation", node.Names.Mutation),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Resolver) log(ctx context.Context) *slog.Logger {
	if id := logging.GetRequestID(ctx); id != "" {
		return r.logger.With(slog.String("request_id", id))
	}
	return r.logger
}

// errorOutcome classifies an error for metrics and spans.
func errorOutcome(err error) string {
	var validation *translate.ValidationError
	var naming *translate.NamingResolutionError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, translate.ErrForbidden):
		return "forbidden"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &naming):
		return "naming"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func auditOutcome(outcome string) string {
	switch outcome {
	case "success":
		return audit.OutcomeSuccess
	case "forbidden":
		return audit.OutcomeForbidden
	default:
		return audit.OutcomeError
	}
}

// stripEmptyInput removes placeholder fields from create input at any depth.
func stripEmptyInput(v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		delete(val, emptyInputField)
		for _, child := range val {
			stripEmptyInput(child)
		}
	case []interface{}:
		for _, child := range val {
			stripEmptyInput(child)
		}
	}
}

type mutationError struct {
	message string
	code    string
}

func (e *mutationError) Error() string {
	return e.message
}

// Extensions is reported under "extensions" in the GraphQL error.
func (e *mutationError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

func newMutationError(message, code string) error {
	return &mutationError{message: message, code: code}
}

func normalizeMutationError(err error) error {
	if err == nil {
		return nil
	}
	var validation *translate.ValidationError
	var naming *translate.NamingResolutionError
	switch {
	case errors.Is(err, translate.ErrForbidden):
		return newMutationError("Forbidden", codeForbidden)
	case errors.As(err, &validation):
		return newMutationError(err.Error(), codeBadInput)
	case errors.As(err, &naming):
		return newMutationError(err.Error(), codeInternal)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return newMutationError(err.Error(), codeDatabase)
	}
}
