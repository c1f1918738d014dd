// Package dbexec executes translated statements against a graph database.
package dbexec

import (
	"context"
	"sync"

	"cypher-graphql/internal/translate"
)

// Record is one result row keyed by column name.
type Record map[string]interface{}

// Executor runs translated statements. Implementations map runtime
// authorization failures to translate.ErrForbidden.
type Executor interface {
	ExecuteWrite(ctx context.Context, stmt translate.Statement) ([]Record, error)
	Close(ctx context.Context) error
}

// RecordingExecutor keeps every statement it is asked to run and answers
// with Respond, or with no rows when Respond is nil. It backs dry runs and
// tests.
type RecordingExecutor struct {
	Respond func(stmt translate.Statement) ([]Record, error)

	mu         sync.Mutex
	statements []translate.Statement
}

// NewRecordingExecutor creates an executor that returns no rows.
func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{}
}

func (e *RecordingExecutor) ExecuteWrite(ctx context.Context, stmt translate.Statement) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.statements = append(e.statements, stmt)
	e.mu.Unlock()
	if e.Respond == nil {
		return nil, nil
	}
	return e.Respond(stmt)
}

func (e *RecordingExecutor) Close(context.Context) error {
	return nil
}

// Statements returns the statements executed so far.
func (e *RecordingExecutor) Statements() []translate.Statement {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]translate.Statement, len(e.statements))
	copy(out, e.statements)
	return out
}

// EchoRecords answers a statement with one record per created item, each
// projecting the given properties. Useful for dry runs that want a non-empty
// GraphQL response.
func EchoRecords(stmt translate.Statement, row map[string]interface{}) []Record {
	out := make([]Record, 0, 1)
	if stmt.Items == 0 {
		return out
	}
	rec := Record{}
	for i := 0; i < stmt.Items; i++ {
		rec[itemColumn(i)] = row
	}
	return append(out, rec)
}
