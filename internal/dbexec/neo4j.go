package dbexec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cypher-graphql/internal/translate"
)

// Neo4jConfig holds connection settings.
type Neo4jConfig struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// Neo4jExecutor runs statements in managed write transactions.
type Neo4jExecutor struct {
	driver   neo4j.DriverWithContext
	database string
	tracer   trace.Tracer
}

// NewNeo4jExecutor opens a driver. Call VerifyConnectivity to check the
// server is reachable.
func NewNeo4jExecutor(cfg Neo4jConfig) (*Neo4jExecutor, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Neo4jExecutor{
		driver:   driver,
		database: cfg.Database,
		tracer:   otel.Tracer("cypher-graphql/dbexec"),
	}, nil
}

// VerifyConnectivity checks that the server accepts connections.
func (e *Neo4jExecutor) VerifyConnectivity(ctx context.Context) error {
	return e.driver.VerifyConnectivity(ctx)
}

func (e *Neo4jExecutor) ExecuteWrite(ctx context.Context, stmt translate.Statement) ([]Record, error) {
	if stmt.Empty() {
		return nil, nil
	}
	ctx, span := e.tracer.Start(ctx, "neo4j.execute_write",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "neo4j"),
			attribute.String("db.name", e.database),
			attribute.String("db.operation", "CREATE"),
			attribute.Int("db.cypher.items", stmt.Items),
		),
	)
	defer span.End()

	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: e.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() {
		_ = session.Close(ctx)
	}()

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(records))
		for _, rec := range records {
			out = append(out, Record(rec.AsMap()))
		}
		return out, nil
	})
	if err != nil {
		err = classifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	records, _ := result.([]Record)
	span.SetAttributes(attribute.Int("db.rows", len(records)))
	return records, nil
}

func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// classifyError maps guard failures raised by apoc.util.validate to
// translate.ErrForbidden.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), translate.ForbiddenMessage) {
		return &translate.ForbiddenError{Operation: "READ", Reason: "authorization guard rejected the result"}
	}
	return fmt.Errorf("neo4j write failed: %w", err)
}

func itemColumn(i int) string {
	return "this" + strconv.Itoa(i)
}

// ItemRows flattens the single result row of a create statement into one
// map per created item, in input order.
func ItemRows(stmt translate.Statement, records []Record) []map[string]interface{} {
	if len(records) == 0 {
		return []map[string]interface{}{}
	}
	rec := records[0]
	out := make([]map[string]interface{}, 0, stmt.Items)
	for i := 0; i < stmt.Items; i++ {
		if row, ok := rec[itemColumn(i)].(map[string]interface{}); ok {
			out = append(out, row)
		}
	}
	return out
}
