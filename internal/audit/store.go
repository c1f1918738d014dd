// Package audit records executed create statements in a MySQL-compatible
// table so mutations can be reviewed after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "cypher_audit"

// Outcomes stored with each entry.
const (
	OutcomeSuccess   = "success"
	OutcomeForbidden = "forbidden"
	OutcomeError     = "error"
)

// Entry is one audited statement.
type Entry struct {
	RequestID string
	Subject   string
	Mutation  string
	Node      string
	Items     int
	Cypher    string
	Params    map[string]interface{}
	Outcome   string
	Duration  time.Duration
	At        time.Time
}

// Store writes audit entries.
type Store struct {
	db    *sql.DB
	table string
}

// Options configures Open.
type Options struct {
	DSN     string
	Table   string
	Tracing bool
}

// Open connects to the audit database through otelsql.
func Open(opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, errors.New("audit dsn is required")
	}
	otelOpts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if opts.Tracing {
		otelOpts = append(otelOpts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open("mysql", opts.DSN, otelOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	return NewStore(db, opts.Table), nil
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table}
}

// EnsureTable creates the audit table when it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + quoteIdentifier(s.table) + ` (
  id BIGINT AUTO_INCREMENT PRIMARY KEY,
  request_id VARCHAR(64) NOT NULL,
  subject VARCHAR(255) NOT NULL,
  mutation VARCHAR(255) NOT NULL,
  node VARCHAR(255) NOT NULL,
  items INT NOT NULL,
  cypher TEXT NOT NULL,
  params JSON NOT NULL,
  outcome VARCHAR(16) NOT NULL,
  duration_ms BIGINT NOT NULL,
  executed_at DATETIME(6) NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Record inserts an entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("failed to encode audit params: %w", err)
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	query, args, err := sq.Insert(quoteIdentifier(s.table)).
		Columns("request_id", "subject", "mutation", "node", "items", "cypher", "params", "outcome", "duration_ms", "executed_at").
		Values(e.RequestID, e.Subject, e.Mutation, e.Node, e.Items, e.Cypher, string(params), e.Outcome, e.Duration.Milliseconds(), e.At.UTC()).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit uint64) ([]Entry, error) {
	query, args, err := sq.Select("request_id", "subject", "mutation", "node", "items", "cypher", "params", "outcome", "duration_ms", "executed_at").
		From(quoteIdentifier(s.table)).
		OrderBy("id DESC").
		Limit(limit).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			params     string
			durationMS int64
		)
		if err := rows.Scan(&e.RequestID, &e.Subject, &e.Mutation, &e.Node, &e.Items, &e.Cypher, &params, &e.Outcome, &durationMS, &e.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("failed to decode audit params: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
