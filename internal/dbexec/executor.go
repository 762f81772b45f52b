// Package dbexec runs planned SELECT statements inside read-only transactions
// and repairs failed statements.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"salesql/internal/observability"
	"salesql/internal/sqltype"
)

const (
	DefaultStatementTimeout = 30 * time.Second
	DefaultMaxRows          = 5000
)

var (
	// ErrNotSelect rejects statements whose first keyword is not SELECT.
	ErrNotSelect = errors.New("only SELECT statements are allowed")
	// ErrMultipleStatements rejects more than one statement per call.
	ErrMultipleStatements = errors.New("multiple statements are not allowed")
)

// Config bounds execution.
type Config struct {
	StatementTimeout  time.Duration `mapstructure:"statement_timeout"`
	MaxRows           int           `mapstructure:"max_rows"`
	MaxRepairAttempts int           `mapstructure:"max_repair_attempts"`
}

// Column describes one result column.
type Column struct {
	Name         string
	DatabaseType string
	Category     sqltype.Category
}

// Result is the outcome of one execution. Err is set instead of rows on failure.
type Result struct {
	SQL       string
	Columns   []Column
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
	Err       error
}

// OK reports whether the statement succeeded.
func (r Result) OK() bool { return r.Err == nil }

// ColumnNames returns the result column names.
func (r Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Executor runs statements against a database handle.
type Executor struct {
	db  *sql.DB
	cfg Config
}

// NewExecutor creates an executor.
func NewExecutor(db *sql.DB, cfg Config) *Executor {
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultStatementTimeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Executor{db: db, cfg: cfg}
}

// CheckSelect validates that query is a single SELECT statement and returns
// it without a trailing semicolon.
func CheckSelect(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	fields := strings.Fields(q)
	if len(fields) == 0 || !strings.EqualFold(strings.TrimLeft(fields[0], "("), "SELECT") {
		return "", ErrNotSelect
	}
	var quote byte
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return "", ErrMultipleStatements
		}
	}
	return q, nil
}

// Execute runs one SELECT in a READ ONLY transaction that is always rolled
// back. At most MaxRows rows are returned.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) Result {
	ctx, span := otel.Tracer("salesql/dbexec").Start(ctx, "dbexec.execute")
	defer span.End()

	start := time.Now()
	res := e.execute(ctx, query, args)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("db.rows", len(res.Rows)),
		attribute.Bool("db.truncated", res.Truncated),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	observability.AssistantMetricsFromContext(ctx).RecordSQL(ctx, res.Duration, len(res.Rows), res.Err == nil)
	return res
}

func (e *Executor) execute(ctx context.Context, query string, args []any) Result {
	res := Result{SQL: query}
	if e == nil || e.db == nil {
		res.Err = sql.ErrConnDone
		return res
	}
	q, err := CheckSelect(query)
	if err != nil {
		res.Err = err
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		res.Err = fmt.Errorf("failed to begin read-only transaction: %w", err)
		return res
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", e.cfg.StatementTimeout.Milliseconds())); err != nil {
		res.Err = fmt.Errorf("failed to set statement timeout: %w", err)
		return res
	}

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		res.Err = err
		return res
	}
	defer rows.Close()

	res.Columns, err = describeColumns(rows)
	if err != nil {
		res.Err = err
		return res
	}

	for rows.Next() {
		if len(res.Rows) >= e.cfg.MaxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(res.Columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			res.Err = err
			return res
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		res.Err = err
	}
	return res
}

func describeColumns(rows *sql.Rows) ([]Column, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name}
	}
	types, err := rows.ColumnTypes()
	if err != nil || len(types) != len(cols) {
		return cols, nil
	}
	for i, t := range types {
		cols[i].DatabaseType = t.DatabaseTypeName()
		cols[i].Category = sqltype.Classify(cols[i].DatabaseType)
	}
	return cols, nil
}
