// Package introspection discovers table and column metadata from the Postgres
// information_schema. Lookups always hit the live catalog; callers build a fresh
// Snapshot per request so schema changes between deployments are picked up.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salesql/internal/sqltype"
)

// DefaultSchema is the Postgres schema searched when none is configured.
const DefaultSchema = "public"

// Column represents a database column
type Column struct {
	Name     string
	DataType string
	Category sqltype.Category
	Position int
}

// IsNumeric reports whether the column holds numbers.
func (c Column) IsNumeric() bool { return c.Category == sqltype.Numeric }

// IsTemporal reports whether the column holds dates or timestamps.
func (c Column) IsTemporal() bool { return c.Category == sqltype.Temporal }

// ForeignKey represents a foreign key constraint on a column
type ForeignKey struct {
	ColumnName       string // e.g., "product_id"
	ReferencedTable  string // e.g., "tbl_product_master"
	ReferencedColumn string // e.g., "product_id"
	ConstraintName   string
	OrdinalPosition  int // Column position within the FK constraint
}

// Table represents a database table with columns in ordinal order.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	if t == nil {
		return Column{}, false
	}
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	return names
}

// FirstPresent returns the first candidate that exists on the table.
func (t *Table) FirstPresent(candidates ...string) (string, bool) {
	for _, name := range candidates {
		if t.HasColumn(name) {
			return name, true
		}
	}
	return "", false
}

// AllPresent returns every candidate that exists on the table, in candidate order.
func (t *Table) AllPresent(candidates ...string) []string {
	var out []string
	for _, name := range candidates {
		if t.HasColumn(name) {
			out = append(out, name)
		}
	}
	return out
}

// Snapshot is a read-only, request-scoped view of the tables a plan may use.
type Snapshot struct {
	Schema string
	tables map[string]*Table
	Edges  []Edge
}

// NewSnapshot assembles a snapshot from already-known tables. Edges are derived
// from the tables' foreign keys; metadata edges can be appended later.
func NewSnapshot(schema string, tables ...Table) *Snapshot {
	s := &Snapshot{Schema: schema, tables: make(map[string]*Table, len(tables))}
	for i := range tables {
		t := tables[i]
		s.tables[t.Name] = &t
	}
	s.Edges = foreignKeyEdges(s)
	return s
}

// Table returns the named table.
func (s *Snapshot) Table(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[name]
	return t, ok
}

// HasTable reports whether the snapshot contains the table.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.Table(name)
	return ok
}

// HasColumn reports whether table.column exists in the snapshot.
func (s *Snapshot) HasColumn(table, column string) bool {
	t, ok := s.Table(table)
	return ok && t.HasColumn(column)
}

// TableNames returns the table names sorted alphabetically.
func (s *Snapshot) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns copies of the snapshot tables sorted by name.
func (s *Snapshot) Tables() []Table {
	names := s.TableNames()
	out := make([]Table, 0, len(names))
	for _, name := range names {
		out = append(out, *s.tables[name])
	}
	return out
}

// Retain drops every table for which keep returns false, along with edges touching it.
func (s *Snapshot) Retain(keep func(table string) bool) {
	if s == nil {
		return
	}
	for name := range s.tables {
		if !keep(name) {
			delete(s.tables, name)
		}
	}
	edges := s.Edges[:0]
	for _, e := range s.Edges {
		if s.HasColumn(e.LeftTable, e.LeftColumn) && s.HasColumn(e.RightTable, e.RightColumn) {
			edges = append(edges, e)
		}
	}
	s.Edges = edges
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Introspector reads the live catalog for one Postgres schema.
type Introspector struct {
	db     Queryer
	schema string
}

// New creates an Introspector. An empty schema means DefaultSchema.
func New(db Queryer, schema string) *Introspector {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Introspector{db: db, schema: schema}
}

// SchemaName returns the Postgres schema being introspected.
func (in *Introspector) SchemaName() string {
	return in.schema
}

// TableExists reports whether a base table or view with the given name exists.
// A missing table is not an error.
func (in *Introspector) TableExists(ctx context.Context, table string) (bool, error) {
	ctx, span := startSpan(ctx, "introspection.table_exists",
		attribute.String("db.schema", in.schema),
		attribute.String("db.table", table),
	)
	defer span.End()

	query := `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2
		LIMIT 1
	`

	rows, err := in.db.QueryContext(ctx, query, in.schema, table)
	if err != nil {
		recordSpanError(span, err)
		return false, err
	}
	defer func() {
		_ = rows.Close()
	}()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return false, err
	}
	return exists, nil
}

// Columns returns the table's columns ordered by ordinal position.
// A missing table yields an empty slice.
func (in *Introspector) Columns(ctx context.Context, table string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.schema", in.schema),
		attribute.String("db.table", table),
	)
	defer span.End()

	query := `
		SELECT column_name, data_type, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := in.db.QueryContext(ctx, query, in.schema, table)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	columns := []Column{}
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.Position); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.Category = sqltype.Classify(col.DataType)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

// Snapshot introspects the candidate tables that exist, including their foreign keys.
// Candidates that do not exist are silently left out.
func (in *Introspector) Snapshot(ctx context.Context, candidates []string) (*Snapshot, error) {
	ctx, span := startSpan(ctx, "introspection.build_snapshot",
		attribute.String("db.schema", in.schema),
		attribute.Int("candidate_count", len(candidates)),
	)
	defer span.End()

	tables := make([]Table, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, name := range candidates {
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}

		columns, err := in.Columns(ctx, name)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", name, err)
		}
		if len(columns) == 0 {
			continue
		}
		fks, err := in.foreignKeys(ctx, name)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get foreign keys for %s: %w", name, err)
		}
		tables = append(tables, Table{Name: name, Columns: columns, ForeignKeys: fks})
	}

	span.SetAttributes(attribute.Int("table_count", len(tables)))
	return NewSnapshot(in.schema, tables...), nil
}

// ListTables returns every base table and view in the schema.
func (in *Introspector) ListTables(ctx context.Context) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.schema", in.schema),
	)
	defer span.End()

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`

	rows, err := in.db.QueryContext(ctx, query, in.schema)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func (in *Introspector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.schema", in.schema),
		attribute.String("db.table", table),
	)
	defer span.End()

	query := `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name, tc.constraint_name, kcu.ordinal_position
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := in.db.QueryContext(ctx, query, in.schema, table)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return fks, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("salesql/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
