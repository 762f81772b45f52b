// Package planner turns a sales question into one parameterized Postgres
// SELECT. It picks the route and fact table, the measure and date columns,
// an optional time window and entity filters, then builds SQL for the first
// intent whose predicate matches the question.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"salesql/internal/entity"
	"salesql/internal/introspection"
	"salesql/internal/salesmodel"
	"salesql/internal/sqlutil"
)

// DefaultTopN is the ranking size when the question gives none.
const DefaultTopN = 5

// ClarifyRouteMessage asks the user to pick a route.
const ClarifyRouteMessage = "Do you want *primary* data or *shipment* data? Reply with 'primary' or 'shipment'."

const factAlias = "f"

// Config controls planning defaults.
type Config struct {
	Tables       salesmodel.Tables
	DefaultRoute salesmodel.Route
	DefaultTopN  int
}

// Input is everything a plan is built from.
type Input struct {
	Question      string
	Route         salesmodel.Route
	AllowedTables []string
	MeasureColumn string
	DateColumn    string
	Snapshot      *introspection.Snapshot
	Entities      entity.Result
}

// OutcomeKind classifies a terminal planning response.
type OutcomeKind string

const (
	OutcomeClarification OutcomeKind = "clarification"
	OutcomeSchemaError   OutcomeKind = "schema_error"
)

// Outcome is a non-SQL answer produced instead of a plan.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	Route   salesmodel.Route
}

// Join is a LEFT JOIN from the fact table to a dimension table.
type Join struct {
	Kind       salesmodel.Kind
	Table      string
	Alias      string
	FactColumn string
	DimColumn  string
}

// Plan is a planned query ready for execution.
type Plan struct {
	Route          salesmodel.Route
	Intent         string
	FactTable      string
	FactAlias      string
	MeasureColumn  string
	DateColumn     string
	AltDateColumns []string
	TimeWindow     string
	Joins          []Join
	Filters        []string
	GroupBy        []string
	OrderBy        []string
	Limit          int
	Notes          []string
	SQL            string
	Args           []any
}

// Tables returns the fact table followed by joined dimension tables.
func (p *Plan) Tables() []string {
	out := []string{p.FactTable}
	for _, j := range p.Joins {
		out = append(out, j.Table)
	}
	return out
}

// WithDateColumn returns a copy of the plan with every reference to the date
// column replaced.
func (p *Plan) WithDateColumn(column string) *Plan {
	next := *p
	old := sqlutil.QualifiedColumn(p.FactAlias, p.DateColumn)
	next.SQL = strings.ReplaceAll(p.SQL, old, sqlutil.QualifiedColumn(p.FactAlias, column))
	next.DateColumn = column
	next.AltDateColumns = nil
	for _, c := range p.AltDateColumns {
		if c != column {
			next.AltDateColumns = append(next.AltDateColumns, c)
		}
	}
	next.Args = append([]any(nil), p.Args...)
	return &next
}

// Planner builds plans. It is safe for concurrent use.
type Planner struct {
	cfg Config
	now func() time.Time
}

// New creates a Planner.
func New(cfg Config) *Planner {
	if len(cfg.Tables.Primary) == 0 && len(cfg.Tables.Shipment) == 0 {
		cfg.Tables = salesmodel.DefaultTables()
	}
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = DefaultTopN
	}
	return &Planner{cfg: cfg, now: time.Now}
}

// Tables returns the configured table names.
func (p *Planner) Tables() salesmodel.Tables {
	return p.cfg.Tables
}

var (
	shipmentHints = []string{"shipment", "dispatch", "secondary", "delivery", "invoice"}
	primaryHints  = []string{"primary", "sell-in", "sell in"}
)

// RouteHint looks only at the question's wording: shipment hints first,
// then primary hints.
func RouteHint(question string) (salesmodel.Route, bool) {
	text := entity.Fold(entity.EffectiveText(question))
	if containsAny(text, shipmentHints...) {
		return salesmodel.RouteShipment, true
	}
	if containsAny(text, primaryHints...) {
		return salesmodel.RoutePrimary, true
	}
	return salesmodel.RouteUnknown, false
}

// DetectRoute decides the route: a pinned route wins, then the question's
// hints, then the configured default. ok is false when the route is still
// unknown and the user must be asked.
func (p *Planner) DetectRoute(question string, pinned salesmodel.Route) (salesmodel.Route, bool) {
	if pinned == salesmodel.RoutePrimary || pinned == salesmodel.RouteShipment {
		return pinned, true
	}
	if route, ok := RouteHint(question); ok {
		return route, true
	}
	if p.cfg.DefaultRoute == salesmodel.RoutePrimary || p.cfg.DefaultRoute == salesmodel.RouteShipment {
		return p.cfg.DefaultRoute, true
	}
	return salesmodel.RouteUnknown, false
}

// Plan builds the SQL plan for a question or returns a terminal Outcome.
func (p *Planner) Plan(ctx context.Context, in Input) (*Plan, *Outcome) {
	_, span := otel.Tracer("salesql/planner").Start(ctx, "planner.plan")
	defer span.End()

	route, ok := p.DetectRoute(in.Question, in.Route)
	if !ok {
		return nil, &Outcome{Kind: OutcomeClarification, Message: ClarifyRouteMessage}
	}
	span.SetAttributes(attribute.String("planner.route", string(route)))

	s := newState(p, in, route)
	if out := s.chooseFact(); out != nil {
		return nil, out
	}
	if out := s.chooseColumns(); out != nil {
		return nil, out
	}
	s.applyTimeWindow()
	s.applyEntityFilters()

	for _, it := range intents {
		if !it.match(s) {
			continue
		}
		joined := len(s.joins)
		plan, err := s.finish(it)
		if err != nil {
			// the intent could not be assembled; fall through to the next one
			s.joins = s.joins[:joined]
			s.note(fmt.Sprintf("%s skipped: %v", it.name, err))
			continue
		}
		span.SetAttributes(
			attribute.String("planner.intent", plan.Intent),
			attribute.String("planner.fact_table", plan.FactTable),
		)
		return plan, nil
	}
	return nil, &Outcome{Kind: OutcomeSchemaError, Route: route, Message: "Error: could not build a query for this question."}
}

// state carries one planning pass.
type state struct {
	p     *Planner
	in    Input
	snap  *introspection.Snapshot
	route salesmodel.Route
	feat  Features

	fact     *introspection.Table
	measure  string
	date     string
	altDates []string
	window   *TimeWindow

	joins   []Join
	where   []sq.Sqlizer
	filters []string
	notes   []string
}

func newState(p *Planner, in Input, route salesmodel.Route) *state {
	return &state{
		p:     p,
		in:    in,
		snap:  in.Snapshot,
		route: route,
		feat:  ExtractFeatures(in.Question),
	}
}

func (s *state) note(msg string) {
	s.notes = append(s.notes, msg)
}

// visible reports whether a table may be referenced by this plan.
func (s *state) visible(table string) bool {
	if table == "" || !s.snap.HasTable(table) {
		return false
	}
	for _, excluded := range s.p.cfg.Tables.ExcludedFacts(s.route) {
		if excluded == table {
			return false
		}
	}
	if len(s.in.AllowedTables) == 0 {
		return true
	}
	for _, allowed := range s.in.AllowedTables {
		if allowed == table {
			return true
		}
	}
	return false
}

func (s *state) chooseFact() *Outcome {
	for _, candidate := range s.p.cfg.Tables.FactCandidates(s.route) {
		if !s.visible(candidate) {
			continue
		}
		table, _ := s.snap.Table(candidate)
		if len(table.Columns) == 0 {
			continue
		}
		s.fact = table
		return nil
	}
	msg := "Error: shipment table not available; please choose 'primary'."
	if s.route == salesmodel.RoutePrimary {
		primary := "tbl_primary"
		if len(s.p.cfg.Tables.Primary) > 0 {
			primary = s.p.cfg.Tables.Primary[0]
		}
		msg = fmt.Sprintf("Error: primary table (%s) not available in DB.", primary)
	}
	return &Outcome{Kind: OutcomeSchemaError, Route: s.route, Message: msg}
}

// tableRef renders a table name, schema-qualified outside the default schema.
func (s *state) tableRef(table string) string {
	schema := s.snap.Schema
	if schema == "" || schema == introspection.DefaultSchema {
		return sqlutil.QuoteIdentifier(table)
	}
	return sqlutil.QuoteIdentifier(schema) + "." + sqlutil.QuoteIdentifier(table)
}

func (s *state) col(column string) string {
	return sqlutil.QualifiedColumn(factAlias, column)
}

// from starts a SELECT over the fact table with every join and filter applied.
func (s *state) from(columns ...string) sq.SelectBuilder {
	q := sq.Select(columns...).From(s.tableRef(s.fact.Name) + " " + factAlias)
	for _, j := range s.joins {
		q = q.LeftJoin(fmt.Sprintf("%s %s ON %s = %s",
			s.tableRef(j.Table), j.Alias,
			s.col(j.FactColumn), sqlutil.QualifiedColumn(j.Alias, j.DimColumn)))
	}
	for _, w := range s.where {
		q = q.Where(w)
	}
	return q
}

func (s *state) finish(it intent) (*Plan, error) {
	b, err := it.build(s)
	if err != nil {
		return nil, err
	}
	query := b.sql
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return nil, fmt.Errorf("intent %s produced a non-SELECT statement", it.name)
	}
	query, err = sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Route:          s.route,
		Intent:         it.name,
		FactTable:      s.fact.Name,
		FactAlias:      factAlias,
		MeasureColumn:  s.measure,
		DateColumn:     s.date,
		AltDateColumns: append([]string(nil), s.altDates...),
		Joins:          append([]Join(nil), s.joins...),
		Filters:        append([]string(nil), s.filters...),
		GroupBy:        b.groupBy,
		OrderBy:        b.orderBy,
		Limit:          b.limit,
		Notes:          append([]string(nil), s.notes...),
		SQL:            query,
		Args:           b.args,
	}
	if s.window != nil && s.date != "" {
		plan.TimeWindow = s.window.Label
	}
	return plan, nil
}

// InlineSQL renders the plan's SQL with arguments as quoted literals.
func (p *Plan) InlineSQL() string {
	return sqlutil.Inline(p.SQL, p.Args)
}
