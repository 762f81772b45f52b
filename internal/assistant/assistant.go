// Package assistant answers sales questions: route, snapshot, entity
// resolution, planning, execution with repairs, then a text summary.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"salesql/internal/dbexec"
	"salesql/internal/entity"
	"salesql/internal/introspection"
	"salesql/internal/logging"
	"salesql/internal/observability"
	"salesql/internal/planner"
	"salesql/internal/salesmodel"
	"salesql/internal/schemafilter"
	"salesql/internal/summarize"
)

// OutcomeKind classifies a response.
type OutcomeKind string

const (
	OutcomeAnswered           OutcomeKind = "answered"
	OutcomeClarification      OutcomeKind = "clarification"
	OutcomeConfigurationError OutcomeKind = "configuration_error"
	OutcomeSchemaError        OutcomeKind = "schema_error"
	OutcomeExecutionFailed    OutcomeKind = "execution_failed"
	OutcomeOutOfScope         OutcomeKind = "out_of_scope"
)

// NoConnectionMessage is the answer when the database is unreachable.
const NoConnectionMessage = "Error: no database connection available. Please check the database configuration."

// RouteSetMessage acknowledges a route reply with no question waiting.
const RouteSetMessage = "Using %s data. " + OutOfScopeHint

// Request is one question.
type Request struct {
	Question      string           `json:"question"`
	Route         salesmodel.Route `json:"route,omitempty"`
	AllowedTables []string         `json:"allowed_tables,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	MeasureColumn string           `json:"measure_column,omitempty"`
	DateColumn    string           `json:"date_column,omitempty"`
}

// Response is the answer to one question.
type Response struct {
	Outcome    OutcomeKind      `json:"outcome"`
	Answer     string           `json:"answer"`
	Route      salesmodel.Route `json:"route,omitempty"`
	Intent     string           `json:"intent,omitempty"`
	FactTable  string           `json:"fact_table,omitempty"`
	SQL        string           `json:"sql,omitempty"`
	Columns    []string         `json:"columns,omitempty"`
	Rows       [][]any          `json:"rows,omitempty"`
	Truncated  bool             `json:"truncated,omitempty"`
	RetryCount int              `json:"retry_count"`
	Entities   []entity.Match   `json:"entities,omitempty"`
	Notes      []string         `json:"notes,omitempty"`
}

// SnapshotSource loads catalog metadata for candidate tables.
type SnapshotSource interface {
	Snapshot(ctx context.Context, candidates []string) (*introspection.Snapshot, error)
}

// Config holds the pipeline settings that are not owned by a component.
type Config struct {
	Tables        salesmodel.Tables
	SchemaFilters schemafilter.Config
	Relationships []introspection.Edge
}

// Deps are the pipeline components. Catalog and Resolver may be nil when no
// database is configured.
type Deps struct {
	Catalog    SnapshotSource
	Resolver   *entity.Resolver
	Planner    *planner.Planner
	Runner     *dbexec.Runner
	Summarizer *summarize.Summarizer
	Sessions   *Sessions
}

// Assistant runs the question pipeline. It is safe for concurrent use.
type Assistant struct {
	cfg  Config
	deps Deps
}

// New creates an Assistant.
func New(cfg Config, deps Deps) *Assistant {
	if len(cfg.Tables.Primary) == 0 && len(cfg.Tables.Shipment) == 0 {
		cfg.Tables = salesmodel.DefaultTables()
	}
	if deps.Summarizer == nil {
		deps.Summarizer = summarize.New(summarize.Config{})
	}
	return &Assistant{cfg: cfg, deps: deps}
}

// Ask answers one question.
func (a *Assistant) Ask(ctx context.Context, req Request) Response {
	ctx, span := otel.Tracer("salesql/assistant").Start(ctx, "assistant.ask")
	defer span.End()

	metrics := observability.AssistantMetricsFromContext(ctx)
	metrics.IncrementActiveAsks(ctx)
	defer metrics.DecrementActiveAsks(ctx)

	ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithSession(req.SessionID))
	start := time.Now()
	resp := a.ask(ctx, req)

	span.SetAttributes(
		attribute.String("assistant.outcome", string(resp.Outcome)),
		attribute.String("assistant.route", string(resp.Route)),
		attribute.String("assistant.intent", resp.Intent),
		attribute.Int("assistant.retry_count", resp.RetryCount),
	)
	metrics.RecordAsk(ctx, time.Since(start), string(resp.Outcome), string(resp.Route), resp.Intent)
	logging.FromContext(ctx).Info("question answered",
		"outcome", resp.Outcome,
		"route", resp.Route,
		"intent", resp.Intent,
		"fact_table", resp.FactTable,
		"retry_count", resp.RetryCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp
}

func (a *Assistant) ask(ctx context.Context, req Request) Response {
	logger := logging.FromContext(ctx)
	question := strings.TrimSpace(req.Question)
	route := req.Route

	// A bare "primary" or "shipment" answers an earlier clarification.
	if chosen, ok := salesmodel.ParseRoute(entity.EffectiveText(question)); ok {
		if err := a.deps.Sessions.SetRoute(ctx, req.SessionID, chosen); err != nil {
			logger.Warn("failed to remember session route", "error", err)
		}
		pending, found, err := a.deps.Sessions.TakePending(ctx, req.SessionID)
		if err != nil {
			logger.Warn("failed to load pending question", "error", err)
		}
		if !found {
			return Response{Outcome: OutcomeClarification, Route: chosen, Answer: fmt.Sprintf(RouteSetMessage, chosen)}
		}
		question, route = pending, chosen
	}

	if OutOfScope(question) {
		return Response{Outcome: OutcomeOutOfScope, Answer: OutOfScopeHint}
	}

	// Wording in the question beats the session's remembered route.
	if route == salesmodel.RouteUnknown {
		if hinted, ok := planner.RouteHint(question); ok {
			route = hinted
		} else if remembered, ok, err := a.deps.Sessions.Route(ctx, req.SessionID); err != nil {
			logger.Warn("failed to load session route", "error", err)
		} else if ok {
			route = remembered
		}
	} else if err := a.deps.Sessions.SetRoute(ctx, req.SessionID, route); err != nil {
		logger.Warn("failed to remember session route", "error", err)
	}

	route, ok := a.deps.Planner.DetectRoute(question, route)
	if !ok {
		if err := a.deps.Sessions.SetPending(ctx, req.SessionID, question); err != nil {
			logger.Warn("failed to store pending question", "error", err)
		}
		return Response{Outcome: OutcomeClarification, Answer: planner.ClarifyRouteMessage}
	}

	if a.deps.Catalog == nil || a.deps.Resolver == nil {
		return Response{Outcome: OutcomeConfigurationError, Route: route, Answer: NoConnectionMessage}
	}

	snap, err := a.snapshot(ctx, route, req.AllowedTables)
	if err != nil {
		logger.Error("failed to load schema snapshot", "route", route, "error", err)
		return Response{Outcome: OutcomeConfigurationError, Route: route, Answer: NoConnectionMessage}
	}

	entities := a.deps.Resolver.Resolve(ctx, question, route, snap)
	if errors.Is(entities.Err, entity.ErrNoConnection) {
		return Response{Outcome: OutcomeConfigurationError, Route: route, Answer: NoConnectionMessage}
	}

	plan, outcome := a.deps.Planner.Plan(ctx, planner.Input{
		Question:      question,
		Route:         route,
		AllowedTables: req.AllowedTables,
		MeasureColumn: req.MeasureColumn,
		DateColumn:    req.DateColumn,
		Snapshot:      snap,
		Entities:      entities,
	})
	if outcome != nil {
		kind := OutcomeSchemaError
		if outcome.Kind == planner.OutcomeClarification {
			kind = OutcomeClarification
		}
		return Response{Outcome: kind, Route: route, Answer: outcome.Message, Entities: entities.Matches}
	}
	logger.Debug("planned query",
		"route", plan.Route,
		"intent", plan.Intent,
		"fact_table", plan.FactTable,
		"sql", plan.InlineSQL(),
	)

	run := a.deps.Runner.Run(ctx, dbexec.Attempt{
		Question:      entity.EffectiveText(question),
		Plan:          plan,
		AllowedTables: req.AllowedTables,
	})

	resp := Response{
		Route:      route,
		Intent:     plan.Intent,
		FactTable:  plan.FactTable,
		SQL:        run.Plan.InlineSQL(),
		RetryCount: run.RetryCount,
		Entities:   entities.Matches,
		Notes:      plan.Notes,
	}
	if run.SQL != run.Plan.SQL {
		resp.SQL = run.SQL
	}
	if run.Result.Err != nil {
		resp.Outcome = OutcomeExecutionFailed
		resp.Answer = summarize.Failure(run.Result.Err)
		return resp
	}
	resp.Outcome = OutcomeAnswered
	resp.Answer = a.deps.Summarizer.Summarize(run.Result)
	resp.Columns = run.Result.ColumnNames()
	resp.Rows = run.Result.Rows
	resp.Truncated = run.Result.Truncated
	return resp
}

// snapshot loads the route's tables, then applies schema filters, declared
// relationships and the request allowlist.
func (a *Assistant) snapshot(ctx context.Context, route salesmodel.Route, allowed []string) (*introspection.Snapshot, error) {
	snap, err := a.deps.Catalog.Snapshot(ctx, a.cfg.Tables.ForRoute(route))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s tables: %w", route, err)
	}
	snap = schemafilter.Apply(snap, a.cfg.SchemaFilters)
	if len(a.cfg.Relationships) > 0 {
		snap.AddEdges(a.cfg.Relationships)
	}
	if len(allowed) > 0 {
		set := make(map[string]struct{}, len(allowed))
		for _, t := range allowed {
			set[t] = struct{}{}
		}
		snap.Retain(func(table string) bool {
			_, ok := set[table]
			return ok
		})
	}
	return snap, nil
}
