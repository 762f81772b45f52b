// Package entity confirms which distributors, super-stockists and products a
// question mentions by fuzzy-matching its tokens against live column values.
package entity

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"salesql/internal/introspection"
	"salesql/internal/logging"
	"salesql/internal/salesmodel"
)

// DefaultProbeConcurrency bounds parallel distinct-value lookups.
const DefaultProbeConcurrency = 4

// Match is one token matched against one column value.
type Match struct {
	Table      string          `json:"table"`
	Column     string          `json:"column"`
	Value      string          `json:"value"`
	Token      string          `json:"token"`
	Confidence float64         `json:"confidence"`
	Kind       salesmodel.Kind `json:"kind"`
}

// GeoMention is a token matched against a geography column on the fact table.
type GeoMention struct {
	Table  string
	Column string
	Token  string
	Value  string
}

// Result is the outcome of resolving one question.
type Result struct {
	Tokens       []string
	Kinds        []salesmodel.Kind
	TokensByKind map[salesmodel.Kind][]string
	Matches      []Match
	Geo          []GeoMention
	Best         *Match
	Err          error
}

// Has reports whether kind was confirmed.
func (r Result) Has(kind salesmodel.Kind) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Actors returns the confirmed actor kinds, super-stockist first.
func (r Result) Actors() []salesmodel.Kind {
	var out []salesmodel.Kind
	for _, k := range r.Kinds {
		if k.IsActor() {
			out = append(out, k)
		}
	}
	return out
}

// Config tunes the resolver.
type Config struct {
	Tables           salesmodel.Tables
	DistinctLimit    int
	ProbeConcurrency int
	Matcher          Matcher
}

// Resolver matches question tokens against distinct column values.
type Resolver struct {
	values ValueSource
	cfg    Config
}

// NewResolver creates a Resolver. A nil source makes every Resolve report
// ErrNoConnection.
func NewResolver(values ValueSource, cfg Config) *Resolver {
	if cfg.DistinctLimit <= 0 {
		cfg.DistinctLimit = DefaultDistinctLimit
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = DefaultProbeConcurrency
	}
	if len(cfg.Tables.Primary) == 0 && len(cfg.Tables.Shipment) == 0 {
		cfg.Tables = salesmodel.DefaultTables()
	}
	return &Resolver{values: values, cfg: cfg}
}

type probe struct {
	table  string
	column string
	kind   salesmodel.Kind
	geo    bool
}

// probes lists the (table, column) pairs to check: route fact columns first,
// then the super-stockist, distributor and product masters.
func (r *Resolver) probes(route salesmodel.Route, snap *introspection.Snapshot) []probe {
	if route != salesmodel.RouteShipment {
		route = salesmodel.RoutePrimary
	}
	var out []probe
	for _, fact := range r.cfg.Tables.FactCandidates(route) {
		table, ok := snap.Table(fact)
		if !ok {
			continue
		}
		for _, col := range table.AllPresent(salesmodel.ProbeColumns(route)...) {
			if salesmodel.IsGeoColumn(col) {
				out = append(out, probe{table: fact, column: col, geo: true})
				continue
			}
			if kind, ok := salesmodel.KindForColumn(col); ok {
				out = append(out, probe{table: fact, column: col, kind: kind})
			}
		}
	}
	for _, kind := range salesmodel.Kinds {
		dim := r.cfg.Tables.Dimension(kind)
		table, ok := snap.Table(dim)
		if !ok {
			continue
		}
		for _, col := range table.AllPresent(salesmodel.DimensionNameColumns(kind)...) {
			out = append(out, probe{table: dim, column: col, kind: kind})
		}
	}
	return out
}

// Resolve extracts tokens from question and confirms entity kinds against the
// tables in snap. It never fails: lookup errors leave a column unconfirmed.
func (r *Resolver) Resolve(ctx context.Context, question string, route salesmodel.Route, snap *introspection.Snapshot) Result {
	ctx, span := otel.Tracer("salesql/entity").Start(ctx, "entity.resolve")
	defer span.End()

	if r == nil || r.values == nil {
		span.SetAttributes(attribute.Bool("entity.no_connection", true))
		return Result{Err: ErrNoConnection}
	}

	tokens := Tokens(EffectiveText(question))
	result := Result{Tokens: tokens, TokensByKind: map[salesmodel.Kind][]string{}}
	span.SetAttributes(attribute.Int("entity.token_count", len(tokens)))
	if len(tokens) == 0 {
		return result
	}

	probes := r.probes(route, snap)
	values := r.fetch(ctx, probes)

	for i, p := range probes {
		for _, token := range tokens {
			value, confidence, ok := r.bestValue(token, values[i])
			if !ok {
				continue
			}
			if p.geo {
				result.Geo = append(result.Geo, GeoMention{Table: p.table, Column: p.column, Token: token, Value: value})
				continue
			}
			result.Matches = append(result.Matches, Match{
				Table:      p.table,
				Column:     p.column,
				Value:      value,
				Token:      token,
				Confidence: confidence,
				Kind:       p.kind,
			})
			if !containsToken(result.TokensByKind[p.kind], token) {
				result.TokensByKind[p.kind] = append(result.TokensByKind[p.kind], token)
			}
		}
	}

	for _, kind := range salesmodel.Kinds {
		if len(result.TokensByKind[kind]) > 0 {
			result.Kinds = append(result.Kinds, kind)
		}
	}
	result.Best = bestMatch(result.Matches)

	kindNames := make([]string, 0, len(result.Kinds))
	for _, k := range result.Kinds {
		kindNames = append(kindNames, string(k))
	}
	span.SetAttributes(
		attribute.StringSlice("entity.kinds", kindNames),
		attribute.Int("entity.match_count", len(result.Matches)),
	)
	return result
}

func (r *Resolver) fetch(ctx context.Context, probes []probe) [][]string {
	logger := logging.FromContext(ctx)
	values := make([][]string, len(probes))

	var g errgroup.Group
	g.SetLimit(r.cfg.ProbeConcurrency)
	for i, p := range probes {
		g.Go(func() error {
			vals, err := r.values.DistinctValues(ctx, p.table, p.column, r.cfg.DistinctLimit)
			if err != nil {
				logger.Warn("distinct value lookup failed; column left unconfirmed",
					"table", p.table, "column", p.column, "error", err)
				return nil
			}
			values[i] = vals
			return nil
		})
	}
	_ = g.Wait()
	return values
}

func (r *Resolver) bestValue(token string, values []string) (string, float64, bool) {
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, v := range values {
		score, ok := r.cfg.Matcher.Score(token, v)
		if !ok {
			continue
		}
		if !found || score > bestScore || (score == bestScore && len(v) > len(best)) {
			best, bestScore, found = v, score, true
		}
	}
	return best, bestScore, found
}

// bestMatch ranks actor kinds first, then confidence, then longer values.
func bestMatch(matches []Match) *Match {
	if len(matches) == 0 {
		return nil
	}
	ranked := append([]Match(nil), matches...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Kind.IsActor() != b.Kind.IsActor() {
			return a.Kind.IsActor()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return len(a.Value) > len(b.Value)
	})
	best := ranked[0]
	return &best
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}
