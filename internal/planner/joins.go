package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"salesql/internal/introspection"
	"salesql/internal/salesmodel"
	"salesql/internal/sqlutil"
)

// heuristicJoins are (fact column, dimension column) pairs tried when no
// relationship is declared.
var heuristicJoins = [][2]string{
	{"product_id", "product_id"},
	{"material", "product_id"},
	{"base_pack_design_id", "base_pack_design_id"},
	{"sku_id", "sku_id"},
	{"distributor_id", "distributor_erp_id"},
	{"super_stockist_id", "superstockist_id"},
	{"sold_to_party", "superstockist_id"},
}

var kindAliases = map[salesmodel.Kind]string{
	salesmodel.KindSuperstockist: "s",
	salesmodel.KindDistributor:   "d",
	salesmodel.KindProduct:       "p",
}

// JoinKey finds the columns joining fact to dim: a declared relationship,
// then the heuristic pairs, then any shared column name preferring _id names.
func JoinKey(snap *introspection.Snapshot, fact, dim string) (factColumn, dimColumn string, ok bool) {
	factTable, ok := snap.Table(fact)
	if !ok {
		return "", "", false
	}
	dimTable, ok := snap.Table(dim)
	if !ok {
		return "", "", false
	}

	if fc, dc, found := snap.DirectJoin(fact, dim); found && factTable.HasColumn(fc) && dimTable.HasColumn(dc) {
		return fc, dc, true
	}
	for _, pair := range heuristicJoins {
		if factTable.HasColumn(pair[0]) && dimTable.HasColumn(pair[1]) {
			return pair[0], pair[1], true
		}
	}

	var common []string
	for _, c := range factTable.Columns {
		if dimTable.HasColumn(c.Name) {
			common = append(common, c.Name)
		}
	}
	for _, name := range common {
		if strings.HasSuffix(strings.ToLower(name), "_id") {
			return name, name, true
		}
	}
	if len(common) > 0 {
		return common[0], common[0], true
	}
	return "", "", false
}

// joinFor returns the existing or a new join to the kind's dimension table
// without recording it.
func (s *state) joinFor(kind salesmodel.Kind) (Join, bool) {
	for _, j := range s.joins {
		if j.Kind == kind {
			return j, true
		}
	}
	dim := s.p.cfg.Tables.Dimension(kind)
	if !s.visible(dim) {
		return Join{}, false
	}
	fc, dc, ok := JoinKey(s.snap, s.fact.Name, dim)
	if !ok {
		return Join{}, false
	}
	return Join{Kind: kind, Table: dim, Alias: kindAliases[kind], FactColumn: fc, DimColumn: dc}, true
}

func (s *state) useJoin(j Join) {
	for _, existing := range s.joins {
		if existing.Kind == j.Kind {
			return
		}
	}
	s.joins = append(s.joins, j)
}

// labelExpr resolves a grouping expression for kind. When use is true, a
// needed dimension join is recorded.
func (s *state) labelExpr(kind salesmodel.Kind, use bool) (string, bool) {
	if name, ok := s.fact.FirstPresent(salesmodel.LabelColumns(kind)...); ok {
		return s.col(name), true
	}
	j, ok := s.joinFor(kind)
	if !ok {
		return "", false
	}
	dimTable, _ := s.snap.Table(j.Table)
	name, ok := dimTable.FirstPresent(salesmodel.LabelColumns(kind)...)
	if !ok {
		name, ok = dimTable.FirstPresent(salesmodel.DimensionNameColumns(kind)...)
	}
	if !ok {
		return "", false
	}
	if use {
		s.useJoin(j)
	}
	return sqlutil.QualifiedColumn(j.Alias, name), true
}

// productKeyExpr resolves the expression that identifies a distinct product.
func (s *state) productKeyExpr(use bool) (string, bool) {
	if name, ok := s.fact.FirstPresent(salesmodel.ProductKeyColumns...); ok {
		return s.col(name), true
	}
	j, ok := s.joinFor(salesmodel.KindProduct)
	if !ok {
		return "", false
	}
	if use {
		s.useJoin(j)
	}
	return s.col(j.FactColumn), true
}

// geoExpr resolves the geography column for the question's geography word,
// on the fact table first and then on the actor dimensions.
func (s *state) geoExpr(use bool) (string, bool) {
	if s.feat.GeoWord == "" {
		return "", false
	}
	candidates := salesmodel.GeoWords[s.feat.GeoWord]
	if name, ok := s.fact.FirstPresent(candidates...); ok {
		return s.col(name), true
	}
	for _, kind := range []salesmodel.Kind{salesmodel.KindDistributor, salesmodel.KindSuperstockist} {
		j, ok := s.joinFor(kind)
		if !ok {
			continue
		}
		dimTable, _ := s.snap.Table(j.Table)
		if name, ok := dimTable.FirstPresent(candidates...); ok {
			if use {
				s.useJoin(j)
			}
			return sqlutil.QualifiedColumn(j.Alias, name), true
		}
	}
	return "", false
}

// applyEntityFilters adds one OR-group of ILIKE predicates per confirmed
// kind, on the fact table when it has identifying columns and otherwise on
// the joined dimension table.
func (s *state) applyEntityFilters() {
	for _, kind := range s.in.Entities.Kinds {
		tokens := s.in.Entities.TokensByKind[kind]
		if len(tokens) == 0 {
			continue
		}

		if cols := textualColumns(s.fact, salesmodel.FactEntityColumns(kind)); len(cols) > 0 {
			s.addLikeFilter(kind, factAlias, cols, tokens)
			continue
		}

		j, ok := s.joinFor(kind)
		if !ok {
			dim := s.p.cfg.Tables.Dimension(kind)
			if !s.visible(dim) {
				s.note(fmt.Sprintf("%s filter skipped: %s is not available", kind, dim))
			} else {
				s.note(fmt.Sprintf("%s filter skipped: no join key between %s and %s", kind, s.fact.Name, dim))
			}
			continue
		}
		dimTable, _ := s.snap.Table(j.Table)
		cols := textualColumns(dimTable, salesmodel.DimensionNameColumns(kind))
		if len(cols) == 0 {
			s.note(fmt.Sprintf("%s filter skipped: %s has no name column", kind, j.Table))
			continue
		}
		s.useJoin(j)
		s.addLikeFilter(kind, j.Alias, cols, tokens)
	}

	s.applyGeoFilter()
}

// applyGeoFilter narrows the fact table to geography values the resolver saw.
func (s *state) applyGeoFilter() {
	byColumn := make(map[string][]string)
	var order []string
	for _, g := range s.in.Entities.Geo {
		if g.Table != s.fact.Name || !s.fact.HasColumn(g.Column) {
			continue
		}
		if _, seen := byColumn[g.Column]; !seen {
			order = append(order, g.Column)
		}
		if !containsString(byColumn[g.Column], g.Token) {
			byColumn[g.Column] = append(byColumn[g.Column], g.Token)
		}
	}
	if len(order) == 0 {
		return
	}
	var or sq.Or
	for _, column := range order {
		for _, token := range byColumn[column] {
			or = append(or, sq.ILike{s.col(column): sqlutil.ContainsPattern(token)})
		}
	}
	s.where = append(s.where, or)
	s.filters = append(s.filters, "geography: "+strings.Join(order, ", "))
}

func (s *state) addLikeFilter(kind salesmodel.Kind, alias string, columns, tokens []string) {
	var or sq.Or
	for _, column := range columns {
		for _, token := range tokens {
			or = append(or, sq.ILike{sqlutil.QualifiedColumn(alias, column): sqlutil.ContainsPattern(token)})
		}
	}
	s.where = append(s.where, or)
	s.filters = append(s.filters, fmt.Sprintf("%s: %s", kind, strings.Join(tokens, ", ")))
}

func textualColumns(table *introspection.Table, candidates []string) []string {
	var out []string
	for _, name := range candidates {
		if c, ok := table.Column(name); ok && isTextual(c) {
			out = append(out, name)
		}
	}
	return out
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
