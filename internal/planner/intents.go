package planner

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"salesql/internal/salesmodel"
)

// built is the SQL an intent produced, still in ? placeholder form.
type built struct {
	sql     string
	args    []any
	groupBy []string
	orderBy []string
	limit   int
}

type intent struct {
	name  string
	match func(*state) bool
	build func(*state) (built, error)
}

// intents are evaluated in order; the first match wins and total always
// matches.
var intents = []intent{
	{name: "mom_top_sku_per_distributor", match: matchMoMPerDistributor, build: buildMoMPerDistributor},
	{name: "mom_top_sku_overall", match: matchMoMOverall, build: buildMoMOverall},
	{name: "top_sku_per_distributor", match: matchTopPerDistributor, build: buildTopPerDistributor},
	{name: "geo_breakdown", match: matchGeoBreakdown, build: buildGeoBreakdown},
	{name: "top_sku_per_geo", match: matchTopPerGeo, build: buildTopPerGeo},
	{name: "distinct_product_threshold", match: matchDistinctThreshold, build: buildDistinctThreshold},
	{name: "measure_threshold_per_actor", match: matchMeasureThreshold, build: buildMeasureThreshold},
	{name: "product_measure_threshold", match: matchProductThreshold, build: buildProductThreshold},
	{name: "last_sale_date", match: matchLastSale, build: buildLastSale},
	{name: "top_n_ranking", match: matchTopN, build: buildTopN},
	{name: "total", match: func(*state) bool { return true }, build: buildTotal},
}

var errNoLabel = errors.New("no label column")

func (s *state) measureExpr() string {
	return s.col(s.measure)
}

func (s *state) sumExpr() string {
	return fmt.Sprintf("COALESCE(SUM(%s), 0)", s.measureExpr())
}

func (s *state) hasLabel(kind salesmodel.Kind) bool {
	_, ok := s.labelExpr(kind, false)
	return ok
}

func (s *state) hasGeo() bool {
	_, ok := s.geoExpr(false)
	return ok
}

func (s *state) actorKind() salesmodel.Kind {
	if s.feat.Distributor {
		return salesmodel.KindDistributor
	}
	return salesmodel.KindSuperstockist
}

func (s *state) topN(fallback int) int {
	if s.feat.TopN > 0 {
		return s.feat.TopN
	}
	return fallback
}

func toSQL(q sq.Sqlizer) (string, []any, error) {
	return q.ToSql()
}

// wrapCTE keeps SELECT as the first keyword of statements built from CTEs.
func wrapCTE(ctes []string, final string) string {
	return fmt.Sprintf("SELECT * FROM (WITH %s %s) q", strings.Join(ctes, ", "), final)
}

func matchMoMPerDistributor(s *state) bool {
	return s.feat.Growth && s.feat.Product && s.feat.Distributor && s.date != "" &&
		s.hasLabel(salesmodel.KindDistributor) && s.hasLabel(salesmodel.KindProduct)
}

func matchMoMOverall(s *state) bool {
	return s.feat.Growth && s.feat.Product && s.date != "" && s.hasLabel(salesmodel.KindProduct)
}

// monthlyBase groups the filtered facts into full calendar months before the
// current one.
func (s *state) monthlyBase(labels ...string) (string, []any, error) {
	columns := append([]string(nil), labels...)
	columns = append(columns,
		fmt.Sprintf("date_trunc('month', %s)::date AS month", s.col(s.date)),
		s.sumExpr()+" AS value",
	)
	groups := make([]string, 0, len(labels)+1)
	for i := range labels {
		groups = append(groups, fmt.Sprint(i+1))
	}
	groups = append(groups, fmt.Sprint(len(labels)+1))
	q := s.from(columns...).
		Where(sq.Expr(fmt.Sprintf("%s < date_trunc('month', CURRENT_DATE)", s.col(s.date)))).
		GroupBy(groups...)
	return toSQL(q)
}

func buildMoMPerDistributor(s *state) (built, error) {
	dist, ok := s.labelExpr(salesmodel.KindDistributor, true)
	if !ok {
		return built{}, errNoLabel
	}
	prod, ok := s.labelExpr(salesmodel.KindProduct, true)
	if !ok {
		return built{}, errNoLabel
	}
	base, args, err := s.monthlyBase(dist+" AS distributor", prod+" AS product")
	if err != nil {
		return built{}, err
	}
	growth := "(m0_value - m1_value)::numeric / NULLIF(m1_value, 0)"
	ctes := []string{
		fmt.Sprintf("base AS (%s)", base),
		"months AS (SELECT distributor, MAX(month) AS m0 FROM base GROUP BY distributor)",
		"paired AS (SELECT b.distributor, b.product, " +
			"SUM(CASE WHEN b.month = m.m0 THEN b.value ELSE 0 END) AS m0_value, " +
			"SUM(CASE WHEN b.month = (m.m0 - INTERVAL '1 month')::date THEN b.value ELSE 0 END) AS m1_value " +
			"FROM base b JOIN months m ON b.distributor = m.distributor GROUP BY b.distributor, b.product)",
		fmt.Sprintf("ranked AS (SELECT distributor, product, m0_value, m1_value, %s AS mom_growth, "+
			"ROW_NUMBER() OVER (PARTITION BY distributor ORDER BY %s DESC NULLS LAST) AS rn FROM paired)", growth, growth),
	}
	final := "SELECT distributor, product, m0_value, m1_value, mom_growth FROM ranked WHERE rn = 1 ORDER BY distributor"
	return built{
		sql:     wrapCTE(ctes, final),
		args:    args,
		groupBy: []string{dist, prod},
		orderBy: []string{"mom_growth DESC NULLS LAST"},
	}, nil
}

func buildMoMOverall(s *state) (built, error) {
	prod, ok := s.labelExpr(salesmodel.KindProduct, true)
	if !ok {
		return built{}, errNoLabel
	}
	base, args, err := s.monthlyBase(prod + " AS product")
	if err != nil {
		return built{}, err
	}
	ctes := []string{
		fmt.Sprintf("base AS (%s)", base),
		"months AS (SELECT MAX(month) AS m0 FROM base)",
		"paired AS (SELECT b.product, " +
			"SUM(CASE WHEN b.month = m.m0 THEN b.value ELSE 0 END) AS m0_value, " +
			"SUM(CASE WHEN b.month = (m.m0 - INTERVAL '1 month')::date THEN b.value ELSE 0 END) AS m1_value " +
			"FROM base b CROSS JOIN months m GROUP BY b.product)",
	}
	final := "SELECT product, m0_value, m1_value, (m0_value - m1_value)::numeric / NULLIF(m1_value, 0) AS mom_growth " +
		"FROM paired ORDER BY mom_growth DESC NULLS LAST LIMIT 1"
	return built{
		sql:     wrapCTE(ctes, final),
		args:    args,
		groupBy: []string{prod},
		orderBy: []string{"mom_growth DESC NULLS LAST"},
		limit:   1,
	}, nil
}

func matchTopPerDistributor(s *state) bool {
	return s.feat.Top && s.feat.Product && s.feat.Distributor &&
		s.hasLabel(salesmodel.KindDistributor) && s.hasLabel(salesmodel.KindProduct)
}

// rankedWithin ranks products by total measure inside each partition label.
func (s *state) rankedWithin(partition, alias string, n int) (built, error) {
	prod, ok := s.labelExpr(salesmodel.KindProduct, true)
	if !ok {
		return built{}, errNoLabel
	}
	totals, args, err := toSQL(s.from(partition+" AS "+alias, prod+" AS product", s.sumExpr()+" AS total_value").
		GroupBy(partition, prod))
	if err != nil {
		return built{}, err
	}
	ctes := []string{
		fmt.Sprintf("totals AS (%s)", totals),
		fmt.Sprintf("ranked AS (SELECT %[1]s, product, total_value, "+
			"ROW_NUMBER() OVER (PARTITION BY %[1]s ORDER BY total_value DESC) AS rn FROM totals)", alias),
	}
	final := fmt.Sprintf("SELECT %[1]s, product, total_value FROM ranked WHERE rn <= %[2]d ORDER BY %[1]s, total_value DESC", alias, n)
	return built{
		sql:     wrapCTE(ctes, final),
		args:    args,
		groupBy: []string{partition, prod},
		orderBy: []string{"total_value DESC"},
		limit:   n,
	}, nil
}

func buildTopPerDistributor(s *state) (built, error) {
	dist, ok := s.labelExpr(salesmodel.KindDistributor, true)
	if !ok {
		return built{}, errNoLabel
	}
	return s.rankedWithin(dist, "distributor", s.topN(1))
}

func matchGeoBreakdown(s *state) bool {
	return s.hasGeo() && !(s.feat.Top && s.feat.Product)
}

func buildGeoBreakdown(s *state) (built, error) {
	geo, ok := s.geoExpr(true)
	if !ok {
		return built{}, errNoLabel
	}
	q := s.from(geo+" AS "+s.feat.GeoWord, s.sumExpr()+" AS total_value").
		GroupBy(geo).
		OrderBy("total_value DESC")
	query, args, err := toSQL(q)
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args, groupBy: []string{geo}, orderBy: []string{"total_value DESC"}}, nil
}

func matchTopPerGeo(s *state) bool {
	return s.feat.Top && s.feat.Product && s.hasGeo() && s.hasLabel(salesmodel.KindProduct)
}

func buildTopPerGeo(s *state) (built, error) {
	geo, ok := s.geoExpr(true)
	if !ok {
		return built{}, errNoLabel
	}
	return s.rankedWithin(geo, s.feat.GeoWord, s.topN(1))
}

func matchDistinctThreshold(s *state) bool {
	if s.feat.Threshold == nil || !s.feat.Distinct || !s.feat.Product || !s.feat.Actor() {
		return false
	}
	_, ok := s.productKeyExpr(false)
	return ok && s.hasLabel(s.actorKind())
}

func buildDistinctThreshold(s *state) (built, error) {
	kind := s.actorKind()
	actor, ok := s.labelExpr(kind, true)
	if !ok {
		return built{}, errNoLabel
	}
	key, ok := s.productKeyExpr(true)
	if !ok {
		return built{}, errors.New("no product key")
	}
	t := s.feat.Threshold
	count := fmt.Sprintf("COUNT(DISTINCT %s)", key)
	q := s.from(actor+" AS "+string(kind), count+" AS distinct_products").
		GroupBy(actor).
		Having(fmt.Sprintf("%s %s %s", count, t.Op, t.Literal())).
		OrderBy("distinct_products DESC")
	query, args, err := toSQL(q)
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args, groupBy: []string{actor}, orderBy: []string{"distinct_products DESC"}}, nil
}

func matchMeasureThreshold(s *state) bool {
	return s.feat.Threshold != nil && s.feat.Actor() && s.hasLabel(s.actorKind())
}

func buildMeasureThreshold(s *state) (built, error) {
	kind := s.actorKind()
	actor, ok := s.labelExpr(kind, true)
	if !ok {
		return built{}, errNoLabel
	}
	t := s.feat.Threshold
	q := s.from(actor+" AS "+string(kind), s.sumExpr()+" AS total_value").
		GroupBy(actor).
		Having(fmt.Sprintf("%s %s %s", s.sumExpr(), t.Op, t.Literal())).
		OrderBy("total_value DESC")
	query, args, err := toSQL(q)
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args, groupBy: []string{actor}, orderBy: []string{"total_value DESC"}}, nil
}

func matchProductThreshold(s *state) bool {
	if s.feat.Threshold == nil || !s.feat.Product || s.feat.Actor() {
		return false
	}
	_, ok := s.productKeyExpr(false)
	return ok
}

func buildProductThreshold(s *state) (built, error) {
	key, ok := s.productKeyExpr(true)
	if !ok {
		return built{}, errors.New("no product key")
	}
	t := s.feat.Threshold
	inner := s.from(key+" AS product_key").
		GroupBy(key).
		Having(fmt.Sprintf("%s %s %s", s.sumExpr(), t.Op, t.Literal()))
	query, args, err := toSQL(sq.Select("COUNT(*) AS num_products").FromSelect(inner, "s"))
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args, groupBy: []string{key}}, nil
}

func matchLastSale(s *state) bool {
	return s.feat.LastSale && s.date != ""
}

func buildLastSale(s *state) (built, error) {
	query, args, err := toSQL(s.from(fmt.Sprintf("MAX(%s) AS last_sale_date", s.col(s.date))))
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args}, nil
}

// rankingKind is what a plain top-N question ranks: products when product
// words appear, otherwise the named actor.
func (s *state) rankingKind() salesmodel.Kind {
	if s.feat.Product || !s.feat.Actor() {
		return salesmodel.KindProduct
	}
	return s.actorKind()
}

func matchTopN(s *state) bool {
	return s.feat.Top && (s.feat.Actor() || s.feat.Product) && s.hasLabel(s.rankingKind())
}

func buildTopN(s *state) (built, error) {
	kind := s.rankingKind()
	label, ok := s.labelExpr(kind, true)
	if !ok {
		return built{}, errNoLabel
	}
	n := s.topN(s.p.cfg.DefaultTopN)
	q := s.from(label+" AS "+string(kind), s.sumExpr()+" AS total_value").
		GroupBy(label).
		OrderBy("total_value DESC NULLS LAST").
		Limit(uint64(n))
	query, args, err := toSQL(q)
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args, groupBy: []string{label}, orderBy: []string{"total_value DESC NULLS LAST"}, limit: n}, nil
}

func buildTotal(s *state) (built, error) {
	query, args, err := toSQL(s.from(fmt.Sprintf("SUM(%s) AS total_value", s.measureExpr())))
	if err != nil {
		return built{}, err
	}
	return built{sql: query, args: args}, nil
}
