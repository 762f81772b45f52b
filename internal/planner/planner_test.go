package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesql/internal/entity"
	"salesql/internal/introspection"
	"salesql/internal/salesmodel"
	"salesql/internal/sqltype"
)

func TestPlan_TotalWithEntityAndWindow(t *testing.T) {
	snap := salesSnapshot()
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "Total sales of Bhujia in the last 3 months",
		Route:    salesmodel.RoutePrimary,
		Snapshot: snap,
		Entities: entities(salesmodel.KindProduct, "bhujia"),
	})

	assert.Equal(t, "total", plan.Intent)
	assert.Equal(t, "tbl_primary", plan.FactTable)
	assert.Equal(t, "invoiced_total_quantity", plan.MeasureColumn)
	assert.Equal(t, "sales_order_date", plan.DateColumn)
	assert.Equal(t, []string{"bill_date"}, plan.AltDateColumns)
	assert.Equal(t, "last 3 months", plan.TimeWindow)

	assert.True(t, strings.HasPrefix(plan.SQL, `SELECT SUM(f."invoiced_total_quantity") AS total_value FROM "tbl_primary" f WHERE `))
	assert.Contains(t, plan.SQL, `f."sales_order_date" >= date_trunc('month', CURRENT_DATE - INTERVAL '3 months')`)
	assert.Contains(t, plan.SQL, `f."sales_order_date" < date_trunc('month', CURRENT_DATE)`)
	assert.Contains(t, plan.SQL, `(f."product_name" ILIKE $1 OR f."material" ILIKE $2)`)
	assert.Equal(t, []any{"%bhujia%", "%bhujia%"}, plan.Args)
	assertFactColumnsExist(t, snap, plan)
}

func TestPlan_NoWindowWithoutRequest(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "total sales of bhujia",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})
	assert.Equal(t, `SELECT SUM(f."invoiced_total_quantity") AS total_value FROM "tbl_primary" f`, plan.SQL)
	assert.Empty(t, plan.Args)
	assert.Empty(t, plan.TimeWindow)
}

func TestPlan_MoMTopSKUPerDistributor(t *testing.T) {
	snap := salesSnapshot()
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "Which SKU had the highest MoM growth for each distributor?",
		Route:    salesmodel.RoutePrimary,
		Snapshot: snap,
	})

	assert.Equal(t, "mom_top_sku_per_distributor", plan.Intent)
	assert.True(t, strings.HasPrefix(plan.SQL, "SELECT * FROM (WITH base AS (SELECT "))
	assert.True(t, strings.HasSuffix(plan.SQL, ") q"))
	assert.Contains(t, plan.SQL, `f."distributor_name" AS distributor`)
	assert.Contains(t, plan.SQL, `f."product_name" AS product`)
	assert.Contains(t, plan.SQL, `f."sales_order_date" < date_trunc('month', CURRENT_DATE)`)
	assert.Contains(t, plan.SQL, "NULLIF(m1_value, 0)")
	assert.Contains(t, plan.SQL, "PARTITION BY distributor ORDER BY")
	assert.Contains(t, plan.SQL, "DESC NULLS LAST")
	assert.Contains(t, plan.SQL, "WHERE rn = 1")
	assertFactColumnsExist(t, snap, plan)
}

func TestPlan_MoMTopSKUOverall(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "which product grew the most month over month",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})

	assert.Equal(t, "mom_top_sku_overall", plan.Intent)
	assert.True(t, strings.HasPrefix(plan.SQL, "SELECT * FROM (WITH "))
	assert.NotContains(t, plan.SQL, "PARTITION BY")
	assert.Contains(t, plan.SQL, "LIMIT 1")
	assert.Equal(t, 1, plan.Limit)
}

func TestPlan_DistinctProductThreshold(t *testing.T) {
	snap := salesSnapshot()
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "distributors with fewer than 5 distinct products",
		Route:    salesmodel.RoutePrimary,
		Snapshot: snap,
	})

	assert.Equal(t, "distinct_product_threshold", plan.Intent)
	assert.Equal(t,
		`SELECT f."distributor_name" AS distributor, COUNT(DISTINCT f."material") AS distinct_products FROM "tbl_primary" f `+
			`GROUP BY f."distributor_name" HAVING COUNT(DISTINCT f."material") < 5 ORDER BY distinct_products DESC`,
		plan.SQL)
	assert.NotContains(t, plan.SQL, "WHERE")
	assertFactColumnsExist(t, snap, plan)
}

func TestPlan_MeasureThresholdPerActor(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "superstockists with sales above 1000 last month",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})

	assert.Equal(t, "measure_threshold_per_actor", plan.Intent)
	assert.Contains(t, plan.SQL, `f."super_stockist_name" AS superstockist`)
	assert.Contains(t, plan.SQL, `HAVING COALESCE(SUM(f."invoiced_total_quantity"), 0) > 1000`)

	where := plan.SQL[strings.Index(plan.SQL, "WHERE"):strings.Index(plan.SQL, "GROUP BY")]
	assert.NotContains(t, where, "1000")
}

func TestPlan_GroupedThresholdNumber(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "distributors with sales more than 1,00,000",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})

	assert.Equal(t, "measure_threshold_per_actor", plan.Intent)
	assert.Contains(t, plan.SQL, `HAVING COALESCE(SUM(f."invoiced_total_quantity"), 0) > 100000`)
}

func TestPlan_ProductMeasureThreshold(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "how many products sold more than 100 units",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})

	assert.Equal(t, "product_measure_threshold", plan.Intent)
	assert.Equal(t,
		`SELECT COUNT(*) AS num_products FROM (SELECT f."material" AS product_key FROM "tbl_primary" f `+
			`GROUP BY f."material" HAVING COALESCE(SUM(f."invoiced_total_quantity"), 0) > 100) AS s`,
		plan.SQL)
}

func TestPlan_LastSaleDate(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "When was the last sale to distributor Alpha Traders?",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
		Entities: entities(salesmodel.KindDistributor, "alpha", "traders"),
	})

	assert.Equal(t, "last_sale_date", plan.Intent)
	assert.Equal(t,
		`SELECT MAX(f."sales_order_date") AS last_sale_date FROM "tbl_primary" f WHERE (f."distributor_name" ILIKE $1 OR f."distributor_name" ILIKE $2)`,
		plan.SQL)
	assert.Equal(t, []any{"%alpha%", "%traders%"}, plan.Args)
}

func TestPlan_TopNRanking(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "top 3 distributors by revenue",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})

	assert.Equal(t, "top_n_ranking", plan.Intent)
	assert.Equal(t,
		`SELECT f."distributor_name" AS distributor, COALESCE(SUM(f."invoice_value"), 0) AS total_value FROM "tbl_primary" f `+
			`GROUP BY f."distributor_name" ORDER BY total_value DESC NULLS LAST LIMIT 3`,
		plan.SQL)
	assert.Equal(t, 3, plan.Limit)
}

func TestPlan_TopNDefaultsToConfiguredSize(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "best selling products",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})
	assert.Equal(t, "top_n_ranking", plan.Intent)
	assert.Equal(t, DefaultTopN, plan.Limit)
	assert.True(t, strings.HasSuffix(plan.SQL, "LIMIT 5"))
}

func TestPlan_TopSKUPerDistributor(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "top 2 products for every distributor",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})
	assert.Equal(t, "top_sku_per_distributor", plan.Intent)
	assert.Contains(t, plan.SQL, "PARTITION BY distributor ORDER BY total_value DESC")
	assert.Contains(t, plan.SQL, "WHERE rn <= 2")
}

func TestPlan_GeoBreakdownOnShipment(t *testing.T) {
	snap := salesSnapshot()
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "shipment sales by city",
		Snapshot: snap,
	})

	assert.Equal(t, salesmodel.RouteShipment, plan.Route)
	assert.Equal(t, "geo_breakdown", plan.Intent)
	assert.Equal(t,
		`SELECT f."city" AS city, COALESCE(SUM(f."invoice_value"), 0) AS total_value FROM "tbl_shipment" f GROUP BY f."city" ORDER BY total_value DESC`,
		plan.SQL)
	assertFactColumnsExist(t, snap, plan)
}

func TestPlan_TopSKUPerGeo(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "top product in each district for shipment",
		Snapshot: salesSnapshot(),
	})
	assert.Equal(t, "top_sku_per_geo", plan.Intent)
	assert.Contains(t, plan.SQL, `f."sales_district" AS district`)
	assert.Contains(t, plan.SQL, `f."material_description" AS product`)
	assert.Contains(t, plan.SQL, "WHERE rn <= 1")
}

func TestPlan_GeoFilterFromResolver(t *testing.T) {
	res := entities(salesmodel.KindProduct, "namkeen")
	res.Geo = []entity.GeoMention{{Table: "tbl_shipment", Column: "city", Token: "pune", Value: "Pune"}}
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "shipment sales of namkeen in pune",
		Snapshot: salesSnapshot(),
		Entities: res,
	})
	assert.Contains(t, plan.SQL, `f."material_description" ILIKE $1`)
	assert.Contains(t, plan.SQL, `f."city" ILIKE $2`)
	assert.Equal(t, []any{"%namkeen%", "%pune%"}, plan.Args)
}

func TestPlan_DimensionJoinFilter(t *testing.T) {
	fact := introspection.Table{
		Name: "tbl_primary",
		Columns: []introspection.Column{
			col("distributor_id", sqltype.Numeric),
			col("invoiced_total_quantity", sqltype.Numeric),
		},
	}
	snap := salesSnapshot(fact, distributorMaster())
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "sales for distributor alpha",
		Route:    salesmodel.RoutePrimary,
		Snapshot: snap,
		Entities: entities(salesmodel.KindDistributor, "alpha"),
	})

	assert.Equal(t,
		`SELECT SUM(f."invoiced_total_quantity") AS total_value FROM "tbl_primary" f `+
			`LEFT JOIN "tbl_distributor_master" d ON f."distributor_id" = d."distributor_erp_id" `+
			`WHERE (d."distributor_name" ILIKE $1)`,
		plan.SQL)
	require.Len(t, plan.Joins, 1)
	assert.Equal(t, "tbl_distributor_master", plan.Joins[0].Table)
	assert.Equal(t, []string{"tbl_primary", "tbl_distributor_master"}, plan.Tables())
}

func TestPlan_SkipsFilterWithoutJoinKey(t *testing.T) {
	fact := introspection.Table{
		Name:    "tbl_primary",
		Columns: []introspection.Column{col("invoiced_total_quantity", sqltype.Numeric)},
	}
	dim := introspection.Table{
		Name:    "tbl_distributor_master",
		Columns: []introspection.Column{col("distributor_name", sqltype.Text)},
	}
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "sales for distributor alpha",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(fact, dim),
		Entities: entities(salesmodel.KindDistributor, "alpha"),
	})

	assert.NotContains(t, plan.SQL, "WHERE")
	assert.Empty(t, plan.Joins)
	require.NotEmpty(t, plan.Notes)
	assert.Contains(t, plan.Notes[0], "distributor filter skipped")
}

func TestPlan_AllowlistHidesDimension(t *testing.T) {
	fact := introspection.Table{
		Name: "tbl_primary",
		Columns: []introspection.Column{
			col("distributor_id", sqltype.Numeric),
			col("invoiced_total_quantity", sqltype.Numeric),
		},
	}
	plan := mustPlan(t, newTestPlanner(), Input{
		Question:      "sales for distributor alpha",
		Route:         salesmodel.RoutePrimary,
		AllowedTables: []string{"tbl_primary"},
		Snapshot:      salesSnapshot(fact, distributorMaster()),
		Entities:      entities(salesmodel.KindDistributor, "alpha"),
	})
	assert.NotContains(t, plan.SQL, "tbl_distributor_master")
	assert.Contains(t, plan.Notes, "distributor filter skipped: tbl_distributor_master is not available")
}

func TestPlan_Clarification(t *testing.T) {
	plan, out := newTestPlanner().Plan(context.Background(), Input{
		Question: "total sales of bhujia",
		Snapshot: salesSnapshot(),
	})
	assert.Nil(t, plan)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeClarification, out.Kind)
	assert.Equal(t, ClarifyRouteMessage, out.Message)
}

func TestPlan_DefaultRoute(t *testing.T) {
	p := New(Config{DefaultRoute: salesmodel.RoutePrimary})
	plan := mustPlan(t, p, Input{Question: "total sales", Snapshot: salesSnapshot()})
	assert.Equal(t, salesmodel.RoutePrimary, plan.Route)
}

func TestPlan_MissingFactTables(t *testing.T) {
	p := newTestPlanner()
	snap := salesSnapshot(distributorMaster())

	_, out := p.Plan(context.Background(), Input{Question: "total sales", Route: salesmodel.RoutePrimary, Snapshot: snap})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeSchemaError, out.Kind)
	assert.Equal(t, "Error: primary table (tbl_primary) not available in DB.", out.Message)

	_, out = p.Plan(context.Background(), Input{Question: "total shipment sales", Snapshot: snap})
	require.NotNil(t, out)
	assert.Equal(t, "Error: shipment table not available; please choose 'primary'.", out.Message)
}

func TestPlan_NoMeasure(t *testing.T) {
	fact := introspection.Table{
		Name:    "tbl_primary",
		Columns: []introspection.Column{col("distributor_name", sqltype.Text)},
	}
	_, out := newTestPlanner().Plan(context.Background(), Input{
		Question: "total sales",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(fact),
	})
	require.NotNil(t, out)
	assert.Equal(t, OutcomeSchemaError, out.Kind)
	assert.Equal(t, "Error: no numeric measure column found in tbl_primary.", out.Message)
}

func TestPlan_Overrides(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question:      "total sales",
		Route:         salesmodel.RoutePrimary,
		MeasureColumn: "invoice_value",
		DateColumn:    "bill_date",
		Snapshot:      salesSnapshot(),
	})
	assert.Equal(t, "invoice_value", plan.MeasureColumn)
	assert.Equal(t, "bill_date", plan.DateColumn)

	plan = mustPlan(t, newTestPlanner(), Input{
		Question:      "total sales",
		Route:         salesmodel.RoutePrimary,
		MeasureColumn: "distributor_name",
		DateColumn:    "missing_date",
		Snapshot:      salesSnapshot(),
	})
	assert.Equal(t, "invoiced_total_quantity", plan.MeasureColumn)
	assert.Equal(t, "sales_order_date", plan.DateColumn)
	assert.Len(t, plan.Notes, 2)
}

func TestPlan_WindowWithoutDateColumnIsNoted(t *testing.T) {
	fact := introspection.Table{
		Name:    "tbl_primary",
		Columns: []introspection.Column{col("invoiced_total_quantity", sqltype.Numeric)},
	}
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "sales in the last 2 weeks",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(fact),
	})
	assert.NotContains(t, plan.SQL, "WHERE")
	assert.Empty(t, plan.TimeWindow)
	assert.Contains(t, plan.Notes, `time window "last 2 weeks" ignored: no date column in tbl_primary`)
}

func TestPlan_RouteExcludesOtherFacts(t *testing.T) {
	tables := salesmodel.DefaultTables()
	tables.DistributorMaster = "tbl_shipment"
	p := New(Config{Tables: tables})
	plan := mustPlan(t, p, Input{
		Question: "sales for distributor alpha",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(introspection.Table{
			Name: "tbl_primary",
			Columns: []introspection.Column{
				col("distributor_id", sqltype.Numeric),
				col("invoiced_total_quantity", sqltype.Numeric),
			},
		}, shipmentTable()),
		Entities: entities(salesmodel.KindDistributor, "alpha"),
	})
	assert.NotContains(t, plan.SQL, "tbl_shipment")
}

func TestPlan_EverySQLStartsWithSelect(t *testing.T) {
	questions := []string{
		"total sales",
		"which sku had the best mom growth per distributor",
		"mom growth of products",
		"top 3 skus per distributor",
		"sales by city",
		"top product by district",
		"distributors with at least 10 unique products",
		"distributors with sales under 500",
		"products with sales over 100",
		"latest sale",
		"top superstockists",
		"sales from 01/02/2024 to 10/02/2024",
	}
	snap := salesSnapshot(primaryTable(), distributorMaster(), introspection.Table{
		Name:    "tbl_shipment",
		Columns: append(shipmentTable().Columns, col("sales_order_date", sqltype.Temporal)),
	})
	p := newTestPlanner()
	for _, q := range questions {
		for _, route := range []salesmodel.Route{salesmodel.RoutePrimary, salesmodel.RouteShipment} {
			plan, out := p.Plan(context.Background(), Input{Question: q, Route: route, Snapshot: snap})
			require.Nil(t, out, q)
			assert.Truef(t, strings.HasPrefix(plan.SQL, "SELECT "), "%s: %s", q, plan.SQL)
			assert.NotContains(t, plan.SQL, "?", q)
			assertFactColumnsExist(t, snap, plan)
		}
	}
}

func TestPlan_InlineSQL(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "sales of o'brien snacks",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
		Entities: entities(salesmodel.KindProduct, "o'brien"),
	})
	assert.Contains(t, plan.InlineSQL(), `f."product_name" ILIKE '%o''brien%'`)
}

func TestPlan_WithDateColumn(t *testing.T) {
	plan := mustPlan(t, newTestPlanner(), Input{
		Question: "when was the last sale",
		Route:    salesmodel.RoutePrimary,
		Snapshot: salesSnapshot(),
	})
	next := plan.WithDateColumn("bill_date")
	assert.Equal(t, `SELECT MAX(f."bill_date") AS last_sale_date FROM "tbl_primary" f`, next.SQL)
	assert.Equal(t, "bill_date", next.DateColumn)
	assert.Empty(t, next.AltDateColumns)
	assert.Equal(t, "sales_order_date", plan.DateColumn)
}

func TestPlan_SchemaQualifiedOutsidePublic(t *testing.T) {
	snap := introspection.NewSnapshot("sales", primaryTable())
	plan := mustPlan(t, newTestPlanner(), Input{Question: "total sales", Route: salesmodel.RoutePrimary, Snapshot: snap})
	assert.Contains(t, plan.SQL, `FROM "sales"."tbl_primary" f`)
}

func TestDetectRoute(t *testing.T) {
	p := newTestPlanner()
	tests := []struct {
		question string
		pinned   salesmodel.Route
		want     salesmodel.Route
		ok       bool
	}{
		{"total dispatch to pune", salesmodel.RouteUnknown, salesmodel.RouteShipment, true},
		{"primary sales of bhujia", salesmodel.RouteUnknown, salesmodel.RoutePrimary, true},
		{"sell-in for march", salesmodel.RouteUnknown, salesmodel.RoutePrimary, true},
		{"secondary sales", salesmodel.RoutePrimary, salesmodel.RoutePrimary, true},
		{"total sales", salesmodel.RouteUnknown, salesmodel.RouteUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, ok := p.DetectRoute(tt.question, tt.pinned)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestPlan_Scenarios(t *testing.T) {
	snap := salesSnapshot()
	p := newTestPlanner()

	t.Run("total sales last month", func(t *testing.T) {
		plan := mustPlan(t, p, Input{Question: "total sales last month", Route: salesmodel.RoutePrimary, Snapshot: snap})
		assert.Equal(t, "total", plan.Intent)
		assert.Equal(t,
			`SELECT SUM(f."invoiced_total_quantity") AS total_value FROM "tbl_primary" f WHERE `+
				`(f."sales_order_date" >= date_trunc('month', CURRENT_DATE - INTERVAL '1 month') AND f."sales_order_date" < date_trunc('month', CURRENT_DATE))`,
			plan.SQL)
	})

	t.Run("top 3 distributors by sales", func(t *testing.T) {
		plan := mustPlan(t, p, Input{Question: "top 3 distributors by sales", Route: salesmodel.RoutePrimary, Snapshot: snap})
		assert.Equal(t, []string{`f."distributor_name"`}, plan.GroupBy)
		assert.Contains(t, plan.SQL, "ORDER BY total_value DESC NULLS LAST LIMIT 3")
	})

	t.Run("distinct products threshold", func(t *testing.T) {
		plan := mustPlan(t, p, Input{Question: "distributors who bought more than 5 distinct products", Route: salesmodel.RoutePrimary, Snapshot: snap})
		assert.Contains(t, plan.SQL, `HAVING COUNT(DISTINCT f."material") > 5`)
	})
}

func TestRouteHint_IgnoresDefault(t *testing.T) {
	route, ok := RouteHint("total dispatch value")
	assert.True(t, ok)
	assert.Equal(t, salesmodel.RouteShipment, route)

	_, ok = RouteHint("total sales")
	assert.False(t, ok)

	p := New(Config{Tables: salesmodel.DefaultTables(), DefaultRoute: salesmodel.RoutePrimary})
	route, ok = p.DetectRoute("total sales", salesmodel.RouteUnknown)
	assert.True(t, ok)
	assert.Equal(t, salesmodel.RoutePrimary, route)
}
