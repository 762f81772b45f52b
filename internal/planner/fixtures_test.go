package planner

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salesql/internal/entity"
	"salesql/internal/introspection"
	"salesql/internal/salesmodel"
	"salesql/internal/sqltype"
)

func col(name string, category sqltype.Category) introspection.Column {
	return introspection.Column{Name: name, Category: category}
}

func primaryTable() introspection.Table {
	return introspection.Table{
		Name: "tbl_primary",
		Columns: []introspection.Column{
			col("super_stockist_name", sqltype.Text),
			col("distributor_name", sqltype.Text),
			col("product_name", sqltype.Text),
			col("material", sqltype.Text),
			col("invoiced_total_quantity", sqltype.Numeric),
			col("invoice_value", sqltype.Numeric),
			col("sales_order_date", sqltype.Temporal),
			col("bill_date", sqltype.Temporal),
		},
	}
}

func shipmentTable() introspection.Table {
	return introspection.Table{
		Name: "tbl_shipment",
		Columns: []introspection.Column{
			col("sold_to_party_name", sqltype.Text),
			col("material_description", sqltype.Text),
			col("city", sqltype.Text),
			col("sales_district", sqltype.Text),
			col("invoice_value", sqltype.Numeric),
			col("actual_billed_quantity", sqltype.Numeric),
			col("bill_date", sqltype.Temporal),
		},
	}
}

func distributorMaster() introspection.Table {
	return introspection.Table{
		Name: "tbl_distributor_master",
		Columns: []introspection.Column{
			col("distributor_erp_id", sqltype.Numeric),
			col("distributor_name", sqltype.Text),
			col("city", sqltype.Text),
		},
	}
}

func salesSnapshot(tables ...introspection.Table) *introspection.Snapshot {
	if len(tables) == 0 {
		tables = []introspection.Table{primaryTable(), shipmentTable(), distributorMaster()}
	}
	return introspection.NewSnapshot(introspection.DefaultSchema, tables...)
}

func newTestPlanner() *Planner {
	p := New(Config{Tables: salesmodel.DefaultTables()})
	p.now = func() time.Time { return time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC) }
	return p
}

func entities(kind salesmodel.Kind, tokens ...string) entity.Result {
	return entity.Result{
		Tokens:       tokens,
		Kinds:        []salesmodel.Kind{kind},
		TokensByKind: map[salesmodel.Kind][]string{kind: tokens},
	}
}

func mustPlan(t *testing.T, p *Planner, in Input) *Plan {
	t.Helper()
	plan, out := p.Plan(context.Background(), in)
	require.Nil(t, out, "unexpected outcome: %+v", out)
	require.NotNil(t, plan)
	return plan
}

var factColumnRef = regexp.MustCompile(`\bf\."([^"]+)"`)

// assertFactColumnsExist checks every f."col" reference names a real column.
func assertFactColumnsExist(t *testing.T, snap *introspection.Snapshot, plan *Plan) {
	t.Helper()
	table, ok := snap.Table(plan.FactTable)
	require.True(t, ok)
	for _, m := range factColumnRef.FindAllStringSubmatch(plan.SQL, -1) {
		require.Truef(t, table.HasColumn(m[1]), "column %q is not on %s", m[1], plan.FactTable)
	}
}
