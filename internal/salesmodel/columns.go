package salesmodel

// Fact columns probed by the entity resolver, actors before products.
var (
	PrimaryProbeColumns  = []string{"super_stockist_name", "distributor_name", "product_name", "material_description", "material"}
	ShipmentProbeColumns = []string{"sold_to_party_name", "material_description", "city", "sales_district", "material"}
)

// ProbeColumns returns the fact columns probed for a route.
func ProbeColumns(r Route) []string {
	if r == RouteShipment {
		return ShipmentProbeColumns
	}
	return PrimaryProbeColumns
}

// Name columns on each master table.
var dimensionNameColumns = map[Kind][]string{
	KindSuperstockist: {"superstockist_name", "super_stockist_name", "superstockist_id", "sold_to_party_name"},
	KindDistributor:   {"distributor_name", "name", "distributor_erp_id", "distributor_code"},
	KindProduct:       {"base_pack_design_name", "product_name", "material_description", "material", "product_id", "product", "material_code", "product_erp_id"},
}

// DimensionNameColumns returns the master-table columns that identify a kind.
func DimensionNameColumns(k Kind) []string {
	return dimensionNameColumns[k]
}

// Fact columns that identify a kind directly, in filter preference order.
var factEntityColumns = map[Kind][]string{
	KindSuperstockist: {"super_stockist_name", "sold_to_party_name", "superstockist_name", "super_stockist_id", "sold_to_party"},
	KindDistributor:   {"distributor_name", "distributor_code", "distributor_id"},
	KindProduct:       {"product_name", "material_description", "base_pack_design_name", "material"},
}

// FactEntityColumns returns the fact columns that can filter a kind.
func FactEntityColumns(k Kind) []string {
	return factEntityColumns[k]
}

// Label columns used when grouping by a kind, most readable first.
var labelColumns = map[Kind][]string{
	KindSuperstockist: {"super_stockist_name", "sold_to_party_name", "superstockist_name", "super_stockist_id", "sold_to_party", "superstockist_id"},
	KindDistributor:   {"distributor_name", "distributor_code", "distributor_id", "distributor_erp_id", "name"},
	KindProduct:       {"product_name", "material_description", "base_pack_design_name", "material", "product_id"},
}

// LabelColumns returns the grouping label columns for a kind.
func LabelColumns(k Kind) []string {
	return labelColumns[k]
}

// ProductKeyColumns identify a distinct product on a fact table.
var ProductKeyColumns = []string{"product_id", "material", "product_name", "material_description"}

// Measure column preference lists.
var (
	ValueMeasures    = []string{"invoice_value", "sales_value", "net_value", "amount", "value"}
	QuantityMeasures = []string{"invoiced_total_quantity", "actual_billed_quantity", "ordered_quantity", "qty", "quantity"}
	DefaultMeasures  = []string{"invoiced_total_quantity", "invoice_value", "sales_value", "actual_billed_quantity", "amount", "value", "qty", "quantity"}
)

// DateColumns are the preferred date columns on fact tables.
var DateColumns = []string{"sales_order_date", "bill_date", "invoice_date"}

// GeoWords maps a geography word to the columns that can answer it.
var GeoWords = map[string][]string{
	"city":     {"city"},
	"district": {"sales_district", "district"},
	"state":    {"state", "region"},
	"region":   {"region", "state", "zone"},
	"zone":     {"zone", "region"},
	"area":     {"area", "sales_district", "city", "region"},
}

// GeoWordOrder is the order geography words are checked in a question.
var GeoWordOrder = []string{"city", "district", "state", "region", "zone", "area"}
