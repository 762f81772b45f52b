// Package salesmodel names the routes, entity kinds, tables and column
// vocabularies of the retail sales schema.
package salesmodel

import (
	"strings"
)

// Route selects which fact table family answers a question.
type Route string

const (
	RouteUnknown  Route = ""
	RoutePrimary  Route = "primary"
	RouteShipment Route = "shipment"
)

// ParseRoute accepts "primary" or "shipment" in any case.
func ParseRoute(s string) (Route, bool) {
	switch Route(strings.ToLower(strings.TrimSpace(s))) {
	case RoutePrimary:
		return RoutePrimary, true
	case RouteShipment:
		return RouteShipment, true
	default:
		return RouteUnknown, false
	}
}

// Kind is the category of a resolved entity mention.
type Kind string

const (
	KindSuperstockist Kind = "superstockist"
	KindDistributor   Kind = "distributor"
	KindProduct       Kind = "product"
)

// Kinds lists every kind with actors first.
var Kinds = []Kind{KindSuperstockist, KindDistributor, KindProduct}

// IsActor reports whether the kind is a trading party rather than a product.
func (k Kind) IsActor() bool {
	return k == KindSuperstockist || k == KindDistributor
}

// KindForColumn maps a column name to the entity kind it identifies.
func KindForColumn(column string) (Kind, bool) {
	c := strings.ToLower(column)
	switch {
	case strings.Contains(c, "sold_to_party"), strings.Contains(c, "super_stockist"), strings.Contains(c, "superstockist"):
		return KindSuperstockist, true
	case strings.Contains(c, "distributor"):
		return KindDistributor, true
	case strings.Contains(c, "product"), strings.Contains(c, "material"), strings.Contains(c, "description"):
		return KindProduct, true
	default:
		return "", false
	}
}

// IsGeoColumn reports whether a probed column records geography.
func IsGeoColumn(column string) bool {
	c := strings.ToLower(column)
	return c == "city" || c == "sales_district"
}

// Tables names the fact and dimension tables per route.
type Tables struct {
	Primary             []string `mapstructure:"primary"`
	Shipment            []string `mapstructure:"shipment"`
	SuperstockistMaster string   `mapstructure:"superstockist_master"`
	DistributorMaster   string   `mapstructure:"distributor_master"`
	ProductMaster       string   `mapstructure:"product_master"`
}

// DefaultTables returns the standard table names.
func DefaultTables() Tables {
	return Tables{
		Primary:             []string{"tbl_primary"},
		Shipment:            []string{"tbl_shipment", "tbl_dispatch", "tbl_secondary", "tbl_shipments"},
		SuperstockistMaster: "tbl_superstockist_master",
		DistributorMaster:   "tbl_distributor_master",
		ProductMaster:       "tbl_product_master",
	}
}

// FactCandidates returns the fact tables for a route in preference order.
func (t Tables) FactCandidates(r Route) []string {
	switch r {
	case RoutePrimary:
		return t.Primary
	case RouteShipment:
		return t.Shipment
	default:
		return nil
	}
}

// ExcludedFacts returns the fact tables a route must never reference.
func (t Tables) ExcludedFacts(r Route) []string {
	switch r {
	case RoutePrimary:
		return t.Shipment
	case RouteShipment:
		return t.Primary
	default:
		return nil
	}
}

// Dimension returns the master table for a kind.
func (t Tables) Dimension(k Kind) string {
	switch k {
	case KindSuperstockist:
		return t.SuperstockistMaster
	case KindDistributor:
		return t.DistributorMaster
	case KindProduct:
		return t.ProductMaster
	default:
		return ""
	}
}

// Dimensions returns the master tables in probe order.
func (t Tables) Dimensions() []string {
	var out []string
	for _, k := range Kinds {
		if name := t.Dimension(k); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ForRoute returns the route's fact candidates followed by the dimensions.
func (t Tables) ForRoute(r Route) []string {
	out := append([]string{}, t.FactCandidates(r)...)
	return append(out, t.Dimensions()...)
}

// All returns every configured table without duplicates.
func (t Tables) All() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{t.Primary, t.Shipment, t.Dimensions()} {
		for _, name := range group {
			if _, ok := seen[name]; ok || name == "" {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
