// Package sqltype classifies Postgres data types into the coarse categories
// the planner and summarizer reason about.
// It accepts both information_schema.columns.data_type values ("double precision",
// "timestamp without time zone") and driver type names reported by
// sql.ColumnType.DatabaseTypeName ("FLOAT8", "TIMESTAMPTZ").
package sqltype

import "strings"

// Category is the coarse kind of a SQL column.
type Category int

const (
	// Other is the default for unknown or unsupported SQL types.
	Other Category = iota
	// Numeric covers integer, fixed-point and floating-point types.
	Numeric
	// Temporal covers date, timestamp and time types.
	Temporal
	// Text covers character types.
	Text
	// Boolean represents boolean types.
	Boolean
)

// Classify converts a SQL data type string to its category.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching.
func Classify(sqlType string) Category {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	t := strings.ToUpper(strings.TrimSpace(sqlType))
	switch t {
	case "SMALLINT", "INTEGER", "INT", "BIGINT", "INT2", "INT4", "INT8",
		"SMALLSERIAL", "SERIAL", "BIGSERIAL", "SERIAL4", "SERIAL8":
		return Numeric
	case "NUMERIC", "DECIMAL", "REAL", "DOUBLE PRECISION", "FLOAT", "FLOAT4", "FLOAT8", "MONEY":
		return Numeric
	case "DATE", "TIME", "TIMETZ", "TIMESTAMP", "TIMESTAMPTZ", "INTERVAL":
		return Temporal
	case "CHARACTER VARYING", "VARCHAR", "CHARACTER", "CHAR", "BPCHAR", "TEXT", "NAME", "CITEXT":
		return Text
	case "BOOLEAN", "BOOL":
		return Boolean
	}
	if strings.HasPrefix(t, "TIMESTAMP") || strings.HasPrefix(t, "TIME ") {
		return Temporal
	}
	return Other
}

// IsNumeric reports whether the SQL type is numeric.
func IsNumeric(sqlType string) bool {
	return Classify(sqlType) == Numeric
}

// IsTemporal reports whether the SQL type is a date or time type.
func IsTemporal(sqlType string) bool {
	return Classify(sqlType) == Temporal
}

// String returns a short lowercase name for the category.
func (c Category) String() string {
	switch c {
	case Numeric:
		return "numeric"
	case Temporal:
		return "temporal"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	default:
		return "other"
	}
}
