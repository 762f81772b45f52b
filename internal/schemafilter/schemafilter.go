// Package schemafilter applies allow/deny filters to schema snapshots.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"salesql/internal/introspection"
)

// Config controls allow/deny filters for tables and columns.
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables"`
	DenyTables   []string            `mapstructure:"deny_tables"`
	AllowColumns map[string][]string `mapstructure:"allow_columns"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns"`
}

// IsZero reports whether the config filters nothing.
func (c Config) IsZero() bool {
	return len(c.AllowTables) == 0 && len(c.DenyTables) == 0 &&
		len(c.AllowColumns) == 0 && len(c.DenyColumns) == 0
}

// Apply returns a snapshot holding only the visible tables and columns.
// Missing allow lists default to allow-all; deny rules always win.
// Foreign keys pointing at hidden tables or columns are dropped.
func Apply(snapshot *introspection.Snapshot, cfg Config) *introspection.Snapshot {
	if snapshot == nil || cfg.IsZero() {
		return snapshot
	}

	visible := make([]introspection.Table, 0)
	allowedColumnsByTable := make(map[string]map[string]bool)
	for _, table := range snapshot.Tables() {
		if !TableAllowed(table.Name, cfg) {
			continue
		}
		allowedColumns := make(map[string]bool)
		filteredColumns := make([]introspection.Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if !columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				continue
			}
			filteredColumns = append(filteredColumns, column)
			allowedColumns[column.Name] = true
		}
		if len(filteredColumns) == 0 {
			continue
		}
		table.Columns = filteredColumns
		allowedColumnsByTable[table.Name] = allowedColumns
		visible = append(visible, table)
	}

	for i := range visible {
		visible[i].ForeignKeys = filterForeignKeys(visible[i].ForeignKeys, allowedColumnsByTable[visible[i].Name], allowedColumnsByTable)
	}

	return introspection.NewSnapshot(snapshot.Schema, visible...)
}

// TableAllowed reports whether a table passes the table allow/deny lists.
func TableAllowed(table string, cfg Config) bool {
	if matchesAny(table, cfg.DenyTables) {
		return false
	}
	if len(cfg.AllowTables) == 0 {
		return true
	}
	return matchesAny(table, cfg.AllowTables)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	denyPatterns := mergePatterns(deny, table)
	if matchesAny(column, denyPatterns) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

func filterForeignKeys(fks []introspection.ForeignKey, allowedColumns map[string]bool, allowedColumnsByTable map[string]map[string]bool) []introspection.ForeignKey {
	filtered := make([]introspection.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if !allowedColumns[fk.ColumnName] {
			continue
		}
		remoteColumns := allowedColumnsByTable[fk.ReferencedTable]
		if remoteColumns == nil || !remoteColumns[fk.ReferencedColumn] {
			continue
		}
		filtered = append(filtered, fk)
	}
	return filtered
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
