package introspection

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Edge sources.
const (
	SourceForeignKey = "foreign_key"
	SourceMetadata   = "metadata"
)

// Edge is a declared single-column join between two tables.
type Edge struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
	Source      string
}

// foreignKeyEdges turns single-column foreign keys into edges. Composite
// constraints are left out since a fact/dimension join is on one key.
func foreignKeyEdges(s *Snapshot) []Edge {
	var edges []Edge
	for _, name := range s.TableNames() {
		table := s.tables[name]
		byConstraint := make(map[string][]ForeignKey)
		var order []string
		for _, fk := range table.ForeignKeys {
			if _, ok := byConstraint[fk.ConstraintName]; !ok {
				order = append(order, fk.ConstraintName)
			}
			byConstraint[fk.ConstraintName] = append(byConstraint[fk.ConstraintName], fk)
		}
		for _, constraint := range order {
			group := byConstraint[constraint]
			if len(group) != 1 {
				continue
			}
			fk := group[0]
			edges = append(edges, Edge{
				LeftTable:   name,
				LeftColumn:  fk.ColumnName,
				RightTable:  fk.ReferencedTable,
				RightColumn: fk.ReferencedColumn,
				Source:      SourceForeignKey,
			})
		}
	}
	return edges
}

// AddEdges appends externally declared edges. Edges naming a table or column
// absent from the snapshot are ignored; the count of accepted edges is returned.
func (s *Snapshot) AddEdges(edges []Edge) int {
	if s == nil {
		return 0
	}
	added := 0
	for _, e := range edges {
		if !s.HasColumn(e.LeftTable, e.LeftColumn) || !s.HasColumn(e.RightTable, e.RightColumn) {
			continue
		}
		if e.Source == "" {
			e.Source = SourceMetadata
		}
		s.Edges = append(s.Edges, e)
		added++
	}
	return added
}

// DirectJoin returns the declared join columns between fact and dim, checking
// edges in both directions. Foreign keys win over metadata edges.
func (s *Snapshot) DirectJoin(fact, dim string) (factColumn, dimColumn string, ok bool) {
	if s == nil {
		return "", "", false
	}
	for _, source := range []string{SourceForeignKey, SourceMetadata} {
		for _, e := range s.Edges {
			if e.Source != source {
				continue
			}
			switch {
			case e.LeftTable == fact && e.RightTable == dim:
				return e.LeftColumn, e.RightColumn, true
			case e.RightTable == fact && e.LeftTable == dim:
				return e.RightColumn, e.LeftColumn, true
			}
		}
	}
	return "", "", false
}

// relationshipEntry accepts the three key spellings seen in metadata files.
type relationshipEntry struct {
	LeftTable   string `json:"left_table"`
	LeftColumn  string `json:"left_column"`
	RightTable  string `json:"right_table"`
	RightColumn string `json:"right_column"`

	TableA string `json:"table_a"`
	ColA   string `json:"col_a"`
	TableB string `json:"table_b"`
	ColB   string `json:"col_b"`

	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

func (r relationshipEntry) edge() (Edge, bool) {
	e := Edge{
		LeftTable:   firstNonEmpty(r.LeftTable, r.TableA, r.FromTable),
		LeftColumn:  firstNonEmpty(r.LeftColumn, r.ColA, r.FromColumn),
		RightTable:  firstNonEmpty(r.RightTable, r.TableB, r.ToTable),
		RightColumn: firstNonEmpty(r.RightColumn, r.ColB, r.ToColumn),
		Source:      SourceMetadata,
	}
	if e.LeftTable == "" || e.LeftColumn == "" || e.RightTable == "" || e.RightColumn == "" {
		return Edge{}, false
	}
	return e, true
}

// ParseRelationships decodes a {"relationships":[...]} document. Entries that
// are missing a table or column are skipped.
func ParseRelationships(data []byte) ([]Edge, error) {
	var doc struct {
		Relationships []relationshipEntry `json:"relationships"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid relationships document: %w", err)
	}
	edges := make([]Edge, 0, len(doc.Relationships))
	for _, entry := range doc.Relationships {
		if e, ok := entry.edge(); ok {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

// LoadRelationshipsFile reads external relationship metadata. An empty path
// yields no edges.
func LoadRelationshipsFile(path string) ([]Edge, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relationships file %s: %w", path, err)
	}
	return ParseRelationships(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
