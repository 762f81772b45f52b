package planner

import (
	"fmt"
	"strings"

	"salesql/internal/introspection"
	"salesql/internal/salesmodel"
	"salesql/internal/sqltype"
)

// keySuffixes mark identifier-like numeric columns that are never measures.
var keySuffixes = []string{"_id", "_code", "_no", "_number", "_key", "pincode", "_year", "_month"}

func isKeyColumn(name string) bool {
	n := strings.ToLower(name)
	if n == "id" || n == "year" || n == "month" {
		return true
	}
	for _, suffix := range keySuffixes {
		if strings.HasSuffix(n, suffix) {
			return true
		}
	}
	return false
}

// summable reports whether a named measure candidate can be summed. Columns of
// unknown type are allowed; text, dates and booleans are not.
func summable(c introspection.Column) bool {
	return c.Category == sqltype.Numeric || c.Category == sqltype.Other
}

// isTextual reports whether a column can be compared with ILIKE.
func isTextual(c introspection.Column) bool {
	return c.Category == sqltype.Text || c.Category == sqltype.Other
}

// PickMeasure chooses the measure column: a valid override, then the hint
// list, then the default list, then any numeric non-key column, then any
// numeric column.
func PickMeasure(table *introspection.Table, override string, hint MetricHint) (string, bool) {
	if override != "" {
		if c, ok := table.Column(override); ok && summable(c) {
			return override, true
		}
	}
	var lists [][]string
	switch hint {
	case MetricValue:
		lists = append(lists, salesmodel.ValueMeasures)
	case MetricQuantity:
		lists = append(lists, salesmodel.QuantityMeasures)
	}
	lists = append(lists, salesmodel.DefaultMeasures)
	for _, list := range lists {
		for _, name := range list {
			if c, ok := table.Column(name); ok && summable(c) {
				return name, true
			}
		}
	}
	for _, c := range table.Columns {
		if c.IsNumeric() && !isKeyColumn(c.Name) {
			return c.Name, true
		}
	}
	for _, c := range table.Columns {
		if c.IsNumeric() {
			return c.Name, true
		}
	}
	return "", false
}

// DateCandidates lists usable date columns in preference order: a valid
// override, the preferred names, then any column named like a date or typed
// as one.
func DateCandidates(table *introspection.Table, override string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if override != "" && table.HasColumn(override) {
		add(override)
	}
	for _, name := range table.AllPresent(salesmodel.DateColumns...) {
		add(name)
	}
	for _, c := range table.Columns {
		if strings.Contains(strings.ToLower(c.Name), "date") || c.IsTemporal() {
			add(c.Name)
		}
	}
	return out
}

func (s *state) chooseColumns() *Outcome {
	measure, ok := PickMeasure(s.fact, s.in.MeasureColumn, s.feat.Metric)
	if !ok {
		return &Outcome{
			Kind:    OutcomeSchemaError,
			Route:   s.route,
			Message: fmt.Sprintf("Error: no numeric measure column found in %s.", s.fact.Name),
		}
	}
	s.measure = measure
	if s.in.MeasureColumn != "" && s.in.MeasureColumn != measure {
		s.note(fmt.Sprintf("measure override %q ignored: not a numeric column of %s", s.in.MeasureColumn, s.fact.Name))
	}

	dates := DateCandidates(s.fact, s.in.DateColumn)
	if len(dates) > 0 {
		s.date = dates[0]
		s.altDates = dates[1:]
	}
	if s.in.DateColumn != "" && s.in.DateColumn != s.date {
		s.note(fmt.Sprintf("date override %q ignored: not a column of %s", s.in.DateColumn, s.fact.Name))
	}
	return nil
}

func (s *state) applyTimeWindow() {
	w := ParseTimeWindow(s.feat.Text, s.p.now())
	if w == nil {
		return
	}
	s.window = w
	if s.date == "" {
		s.note(fmt.Sprintf("time window %q ignored: no date column in %s", w.Label, s.fact.Name))
		return
	}
	s.where = append(s.where, w.Predicate(s.col(s.date)))
	s.filters = append(s.filters, "time window: "+w.Label)
}
