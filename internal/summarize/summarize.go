// Package summarize renders query results as short plain-text answers.
package summarize

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"salesql/internal/dbexec"
	"salesql/internal/sqltype"
)

const (
	DefaultPreviewRows   = 10
	DefaultSumRowCeiling = 10000

	NoRowsMessage = "No rows matched your criteria."
	FailedMessage = "Query execution failed."
)

// Config controls the preview.
type Config struct {
	PreviewRows   int `mapstructure:"preview_rows"`
	SumRowCeiling int `mapstructure:"sum_row_ceiling"`
}

// Summarizer renders results.
type Summarizer struct {
	cfg Config
}

// New creates a Summarizer.
func New(cfg Config) *Summarizer {
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.SumRowCeiling <= 0 {
		cfg.SumRowCeiling = DefaultSumRowCeiling
	}
	return &Summarizer{cfg: cfg}
}

// Failure renders an execution error.
func Failure(err error) string {
	return FailedMessage + "\n\n" + err.Error()
}

// Summarize renders res.
func (s *Summarizer) Summarize(res dbexec.Result) string {
	if res.Err != nil {
		return Failure(res.Err)
	}
	if len(res.Rows) == 0 {
		return NoRowsMessage
	}
	if len(res.Rows) == 1 && len(res.Columns) == 1 && !res.Truncated {
		return FormatValue(res.Rows[0][0])
	}

	var b strings.Builder
	count := strconv.Itoa(len(res.Rows))
	if res.Truncated {
		count += "+"
	}
	fmt.Fprintf(&b, "Rows: %s | Columns: %d\n\n", count, len(res.Columns))
	b.WriteString(s.preview(res))

	if numeric := numericColumns(res); len(numeric) == 1 && len(res.Rows) <= s.cfg.SumRowCeiling {
		idx := numeric[0]
		if total, ok := Sum(res.Rows, idx); ok {
			fmt.Fprintf(&b, "\n\nTotal %s: %s", res.Columns[idx].Name, total)
		}
	}
	return b.String()
}

func (s *Summarizer) preview(res dbexec.Result) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)

	for i, values := range res.Rows {
		if i == s.cfg.PreviewRows {
			break
		}
		row := make(table.Row, len(values))
		for j, v := range values {
			row[j] = FormatValue(v)
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// numericColumns returns the indexes of numeric columns. Columns of unknown
// database type are numeric when every non-NULL value is a Go number.
func numericColumns(res dbexec.Result) []int {
	var out []int
	for i, c := range res.Columns {
		switch c.Category {
		case sqltype.Numeric:
			out = append(out, i)
		case sqltype.Other:
			if goNumeric(res.Rows, i) {
				out = append(out, i)
			}
		}
	}
	return out
}

func goNumeric(rows [][]any, idx int) bool {
	seen := false
	for _, r := range rows {
		switch r[idx].(type) {
		case nil:
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			seen = true
		default:
			return false
		}
	}
	return seen
}

// Sum adds a column with exact decimal arithmetic. NULLs are skipped; ok is
// false when a value is not a number.
func Sum(rows [][]any, idx int) (string, bool) {
	total := new(big.Rat)
	scale := 0
	for _, r := range rows {
		if r[idx] == nil {
			continue
		}
		text, ok := decimalText(r[idx])
		if !ok {
			return "", false
		}
		v, ok := new(big.Rat).SetString(text)
		if !ok {
			return "", false
		}
		if dot := strings.IndexByte(text, '.'); dot >= 0 {
			scale = max(scale, len(text)-dot-1)
		}
		total.Add(total, v)
	}
	return total.FloatString(scale), true
}

func decimalText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if strings.ContainsAny(s, "eE/") {
			return "", false
		}
		return s, s != ""
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true
	default:
		return "", false
	}
}

// FormatValue renders one cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
