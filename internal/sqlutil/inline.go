package sqlutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inline substitutes $n placeholders outside quoted regions with literal
// renderings of args. Placeholders without a matching argument are left as is.
func Inline(query string, args []any) string {
	if len(args) == 0 {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			b.WriteByte(c)
			continue
		}
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(query[i+1 : j])
		if err != nil || n < 1 || n > len(args) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(Literal(args[n-1]))
		i = j - 1
	}
	return b.String()
}

// Literal renders a bound value as a SQL literal.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return QuoteString(x)
	case []byte:
		return QuoteString(string(x))
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return QuoteString(x.Format("2006-01-02 15:04:05.999999999Z07:00"))
	default:
		return QuoteString(fmt.Sprint(x))
	}
}
