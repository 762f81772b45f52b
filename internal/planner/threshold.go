package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// Threshold is a numeric comparison requested by the question.
type Threshold struct {
	Op    string
	Value float64
}

// Literal renders the threshold value as a SQL numeric literal.
func (t Threshold) Literal() string {
	return strconv.FormatFloat(t.Value, 'f', -1, 64)
}

type thresholdRule struct {
	op      string
	pattern *regexp.Regexp
}

// Grouped numbers ("10,000", "1,00,000") keep their commas until parsing.
const thresholdNumber = `\s*((?:\d{1,3}(?:,\d{2,3})+|\d+)(?:\.\d+)?)(\s*(?:day|week|month|year)s?\b)?`

// Rules are checked in order; the two-character symbols come before < > =.
var thresholdRules = []thresholdRule{
	{op: ">=", pattern: regexp.MustCompile(`(?:\bat\s+least\b|>=)` + thresholdNumber)},
	{op: "<=", pattern: regexp.MustCompile(`(?:\bat\s+most\b|<=)` + thresholdNumber)},
	{op: "<", pattern: regexp.MustCompile(`(?:\bless\s+than\b|\bfewer\s+than\b|\bunder\b|\bbelow\b|<)` + thresholdNumber)},
	{op: ">", pattern: regexp.MustCompile(`(?:\bgreater\s+than\b|\bmore\s+than\b|\bover\b|\babove\b|>)` + thresholdNumber)},
	{op: "=", pattern: regexp.MustCompile(`(?:\bequal\s+to\b|\bexactly\b|=)` + thresholdNumber)},
}

// ParseThreshold finds the first comparison phrase followed by a number in
// lowercase text. A number followed by a time unit ("over 3 months") is not
// a threshold.
func ParseThreshold(text string) *Threshold {
	for _, rule := range thresholdRules {
		for _, m := range rule.pattern.FindAllStringSubmatch(text, -1) {
			if m[2] != "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err != nil {
				continue
			}
			return &Threshold{Op: rule.op, Value: v}
		}
	}
	return nil
}
