package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// TimeWindow is a date range requested by the question. Bounds are SQL
// expressions that may hold ? placeholders for their args; an empty upper
// bound leaves the range open.
type TimeWindow struct {
	Label     string
	Lower     string
	LowerArgs []any
	Upper     string
	UpperArgs []any
}

// Predicate applies the window to a qualified date column.
func (w TimeWindow) Predicate(column string) sq.Sqlizer {
	parts := sq.And{sq.Expr(column+" >= "+w.Lower, w.LowerArgs...)}
	if w.Upper != "" {
		parts = append(parts, sq.Expr(column+" < "+w.Upper, w.UpperArgs...))
	}
	return parts
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

const (
	monthPattern    = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`
	textDatePattern = `(\d{1,2})(?:st|nd|rd|th)?\s+` + monthPattern + `,?\s+(\d{4})`
	numDatePattern  = `(\d{1,2})/(\d{1,2})/(\d{4})`
	anyDatePattern  = `(` + textDatePattern + `|` + numDatePattern + `)`
)

var (
	lastNPattern     = regexp.MustCompile(`\b(?:last|past|previous)\s+` + numberPattern + `\s+(day|week|month|year)s?\b`)
	lastUnitPattern  = regexp.MustCompile(`\b(?:last|past|previous)\s+(day|week|month|year)\b`)
	rangePattern     = regexp.MustCompile(`\b(?:from|between)\s+` + anyDatePattern + `\s+(?:to|and|till|until|-)\s+` + anyDatePattern)
	singleDateRegexp = regexp.MustCompile(anyDatePattern)
	textDateRegexp   = regexp.MustCompile(`^` + textDatePattern + `$`)
	numDateRegexp    = regexp.MustCompile(`^` + numDatePattern + `$`)
	relMonthPattern  = regexp.MustCompile(`\b` + monthPattern + `\s+(?:of\s+)?(last|previous|this)\s+year\b`)
	monthYearPattern = regexp.MustCompile(`\b` + monthPattern + `\b(?:\s*,?\s*(\d{4}))?`)
	mayContext       = regexp.MustCompile(`\b(?:in|of|for|during)\s+may\b|\bmay\s+\d{4}\b`)
	todayPattern     = regexp.MustCompile(`\btoday\b`)
	yesterdayPattern = regexp.MustCompile(`\byesterday\b`)
)

const sqlDate = "2006-01-02"

// ParseTimeWindow finds an explicit time window in lowercase text. It returns
// nil when the question does not ask for one.
func ParseTimeWindow(text string, now time.Time) *TimeWindow {
	if w := parseDateRange(text); w != nil {
		return w
	}
	if m := singleDateRegexp.FindString(text); m != "" {
		if d, ok := parseDate(m); ok {
			return dayWindow(d, "on "+d.Format(sqlDate))
		}
	}
	if m := relMonthPattern.FindStringSubmatch(text); m != nil {
		year := now.Year()
		if m[2] != "this" {
			year--
		}
		return calendarMonth(year, monthNames[m[1]])
	}
	if m := lastNPattern.FindStringSubmatch(text); m != nil {
		if n := parseCount(m[1]); n > 0 {
			return relativeWindow(n, m[2])
		}
	}
	if m := lastUnitPattern.FindStringSubmatch(text); m != nil {
		return relativeWindow(1, m[1])
	}
	switch {
	case strings.Contains(text, "this month"):
		return &TimeWindow{Label: "this month", Lower: "date_trunc('month', CURRENT_DATE)"}
	case strings.Contains(text, "this year"):
		return &TimeWindow{Label: "this year", Lower: "date_trunc('year', CURRENT_DATE)"}
	case todayPattern.MatchString(text):
		return &TimeWindow{Label: "today", Lower: "CURRENT_DATE", Upper: "CURRENT_DATE + INTERVAL '1 day'"}
	case yesterdayPattern.MatchString(text):
		return &TimeWindow{Label: "yesterday", Lower: "CURRENT_DATE - INTERVAL '1 day'", Upper: "CURRENT_DATE"}
	}
	return monthWindow(text, now)
}

// relativeWindow builds "last N units". Months and years are whole calendar
// periods ending before the current one; days and weeks roll from today.
func relativeWindow(n int, unit string) *TimeWindow {
	plural := unit + "s"
	label := fmt.Sprintf("last %d %s", n, plural)
	if n == 1 {
		label = "last " + unit
	}
	switch unit {
	case "month", "year":
		return &TimeWindow{
			Label: label,
			Lower: fmt.Sprintf("date_trunc('%s', CURRENT_DATE - INTERVAL '%d %s')", unit, n, intervalUnit(n, unit)),
			Upper: fmt.Sprintf("date_trunc('%s', CURRENT_DATE)", unit),
		}
	default:
		return &TimeWindow{
			Label: label,
			Lower: fmt.Sprintf("CURRENT_DATE - INTERVAL '%d %s'", n, intervalUnit(n, unit)),
		}
	}
}

func intervalUnit(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

func parseDateRange(text string) *TimeWindow {
	m := rangePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	// Group 1 is the whole first date; the second date starts after the
	// first date's own subgroups.
	first := m[1]
	second := m[1+1+3+3]
	start, ok := parseDate(first)
	if !ok {
		return nil
	}
	end, ok := parseDate(second)
	if !ok {
		return nil
	}
	if end.Before(start) {
		start, end = end, start
	}
	return &TimeWindow{
		Label:     fmt.Sprintf("from %s to %s", start.Format(sqlDate), end.Format(sqlDate)),
		Lower:     "CAST(? AS DATE)",
		LowerArgs: []any{start.Format(sqlDate)},
		Upper:     "CAST(? AS DATE) + INTERVAL '1 day'",
		UpperArgs: []any{end.Format(sqlDate)},
	}
}

func dayWindow(d time.Time, label string) *TimeWindow {
	return &TimeWindow{
		Label:     label,
		Lower:     "CAST(? AS DATE)",
		LowerArgs: []any{d.Format(sqlDate)},
		Upper:     "CAST(? AS DATE) + INTERVAL '1 day'",
		UpperArgs: []any{d.Format(sqlDate)},
	}
}

// parseDate accepts "15 March 2024", "15th mar, 2024" and "15/03/2024" (day first).
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := textDateRegexp.FindStringSubmatch(s); m != nil {
		return buildDate(m[3], monthNames[m[2]], m[1])
	}
	if m := numDateRegexp.FindStringSubmatch(s); m != nil {
		month, err := strconv.Atoi(m[2])
		if err != nil || month < 1 || month > 12 {
			return time.Time{}, false
		}
		return buildDate(m[3], time.Month(month), m[1])
	}
	return time.Time{}, false
}

func buildDate(yearStr string, month time.Month, dayStr string) (time.Time, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || month == 0 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || d.Month() != month {
		return time.Time{}, false
	}
	return d, true
}

// monthWindow handles "March" or "March 2024". Without a year, a month later
// than the current one means last year.
func monthWindow(text string, now time.Time) *TimeWindow {
	for _, m := range monthYearPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "may" && !mayContext.MatchString(text) {
			continue
		}
		if len(name) == 3 && name != "may" && m[2] == "" {
			// bare abbreviations like "mar" or "dec" are too ambiguous without a year
			continue
		}
		month := monthNames[name]
		year := now.Year()
		if m[2] != "" {
			y, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			year = y
		} else if month > now.Month() {
			year--
		}
		return calendarMonth(year, month)
	}
	return nil
}

func calendarMonth(year int, month time.Month) *TimeWindow {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return &TimeWindow{
		Label:     start.Format("January 2006"),
		Lower:     "CAST(? AS DATE)",
		LowerArgs: []any{start.Format(sqlDate)},
		Upper:     "CAST(? AS DATE)",
		UpperArgs: []any{end.Format(sqlDate)},
	}
}
