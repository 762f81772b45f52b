package entity

import (
	"strings"
	"unicode/utf8"
)

// Default similarity thresholds.
const (
	DefaultShortTokenRatio = 0.92
	DefaultLongTokenRatio  = 0.90
	shortTokenLength       = 4
)

// Matcher scores a token against a candidate value.
type Matcher struct {
	ShortTokenRatio float64
	LongTokenRatio  float64
}

// Score returns the match confidence of token against value. Exact word and
// substring matches score 1.0; fuzzy word matches score their similarity ratio.
// Both inputs are folded before comparison.
func (m Matcher) Score(token, value string) (float64, bool) {
	t := Fold(token)
	c := Fold(value)
	if t == "" || strings.TrimSpace(c) == "" {
		return 0, false
	}
	words := valueWords(c)

	if utf8.RuneCountInString(t) < shortTokenLength {
		best := 0.0
		for _, w := range words {
			if w == t {
				return 1, true
			}
			if r := Ratio(t, w); r >= m.shortRatio() && r > best {
				best = r
			}
		}
		return best, best > 0
	}

	if strings.Contains(c, t) {
		return 1, true
	}
	best := 0.0
	for _, w := range words {
		if r := Ratio(t, w); r >= m.longRatio() && r > best {
			best = r
		}
	}
	return best, best > 0
}

func (m Matcher) shortRatio() float64 {
	if m.ShortTokenRatio <= 0 {
		return DefaultShortTokenRatio
	}
	return m.ShortTokenRatio
}

func (m Matcher) longRatio() float64 {
	if m.LongTokenRatio <= 0 {
		return DefaultLongTokenRatio
	}
	return m.LongTokenRatio
}
