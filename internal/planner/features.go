package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"

	"salesql/internal/entity"
	"salesql/internal/salesmodel"
)

// MetricHint says whether the question asks for value or quantity.
type MetricHint int

const (
	MetricDefault MetricHint = iota
	MetricValue
	MetricQuantity
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

const numberPattern = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

var (
	wordSplitPattern = regexp.MustCompile(`[a-z0-9₹]+(?:-[a-z0-9]+)*`)
	topNPattern      = regexp.MustCompile(`\b(?:top|best|highest|leading)\s+` + numberPattern + `\b`)
	lastSalePattern  = regexp.MustCompile(`\b(?:last|latest|most recent|recent)\s+(?:sale|sold|order|purchase|bought|billing|bill|invoice|transaction)s?\b|\bwhen\s+(?:did|was)\b`)
)

var (
	growthWords        = toSet("growth", "grow", "growing", "grew", "mom", "m-o-m", "increase", "increased", "increasing", "jump", "surge")
	growthPhrases      = []string{"month over month", "month-over-month", "month on month", "month-on-month"}
	topWords           = toSet("top", "best", "highest", "leading", "biggest", "largest")
	productWords       = toSet("sku", "product", "item", "material", "brand", "pack")
	distributorWords   = toSet("distributor", "dealer")
	superstockistWords = toSet("superstockist", "stockist", "super-stockist", "ss")
	distinctWords      = toSet("distinct", "unique", "different")
	valueHintWords     = toSet("revenue", "value", "amount", "₹", "rs", "inr", "worth", "rupee")
	quantityHintWords  = toSet("qty", "quantity", "unit", "piece", "pcs", "case", "volume")
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Features are the keyword signals extracted from one question.
type Features struct {
	Text          string
	Growth        bool
	Top           bool
	TopN          int
	Product       bool
	Distributor   bool
	Superstockist bool
	Distinct      bool
	LastSale      bool
	GeoWord       string
	Metric        MetricHint
	Threshold     *Threshold
}

// ExtractFeatures lowercases and folds the question, singularizes its words
// and records the keyword signals intents test for.
func ExtractFeatures(question string) Features {
	text := entity.Fold(entity.EffectiveText(question))
	words := make(map[string]struct{})
	for _, w := range wordSplitPattern.FindAllString(text, -1) {
		parts := []string{w}
		if strings.Contains(w, "-") {
			parts = append(parts, strings.Split(w, "-")...)
		}
		for _, part := range parts {
			words[part] = struct{}{}
			words[inflection.Singular(part)] = struct{}{}
		}
	}
	has := func(set map[string]struct{}) bool {
		for w := range set {
			if _, ok := words[w]; ok {
				return true
			}
		}
		return false
	}

	f := Features{
		Text:          text,
		Growth:        has(growthWords) || containsAny(text, growthPhrases...),
		Top:           has(topWords),
		Product:       has(productWords),
		Distributor:   has(distributorWords),
		Superstockist: has(superstockistWords) || strings.Contains(text, "super stockist"),
		Distinct:      has(distinctWords),
		LastSale:      lastSalePattern.MatchString(text),
		Threshold:     ParseThreshold(text),
	}
	if m := topNPattern.FindStringSubmatch(text); m != nil {
		f.TopN = parseCount(m[1])
	}
	for _, geo := range salesmodel.GeoWordOrder {
		if _, ok := words[geo]; ok {
			f.GeoWord = geo
			break
		}
	}
	switch {
	case has(valueHintWords) || strings.Contains(text, "₹"):
		f.Metric = MetricValue
	case has(quantityHintWords):
		f.Metric = MetricQuantity
	}
	return f
}

// Actor reports whether the question names an actor kind.
func (f Features) Actor() bool {
	return f.Distributor || f.Superstockist
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
