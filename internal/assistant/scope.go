package assistant

import (
	"regexp"
	"strings"

	"salesql/internal/entity"
)

// OutOfScopeHint is returned for greetings and questions unrelated to sales.
const OutOfScopeHint = `Try a sales question like: "Sales of Bhujia in the last 3 months."`

var (
	greetingPattern = regexp.MustCompile(`^(hi|hello|hey|hlo|good\s*(morning|afternoon|evening)|what'?s up|how are you)\b`)
	nonDataPattern  = regexp.MustCompile(`\b(sing|dance|tell me a joke|who are you|what is your name|do you love me|song|movie|film|lyrics)\b`)
)

// businessTerms are substrings that mark a question as being about sales data.
var businessTerms = []string{
	"sale", "sold", "sell", "invoice", "quantity", "qty", "revenue", "amount",
	"sku", "product", "pack", "material", "stock", "inventory", "order", "bill",
	"distributor", "dealer", "super stockist", "superstockist", "super_stockist",
	"shipment", "dispatch", "primary", "secondary", "bought", "purchase",
	"region", "zone", "state", "city", "district", "area",
	"month", "year", "week", "volume", "value", "price", "mrp",
	"top", "growth", "mom", "trend", "total",
}

// OutOfScope reports whether a question should get the canned hint instead
// of a query.
func OutOfScope(question string) bool {
	text := strings.TrimSpace(entity.Fold(entity.EffectiveText(question)))
	if text == "" {
		return true
	}
	if greetingPattern.MatchString(text) || nonDataPattern.MatchString(text) {
		return true
	}
	for _, term := range businessTerms {
		if strings.Contains(text, term) {
			return false
		}
	}
	return true
}
