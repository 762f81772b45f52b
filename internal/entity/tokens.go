package entity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	userQuestionPattern = regexp.MustCompile(`(?is)USER QUESTION:\s*(.*)`)
	tokenPattern        = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_\-]+`)
	wordPattern         = regexp.MustCompile(`[a-z0-9]+`)
)

// MinTokenLength is the shortest token kept for matching.
const MinTokenLength = 3

// stopWords never identify an entity.
var stopWords = toSet(
	// business words
	"total", "overall", "sales", "sale", "sold", "amount", "value", "revenue", "worth", "inr",
	"qty", "quantity", "quantities", "units", "unit", "pieces", "pcs", "cases", "volume",
	"bought", "buy", "purchased", "purchase", "orders", "order", "billed", "invoiced",
	"primary", "shipment", "shipments", "dispatch", "secondary", "delivery", "invoice", "sell-in",
	"distributor", "distributors", "superstockist", "superstockists", "stockist", "stockists", "super",
	"sku", "skus", "product", "products", "item", "items", "brand", "brands",
	"area", "areas", "state", "states", "region", "regions", "city", "cities", "district", "districts", "zone", "zones",
	// filler and pronouns
	"of", "for", "in", "the", "and", "or", "to", "from", "by", "on", "at", "an", "is", "are", "was", "were",
	"please", "pls", "plz", "clarify", "your", "you", "me", "kindly", "my", "what", "which", "who", "whom", "whose",
	"has", "have", "had", "with", "per", "across", "each", "all", "any", "how", "many", "much", "did", "does",
	"this", "that", "these", "those", "show", "give", "tell", "find", "list", "get", "wise",
	// time words
	"last", "month", "months", "week", "weeks", "day", "days", "year", "years", "today", "yesterday",
	"date", "dates", "when", "latest", "recent", "recently", "till", "until", "since", "between", "during",
	"jan", "january", "feb", "february", "mar", "march", "apr", "april", "may", "jun", "june",
	"jul", "july", "aug", "august", "sep", "sept", "september", "oct", "october", "nov", "november", "dec", "december",
	"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "eleven", "twelve",
	// ranking, growth and comparison words
	"top", "best", "highest", "most", "least", "lowest", "bottom", "rank", "ranking",
	"mom", "m-o-m", "growth", "growing", "grew", "increase", "decrease", "decline", "trend", "trends",
	"less", "more", "greater", "fewer", "than", "under", "below", "above", "over", "equal", "exactly",
	"distinct", "unique", "count", "number",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether a lowercase word is ignored by the tokenizer.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// EffectiveText returns the text after a "USER QUESTION:" marker, or the whole
// input when no marker is present.
func EffectiveText(s string) string {
	if m := userQuestionPattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokens extracts candidate entity tokens from a question: folded, at least
// MinTokenLength long, not a stop word, deduplicated in first-seen order.
func Tokens(text string) []string {
	words := tokenPattern.FindAllString(Fold(text), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < MinTokenLength || IsStopWord(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func valueWords(folded string) []string {
	return wordPattern.FindAllString(folded, -1)
}
