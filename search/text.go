package search

import (
	"strings"
	"unicode"
)

// stopWords are ignored when checking for verbatim matches.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "and": {}, "in": {}, "that": {}, "have": {}, "it": {},
	"for": {}, "not": {}, "on": {}, "with": {}, "as": {}, "you": {}, "do": {},
	"at": {}, "this": {}, "but": {}, "by": {}, "from": {}, "or": {}, "what": {},
}

// terms lowercases text, splits it on anything that is not a letter or
// digit and drops stop words.
func terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			out = append(out, w)
		}
	}
	return out
}

// containsAllQueryWords reports whether every query term appears in content.
// A query made only of stop words never matches.
func containsAllQueryWords(content, query string) bool {
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return false
	}
	present := make(map[string]struct{})
	for _, w := range terms(content) {
		present[w] = struct{}{}
	}
	for _, w := range queryTerms {
		if _, ok := present[w]; !ok {
			return false
		}
	}
	return true
}
