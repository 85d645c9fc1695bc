package faq

import (
	"strings"
	"unicode"

	"github.com/garyellow/visadesk/internal/stringutil"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"how": true, "i": true, "in": true, "is": true, "it": true, "me": true,
	"my": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"we": true, "what": true, "which": true, "will": true, "with": true,
	"you": true, "your": true, "there": true, "this": true, "that": true,
	"please": true, "about": true, "must": true, "after": true,
}

// tokenize lowercases, folds diacritics and drops stop words. Tokens are
// maximal runs of letters and digits; a trailing plural "s" is removed from
// words longer than three letters.
func tokenize(text string) []string {
	words := strings.FieldsFunc(stringutil.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = strings.TrimSuffix(w, "s")
		}
		tokens = append(tokens, w)
	}
	return tokens
}
