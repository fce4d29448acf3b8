package prefilter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// minKeywordRunes drops tokens too short to be meaningful gate terms.
const minKeywordRunes = 4

// stopWords are common English and Russian words excluded from the keyword
// gate so criteria prose does not open the gate for everything.
var stopWords = map[string]struct{}{
	"need": {}, "needs": {}, "want": {}, "wants": {}, "looking": {},
	"with": {}, "that": {}, "this": {}, "from": {}, "have": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "about": {},
	"someone": {}, "anyone": {}, "people": {}, "person": {},
	"help": {}, "please": {}, "thanks": {},
	"нужен": {}, "нужна": {}, "нужно": {}, "нужны": {},
	"хочу": {}, "ищем": {}, "кого": {},
	"чтобы": {}, "который": {}, "которая": {}, "помощь": {},
	"есть": {}, "надо": {}, "очень": {}, "может": {},
}

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(s)
}

// ExtractKeywords tokenizes criteria text into the gate's keyword set:
// case-folded, stop-words removed, short tokens dropped, duplicates
// collapsed.
func ExtractKeywords(criteriaText string) []string {
	tokens := strings.FieldsFunc(fold(criteriaText), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))

	var keywords []string

	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minKeywordRunes {
			continue
		}

		if _, stop := stopWords[tok]; stop {
			continue
		}

		if _, dup := seen[tok]; dup {
			continue
		}

		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}

	return keywords
}
