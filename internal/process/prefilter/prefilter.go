// Package prefilter screens raw messages before any LLM spend: a cheap
// quality gate drops junk, a keyword gate drops messages unrelated to the
// tenant's criteria.
package prefilter

import (
	"strings"
	"unicode/utf8"

	"github.com/leadscan/leadscan/internal/core/domain"
)

const (
	// minMessageRunes is the minimum trimmed text length worth classifying.
	minMessageRunes = 5

	// maxCharRun rejects spam padding like "!!!!!!!!!!!".
	maxCharRun = 10
)

// Filter holds the per-tenant keyword gate compiled from criteria text.
type Filter struct {
	keywords []string
}

// New compiles a filter from the tenant's criteria text. With no usable
// keywords the gate stays open and only the quality checks apply.
func New(criteriaText string) *Filter {
	return &Filter{keywords: ExtractKeywords(criteriaText)}
}

// Check returns whether the message should proceed to classification, and
// the reject reason when it should not.
func (f *Filter) Check(m domain.Message) (bool, domain.RejectReason) {
	text := strings.TrimSpace(m.Text)

	if utf8.RuneCountInString(text) < minMessageRunes {
		return false, domain.RejectQuality
	}

	if longestRun(text) > maxCharRun {
		return false, domain.RejectQuality
	}

	if len(f.keywords) == 0 {
		return true, ""
	}

	// The author bio and chat name count toward keyword relevance: a short
	// message in a "hire a developer" chat is still worth classifying.
	haystack := fold(text + " " + m.AuthorBio + " " + m.ChatName)
	for _, kw := range f.keywords {
		if strings.Contains(haystack, kw) {
			return true, ""
		}

		if alt, ok := transliterate(kw); ok && strings.Contains(haystack, alt) {
			return true, ""
		}
	}

	return false, domain.RejectKeyword
}

// longestRun returns the length of the longest run of one repeated rune.
func longestRun(s string) int {
	var (
		prev    rune
		run     int
		longest int
	)

	for _, r := range s {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}

		if run > longest {
			longest = run
		}
	}

	return longest
}
