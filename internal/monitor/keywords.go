package monitor

import (
	"strings"
	"unicode"
)

// KeywordMatcher recognizes distress phrases in transcribed speech. Matching
// is case-insensitive and on whole words.
type KeywordMatcher struct {
	phrases []string
}

func NewKeywordMatcher(phrases []string) *KeywordMatcher {
	m := &KeywordMatcher{}
	for _, p := range phrases {
		if n := normalizePhrase(p); n != "" {
			m.phrases = append(m.phrases, n)
		}
	}
	return m
}

// Match returns the first configured phrase found in text.
func (m *KeywordMatcher) Match(text string) (string, bool) {
	norm := " " + normalizePhrase(text) + " "
	for _, p := range m.phrases {
		if strings.Contains(norm, " "+p+" ") {
			return p, true
		}
	}
	return "", false
}

func normalizePhrase(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
