package guardrails

import (
	"strings"
	"unicode"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// minTokenLen is the length a token must exceed to count in phrase matching.
const minTokenLen = 3

// Matcher decides whether text matches an exclusion phrase of a given kind.
// It returns the fragment to anchor the audit context on.
type Matcher interface {
	Match(text string, kind ucr.ExclusionKind, phrase string) (anchor string, ok bool)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(text string, kind ucr.ExclusionKind, phrase string) (string, bool)

// Match implements Matcher.
func (f MatcherFunc) Match(text string, kind ucr.ExclusionKind, phrase string) (string, bool) {
	return f(text, kind, phrase)
}

// TermMatcher is the default matcher for both exact and semantic entries.
// Use cases match by token overlap, every other kind by substring.
type TermMatcher struct{}

// Match implements Matcher.
func (TermMatcher) Match(text string, kind ucr.ExclusionKind, phrase string) (string, bool) {
	if kind == ucr.KindUseCase {
		return MatchTokens(text, phrase)
	}
	return MatchSubstring(text, phrase)
}

// MatchSubstring matches when phrase occurs in text, ignoring case.
func MatchSubstring(text, phrase string) (string, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(phrase)) {
		return phrase, true
	}
	return "", false
}

// MatchTokens matches when the whole phrase occurs in text, when at least two
// of its tokens longer than three characters occur in text, or when the
// phrase is a single such token that occurs verbatim.
func MatchTokens(text, phrase string) (string, bool) {
	if anchor, ok := MatchSubstring(text, phrase); ok {
		return anchor, true
	}

	lower := strings.ToLower(text)
	tokens := significantTokens(phrase)
	var found []string
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			found = append(found, tok)
		}
	}
	if len(found) >= 2 {
		return found[0], true
	}
	return "", false
}

// significantTokens splits phrase into lowercase words longer than
// minTokenLen, without duplicates.
func significantTokens(phrase string) []string {
	words := strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) <= minTokenLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
