package guardrails

import (
	"strings"
	"unicode"
)

// contextRadius is how many characters ExtractContext keeps on each side.
const contextRadius = 30

// ExtractContext returns up to 30 characters either side of the first
// case-insensitive occurrence of term in text, or "" when term is absent.
func ExtractContext(text, term string) string {
	if term == "" {
		return ""
	}
	runes := []rune(text)
	needle := []rune(strings.ToLower(term))
	idx := indexFold(runes, needle)
	if idx < 0 {
		return ""
	}

	start := max(0, idx-contextRadius)
	end := min(len(runes), idx+len(needle)+contextRadius)
	return strings.TrimSpace(string(runes[start:end]))
}

// indexFold finds needle (already lowercase) in haystack ignoring case, in
// rune offsets.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
