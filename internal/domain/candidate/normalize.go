package candidate

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxTextLength bounds a normalized candidate text, in runes.
const MaxTextLength = 255

var upperCaser = cases.Upper(language.Und)

// Normalize returns the deduplication key for text: NFKC-normalized,
// trimmed, internal whitespace collapsed to single spaces, upper-cased.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = strings.Join(strings.Fields(s), " ")
	return upperCaser.String(s)
}

// NormalizeValid normalizes text and checks it is usable as a candidate.
func NormalizeValid(text string) (string, error) {
	n := Normalize(text)
	if n == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(n) > MaxTextLength {
		return "", ErrTextTooLong
	}
	return n, nil
}

// Same reports whether a and b collide after normalization.
func Same(a, b string) bool { return Normalize(a) == Normalize(b) }

// Similarity returns 1 - levenshtein(a, b)/maxRuneLen over normalized texts,
// in [0, 1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 1.0
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	sim := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}
