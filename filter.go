package termsuggest

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// forbiddenChars never appear in an indexable word.
const forbiddenChars = `<>/\@&`

// nonTermPatterns mark file names and HTML entity residue.
var nonTermPatterns = []string{
	".png", ".jpeg", ".jpg", ".gif", ".tif", ".ico", ".bmp", ".aspx", "&amp",
}

// TermFilter decides whether a raw candidate word is eligible for indexing.
// It holds no mutable state and is safe for concurrent use.
type TermFilter struct {
	minLength int
	maxLength int
}

// NewTermFilter returns a filter accepting words whose rune length is within [minLength, maxLength].
func NewTermFilter(minLength, maxLength int) *TermFilter {
	return &TermFilter{minLength: minLength, maxLength: maxLength}
}

// IsIndexable reports whether word passes every check. A word failing any
// single check is rejected.
func (f *TermFilter) IsIndexable(word string) bool {
	n := utf8.RuneCountInString(word)
	if n < f.minLength || n > f.maxLength {
		return false
	}
	if strings.ContainsAny(word, forbiddenChars) {
		return false
	}
	if looksLikeFile(word) {
		return false
	}
	if isNumber(word) || isGUID(word) {
		return false
	}
	return true
}

func looksLikeFile(word string) bool {
	for _, p := range nonTermPatterns {
		if strings.Contains(word, p) {
			return true
		}
	}
	return false
}

// isNumber reports whether word parses fully as a floating-point number,
// with or without thousands separators.
func isNumber(word string) bool {
	if parsesAsFloat(word) {
		return true
	}
	if strings.Contains(word, ",") {
		return parsesAsFloat(strings.ReplaceAll(word, ",", ""))
	}
	return false
}

func parsesAsFloat(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil || errors.Is(err, strconv.ErrRange)
}

// isGUID accepts the plain, hyphenated, braced, parenthesized and urn forms.
func isGUID(word string) bool {
	if len(word) == 38 && word[0] == '(' && word[37] == ')' {
		word = word[1:37]
	}
	_, err := uuid.Parse(word)
	return err == nil
}
