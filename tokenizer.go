package termsuggest

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped before fragments are generated.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "s": {}, "such": {},
	"t": {}, "that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// foldPool holds accent-stripping transformers; a transform chain is stateful
// and cannot be shared between goroutines.
var foldPool = sync.Pool{
	New: func() interface{} {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// letterFolds covers letters with no canonical decomposition.
var letterFolds = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "œ", "oe", "þ", "th",
	"ø", "o", "ł", "l", "đ", "d", "ð", "d", "ı", "i",
)

// Normalize lower-cases s and folds diacritics to their base letters.
// It does not split, trim or drop stopwords.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if isASCII(s) {
		return s
	}
	t := foldPool.Get().(transform.Transformer)
	defer foldPool.Put(t)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return letterFolds.Replace(folded)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// PrefixTokenizer turns a word into front-anchored prefix fragments.
// It is a pure function of its input and safe for concurrent use.
type PrefixTokenizer struct {
	maxGram int
}

// NewPrefixTokenizer returns a tokenizer emitting fragments of up to maxGram runes.
func NewPrefixTokenizer(maxGram int) *PrefixTokenizer {
	if maxGram <= 0 {
		maxGram = MaxGramLength
	}
	return &PrefixTokenizer{maxGram: maxGram}
}

// Tokenize splits word into UAX#29 word tokens, normalizes each, drops stopwords
// and emits prefixes of length 1 through min(len, maxGram) for every survivor.
//
// Example:
//
//	NewPrefixTokenizer(20).Tokenize("Sony") // ["s", "so", "son", "sony"]
func (t *PrefixTokenizer) Tokenize(word string) []string {
	var fragments []string
	for _, tok := range splitWords(word) {
		tok = Normalize(tok)
		if tok == "" {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		fragments = appendPrefixes(fragments, tok, t.maxGram)
	}
	return fragments
}

// splitWords returns the UAX#29 word segments of s that contain a letter or digit.
func splitWords(s string) []string {
	seg := words.FromString(s)
	var tokens []string
	for seg.Next() {
		v := seg.Value()
		if strings.IndexFunc(v, isAlnum) >= 0 {
			tokens = append(tokens, v)
		}
	}
	return tokens
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// appendPrefixes appends the prefixes of tok, measured in runes, up to max of them.
func appendPrefixes(dst []string, tok string, max int) []string {
	n := 0
	for i := range tok {
		if i == 0 {
			continue
		}
		dst = append(dst, tok[:i])
		n++
		if n == max {
			return dst
		}
	}
	return append(dst, tok)
}
