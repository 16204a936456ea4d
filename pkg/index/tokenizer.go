// Package index implements the inverted (BM25) and vector (flat cosine)
// indexes, plus the tokenizer they share. No library in the dependency
// set offers a text tokenizer or BM25 scorer, so both are built on
// unicode/strings from the standard library, the only suitable option
// for locale-independent case folding (see DESIGN.md).
package index

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase terms: a deterministic, pure,
// locale-independent tokenizer. ASCII letters fold via a simple
// lower-case mapping; non-ASCII runes use Unicode default case folding
// via unicode.ToLower, and word boundaries are any rune that is neither
// a letter nor a digit.
func Tokenize(text string) []string {
	var terms []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// TermFreq counts term occurrences in terms.
func TermFreq(terms []string) map[string]int {
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return tf
}
