// Package segment splits answer text into speakable sentences for
// per-sentence speech synthesis.
package segment

import (
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder runes from the Unicode private use area stand in for dots that
// must not be read as sentence boundaries. They cannot occur in real text
// coming out of the generation service.
const (
	decimalDotMark = '\ue001'
	listDotMark    = '\ue002'
)

var (
	// 3.14 style decimals: digits, dot, digits.
	decimalDotPattern = regexp.MustCompile(`(\d+)\.\s*(\d+)`)
	// "1. " style ordered-list markers: digits, dot, whitespace.
	listDotPattern = regexp.MustCompile(`(\d+)\.\s+`)
)

// Sentences returns a lazy, finite, restartable sequence of trimmed,
// non-empty sentences, each terminated by one of ". ! ?". Decimal numbers
// and ordered-list markers are protected from being mis-split. When the
// input has no terminal punctuation at all, the whole input is one sentence.
func Sentences(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		masked := maskDots(text)
		emitted := false
		start := 0
		i := 0
		for i < len(masked) {
			if !isTerminal(masked[i]) {
				i++
				continue
			}
			j := i
			for j < len(masked) && isTerminal(masked[j]) {
				j++
			}
			// A terminal run only ends a sentence when followed by
			// whitespace or end of input.
			if j < len(masked) && !spaceAt(masked, j) {
				i = j
				continue
			}
			if s := restore(masked[start:j]); s != "" {
				emitted = true
				if !yield(s) {
					return
				}
			}
			start = j
			i = j
		}
		if !emitted {
			if s := restore(masked[start:]); s != "" {
				yield(s)
			}
		}
	}
}

// Split collects Sentences into a slice.
func Split(text string) []string {
	var out []string
	for s := range Sentences(text) {
		out = append(out, s)
	}
	return out
}

func maskDots(text string) string {
	text = decimalDotPattern.ReplaceAllString(text, "${1}"+string(decimalDotMark)+"${2}")
	return listDotPattern.ReplaceAllString(text, "${1}"+string(listDotMark)+" ")
}

func restore(masked string) string {
	masked = strings.ReplaceAll(masked, string(decimalDotMark), ".")
	masked = strings.ReplaceAll(masked, string(listDotMark), ".")
	return strings.TrimSpace(masked)
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func spaceAt(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r)
}
