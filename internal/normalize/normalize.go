// Package normalize provides the Unicode normalization pipeline used before
// pattern matching on tool descriptions and prompt text. Tool-poisoning and
// prompt-injection patterns match on scrubbed text so that zero-width
// characters and cross-script homoglyphs cannot hide an instruction.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// InvisibleRanges covers characters stripped before matching: zero-width
// characters, bidi controls, variation selectors, and the Tags block.
var InvisibleRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00AD, Hi: 0x00AD, Stride: 1}, // soft hyphen
		{Lo: 0x200B, Hi: 0x200F, Stride: 1}, // zero-width space through RTL mark
		{Lo: 0x202A, Hi: 0x202E, Stride: 1}, // bidi embedding controls
		{Lo: 0x2060, Hi: 0x2064, Stride: 1}, // word joiner through invisible plus
		{Lo: 0x2066, Hi: 0x2069, Stride: 1}, // bidi isolate controls
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors 1-16
		{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1}, // BOM / ZWNBSP
	},
	R32: []unicode.Range32{
		{Lo: 0xE0000, Hi: 0xE007F, Stride: 1}, // Tags block
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1}, // variation selectors supplement
	},
}

// confusableMap folds non-Latin characters that render identically to Latin
// letters. NFKC does not fold cross-script confusables, so Cyrillic а would
// otherwise slip past English-language injection patterns.
var confusableMap = map[rune]rune{
	// Cyrillic
	'А': 'A', 'В': 'B', 'С': 'C', 'Е': 'E',
	'Н': 'H', 'І': 'I', 'К': 'K', 'М': 'M',
	'О': 'O', 'Р': 'P', 'Т': 'T', 'Х': 'X',
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p',
	'с': 'c', 'у': 'y', 'х': 'x', 'і': 'i',

	// Greek
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H',
	'Ι': 'I', 'Κ': 'K', 'Μ': 'M', 'Ο': 'O',
	'Ρ': 'P', 'Τ': 'T', 'α': 'a', 'ε': 'e',
	'ι': 'i', 'ο': 'o',
}

// StripInvisible removes invisible and bidi-control characters.
func StripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(InvisibleRanges, r) {
			return -1
		}
		return r
	}, s)
}

// FoldConfusables maps cross-script homoglyphs to their Latin equivalents.
func FoldConfusables(s string) string {
	return strings.Map(func(r rune) rune {
		if folded, ok := confusableMap[r]; ok {
			return folded
		}
		return r
	}, s)
}

// Scrub runs the full pipeline: strip invisibles, fold confusables, then
// apply NFKC. Pattern tables match against the scrubbed text.
func Scrub(s string) string {
	return norm.NFKC.String(FoldConfusables(StripInvisible(s)))
}
