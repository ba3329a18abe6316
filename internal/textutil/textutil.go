// Package textutil provides token-level text utilities: tokenization,
// case folding and the lexical shape flags fed to the tagger.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var tokenizeRe = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\s\p{L}\p{N}_]`)

// Tokenize splits raw text into word tokens and single punctuation tokens.
func Tokenize(text string) []string {
	return tokenizeRe.FindAllString(text, -1)
}

var (
	newlineRe    = regexp.MustCompile(`[\n\r]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// NormalizeWhitespaces replaces newlines and multiple whitespace with a single space.
func NormalizeWhitespaces(text string) string {
	text = newlineRe.ReplaceAllString(text, " ")
	return multiSpaceRe.ReplaceAllString(text, " ")
}

var lowerCaser = cases.Lower(language.Und)

// Lower returns the Unicode lower-case form of a token, used as the word
// vocabulary key.
func Lower(token string) string {
	return lowerCaser.String(token)
}

// IsBlank reports whether token is empty or whitespace only.
func IsBlank(token string) bool {
	return strings.TrimSpace(token) == ""
}

// EnrichDim is the number of lexical flags produced by Enrich.
const EnrichDim = 7

// Enrich returns the lexical flags of a case-preserved token in the order
// alnum, numeric, alpha, digit, lower, title, ascii.
func Enrich(token string) [EnrichDim]float64 {
	flags := [EnrichDim]bool{
		IsAlnum(token),
		IsNumeric(token),
		IsAlpha(token),
		IsDigit(token),
		IsLower(token),
		IsTitle(token),
		IsASCII(token),
	}
	var out [EnrichDim]float64
	for i, f := range flags {
		if f {
			out[i] = 1
		}
	}
	return out
}

func all(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// IsAlnum reports whether s is non-empty and every rune is a letter or number.
func IsAlnum(s string) bool {
	return all(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) })
}

// IsNumeric reports whether s is non-empty and every rune is a number of any kind.
func IsNumeric(s string) bool {
	return all(s, unicode.IsNumber)
}

// IsAlpha reports whether s is non-empty and every rune is a letter.
func IsAlpha(s string) bool {
	return all(s, unicode.IsLetter)
}

// digitSigns holds the runes with Numeric_Type=Digit that are not decimal
// digits: superscripts, subscripts, circled and parenthesized digits and a
// few historic scripts. The unicode package exposes no numeric type.
var digitSigns = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00b2, Hi: 0x00b3, Stride: 1},
		{Lo: 0x00b9, Hi: 0x00b9, Stride: 1},
		{Lo: 0x1369, Hi: 0x1371, Stride: 1},
		{Lo: 0x19da, Hi: 0x19da, Stride: 1},
		{Lo: 0x2070, Hi: 0x2070, Stride: 1},
		{Lo: 0x2074, Hi: 0x2079, Stride: 1},
		{Lo: 0x2080, Hi: 0x2089, Stride: 1},
		{Lo: 0x2460, Hi: 0x2468, Stride: 1},
		{Lo: 0x2474, Hi: 0x247c, Stride: 1},
		{Lo: 0x2488, Hi: 0x2490, Stride: 1},
		{Lo: 0x24ea, Hi: 0x24ea, Stride: 1},
		{Lo: 0x24f5, Hi: 0x24fd, Stride: 1},
		{Lo: 0x24ff, Hi: 0x24ff, Stride: 1},
		{Lo: 0x2776, Hi: 0x277e, Stride: 1},
		{Lo: 0x2780, Hi: 0x2788, Stride: 1},
		{Lo: 0x278a, Hi: 0x2792, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x10a40, Hi: 0x10a43, Stride: 1},
		{Lo: 0x10e60, Hi: 0x10e68, Stride: 1},
		{Lo: 0x11052, Hi: 0x1105a, Stride: 1},
		{Lo: 0x1f100, Hi: 0x1f10a, Stride: 1},
	},
	LatinOffset: 2,
}

// IsDigit reports whether s is non-empty and every rune is a digit: a decimal
// digit or one of digitSigns, such as "²".
func IsDigit(s string) bool {
	return all(s, func(r rune) bool {
		return unicode.IsDigit(r) || unicode.Is(digitSigns, r)
	})
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}

// IsLower reports whether s has at least one cased rune and all cased runes
// are lower case.
func IsLower(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			return false
		}
		if unicode.IsLower(r) {
			cased = true
		}
	}
	return cased
}

// IsTitle reports whether s is title-cased: upper-case runes only follow
// uncased runes, lower-case runes only follow cased ones, and at least one
// rune is cased.
func IsTitle(s string) bool {
	cased, prevCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}

// IsASCII reports whether every rune is in the ASCII range. The empty string
// is ASCII.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
