// Package postag annotates tokens with Penn Treebank part-of-speech tags.
package postag

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/happyhackingspace/nerd/internal/textutil"
)

// Placeholder replaces blank tokens before they reach an Annotator.
const Placeholder = "<OOS>"

// Annotator returns one POS tag per token.
type Annotator interface {
	Tag(tokens []string) []string
}

// TagAll annotates every sentence, substituting Placeholder for blank tokens.
func TagAll(a Annotator, sentences [][]string) [][]string {
	out := make([][]string, len(sentences))
	buf := make([]string, 0, 64)
	for i, tokens := range sentences {
		buf = buf[:0]
		for _, tok := range tokens {
			if textutil.IsBlank(tok) {
				tok = Placeholder
			}
			buf = append(buf, tok)
		}
		out[i] = a.Tag(buf)
	}
	return out
}

var lexicon = map[string]string{
	"a": "DT", "an": "DT", "the": "DT", "this": "DT", "that": "DT", "these": "DT", "those": "DT",
	"every": "DT", "each": "DT", "some": "DT", "any": "DT", "no": "DT", "all": "DT",
	"and": "CC", "or": "CC", "but": "CC", "nor": "CC", "yet": "CC",
	"in": "IN", "on": "IN", "at": "IN", "by": "IN", "for": "IN", "from": "IN", "with": "IN",
	"of": "IN", "about": "IN", "into": "IN", "over": "IN", "under": "IN", "after": "IN",
	"before": "IN", "between": "IN", "through": "IN", "during": "IN", "against": "IN",
	"because": "IN", "if": "IN", "while": "IN", "since": "IN", "until": "IN", "near": "IN",
	"to": "TO",
	"i":  "PRP", "you": "PRP", "he": "PRP", "she": "PRP", "it": "PRP", "we": "PRP", "they": "PRP",
	"me": "PRP", "him": "PRP", "her": "PRP", "us": "PRP", "them": "PRP",
	"my": "PRP$", "your": "PRP$", "his": "PRP$", "its": "PRP$", "our": "PRP$", "their": "PRP$",
	"who": "WP", "what": "WP", "whom": "WP", "which": "WDT", "whose": "WP$",
	"when": "WRB", "where": "WRB", "why": "WRB", "how": "WRB",
	"can": "MD", "could": "MD", "will": "MD", "would": "MD", "shall": "MD", "should": "MD",
	"may": "MD", "might": "MD", "must": "MD",
	"is": "VBZ", "has": "VBZ", "does": "VBZ",
	"are": "VBP", "am": "VBP", "have": "VBP", "do": "VBP",
	"was": "VBD", "were": "VBD", "had": "VBD", "did": "VBD",
	"be": "VB", "been": "VBN", "being": "VBG",
	"not": "RB", "very": "RB", "also": "RB", "too": "RB", "so": "RB", "then": "RB",
	"there":     "EX",
	Placeholder: "SYM",
}

var punctuation = map[string]string{
	".": ".", "!": ".", "?": ".",
	",": ",", ":": ":", ";": ":", "-": ":", "--": ":", "...": ":",
	"(": "-LRB-", ")": "-RRB-", "[": "-LRB-", "]": "-RRB-", "{": "-LRB-", "}": "-RRB-",
	"\"": "''", "'": "''", "`": "``", "``": "``", "''": "''",
	"$": "$", "#": "#", "%": "NN", "&": "CC",
}

var suffixes = []struct {
	suffix string
	tag    string
}{
	{"ing", "VBG"},
	{"ed", "VBD"},
	{"ly", "RB"},
	{"ness", "NN"},
	{"ment", "NN"},
	{"tion", "NN"},
	{"sion", "NN"},
	{"ity", "NN"},
	{"able", "JJ"},
	{"ible", "JJ"},
	{"ous", "JJ"},
	{"ful", "JJ"},
	{"ive", "JJ"},
	{"less", "JJ"},
	{"ical", "JJ"},
	{"est", "JJS"},
	{"ss", "NN"},
	{"s", "NNS"},
}

var (
	numberRe = regexp.MustCompile(`^[+-]?(\d+([.,:/]\d+)*|\d*\.\d+)(st|nd|rd|th|s)?$`)
	symbolRe = regexp.MustCompile(`^[^\p{L}\p{N}]+$`)
)

// RuleTagger is a lexicon and word-shape tagger. It needs no model files and
// is deterministic.
type RuleTagger struct{}

// NewRuleTagger returns the default annotator.
func NewRuleTagger() *RuleTagger {
	return &RuleTagger{}
}

// Tag implements Annotator.
func (RuleTagger) Tag(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tagToken(tok, i == 0)
	}
	// "to" before a base-form guess reads as an infinitive verb.
	for i := 1; i < len(out); i++ {
		if out[i-1] == "TO" && out[i] == "NN" {
			out[i] = "VB"
		}
		if out[i-1] == "MD" && (out[i] == "NN" || out[i] == "VBP") {
			out[i] = "VB"
		}
	}
	return out
}

func tagToken(tok string, first bool) string {
	if tok == "" {
		return "SYM"
	}
	if t, ok := punctuation[tok]; ok {
		return t
	}
	lower := textutil.Lower(tok)
	if t, ok := lexicon[lower]; ok {
		return t
	}
	if numberRe.MatchString(tok) {
		return "CD"
	}
	if symbolRe.MatchString(tok) {
		return "SYM"
	}

	r := []rune(tok)
	if unicode.IsUpper(r[0]) {
		if textutil.IsASCII(tok) && strings.ToUpper(tok) == tok && len(r) > 1 {
			return "NNP"
		}
		if !first {
			return "NNP"
		}
		// Sentence-initial capitals are proper nouns unless the shape says
		// otherwise.
		if t := suffixTag(lower); t != "" && t != "NNS" {
			return t
		}
		return "NNP"
	}
	if t := suffixTag(lower); t != "" {
		return t
	}
	return "NN"
}

func suffixTag(lower string) string {
	for _, s := range suffixes {
		if len(lower) > len(s.suffix)+1 && strings.HasSuffix(lower, s.suffix) {
			return s.tag
		}
	}
	return ""
}
