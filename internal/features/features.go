// Package features turns tagged sentences into the padded tensors the model
// consumes: word ids, character id grids, POS one-hot rows, lexical flags and
// tag ids.
package features

import (
	"errors"
	"fmt"

	"github.com/happyhackingspace/nerd/internal/corpus"
	"github.com/happyhackingspace/nerd/internal/postag"
	"github.com/happyhackingspace/nerd/internal/textutil"
	"github.com/happyhackingspace/nerd/internal/vocab"
)

// ErrEmptyInput is returned when there is nothing to fit or encode.
var ErrEmptyInput = errors.New("no sentences to encode")

// Sample is one sentence with its POS annotation. All three slices have the
// same length; POS may be nil for unannotated input.
type Sample struct {
	Tokens []string
	Tags   []string
	POS    []string
}

// Len returns the number of tokens.
func (s Sample) Len() int { return len(s.Tokens) }

func (s Sample) validate() error {
	if len(s.Tags) != len(s.Tokens) {
		return fmt.Errorf("%w: %d tokens, %d tags", corpus.ErrLengthMismatch, len(s.Tokens), len(s.Tags))
	}
	if s.POS != nil && len(s.POS) != len(s.Tokens) {
		return fmt.Errorf("%w: %d tokens, %d POS tags", corpus.ErrLengthMismatch, len(s.Tokens), len(s.POS))
	}
	return nil
}

// Prepare truncates every sentence to maxLen tokens and then annotates it, so
// tokens, tags and POS tags stay index-aligned. A nil annotator leaves POS
// empty.
func Prepare(sentences []corpus.Sentence, a postag.Annotator, maxLen int) []Sample {
	cut := corpus.TruncateAll(sentences, maxLen)
	var pos [][]string
	if a != nil {
		tokens := make([][]string, len(cut))
		for i, s := range cut {
			tokens[i] = s.Tokens
		}
		pos = postag.TagAll(a, tokens)
	}
	out := make([]Sample, len(cut))
	for i, s := range cut {
		out[i] = Sample{Tokens: s.Tokens, Tags: s.Tags}
		if pos != nil {
			out[i].POS = pos[i]
		}
	}
	return out
}

// ReproducePOSBug returns val with each row's POS tags replaced by those of
// train row i mod len(train), cut or blank-padded to the row's length. It
// reproduces a pipeline that encoded the training POS list for both splits
// and exists only for comparison runs.
func ReproducePOSBug(train, val []Sample) []Sample {
	if len(train) == 0 {
		return val
	}
	out := make([]Sample, len(val))
	for i, s := range val {
		src := train[i%len(train)].POS
		pos := make([]string, len(s.Tokens))
		copy(pos, src)
		out[i] = Sample{Tokens: s.Tokens, Tags: s.Tags, POS: pos}
	}
	return out
}

// Options bound the encoded tensor widths.
type Options struct {
	// MaxLen caps the sentence axis; 0 means the longest sentence.
	MaxLen int
	// MaxWordLen is the character axis width. Longer words are cut.
	MaxWordLen int
}

// Encoder holds the vocabularies frozen from a training split.
type Encoder struct {
	Words *vocab.Vocabulary
	Chars *vocab.Vocabulary
	Tags  *vocab.Vocabulary
	POS   *vocab.Vocabulary

	MaxLen     int
	MaxWordLen int
}

// Fit builds the word (lowercased), character, tag and POS vocabularies from
// the training samples.
func Fit(train []Sample, opts Options) (*Encoder, error) {
	if len(train) == 0 {
		return nil, ErrEmptyInput
	}
	if opts.MaxWordLen <= 0 {
		return nil, fmt.Errorf("max word length must be positive, got %d", opts.MaxWordLen)
	}
	words, chars, tags, pos := vocab.NewBuilder(), vocab.NewBuilder(), vocab.NewBuilder(), vocab.NewBuilder()
	for i, s := range train {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		s = truncate(s, opts.MaxLen)
		for _, tok := range s.Tokens {
			words.Add(textutil.Lower(tok))
			for _, r := range tok {
				chars.Add(string(r))
			}
		}
		tags.Add(s.Tags...)
		pos.Add(s.POS...)
	}
	return &Encoder{
		Words:      words.Build(true),
		Chars:      chars.Build(true),
		Tags:       tags.Build(false),
		POS:        pos.Build(true),
		MaxLen:     opts.MaxLen,
		MaxWordLen: opts.MaxWordLen,
	}, nil
}

// NumTags returns the number of real tags, padding excluded.
func (e *Encoder) NumTags() int { return e.Tags.Size() - 1 }

// OutsideID returns the id of the "O" tag, or the padding id if the
// training split had none.
func (e *Encoder) OutsideID() int {
	if id, ok := e.Tags.ToID["O"]; ok {
		return id
	}
	return vocab.PadIndex
}

func truncate(s Sample, n int) Sample {
	if n <= 0 || len(s.Tokens) <= n {
		return s
	}
	out := Sample{Tokens: s.Tokens[:n], Tags: s.Tags[:n]}
	if s.POS != nil {
		out.POS = s.POS[:n]
	}
	return out
}

// nonPad returns the vocabulary id of s, never the padding id: a literal
// padding symbol in the data is unknown, not absent.
func nonPad(v *vocab.Vocabulary, s string) int {
	id := v.Index(s)
	if id == vocab.PadIndex {
		return v.UnkIndex
	}
	return id
}
