// Package corpus loads tagged sentences from disk and prepares the training
// and validation splits.
package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

var (
	// ErrEmptyCorpus is returned when no sentence survives loading.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrLengthMismatch is returned when a record's tokens and tags differ in
	// length.
	ErrLengthMismatch = errors.New("token/tag length mismatch")
)

// Sentence is one tagged sentence. Tokens keep their original case.
type Sentence struct {
	Tokens []string `json:"tokens"`
	Tags   []string `json:"tags"`
}

// Len returns the number of tokens.
func (s Sentence) Len() int { return len(s.Tokens) }

// Validate checks that tokens and tags align.
func (s Sentence) Validate() error {
	if len(s.Tokens) != len(s.Tags) {
		return fmt.Errorf("%w: %d tokens, %d tags", ErrLengthMismatch, len(s.Tokens), len(s.Tags))
	}
	return nil
}

// Truncate returns s cut to at most n tokens. Tokens and tags stay aligned.
func (s Sentence) Truncate(n int) Sentence {
	if n <= 0 || len(s.Tokens) <= n {
		return s
	}
	return Sentence{Tokens: s.Tokens[:n], Tags: s.Tags[:n]}
}

// TruncateAll applies Truncate to every sentence.
func TruncateAll(sentences []Sentence, n int) []Sentence {
	out := make([]Sentence, len(sentences))
	for i, s := range sentences {
		out[i] = s.Truncate(n)
	}
	return out
}

// Split draws a validation split of round(frac*len) sentences without
// replacement; the rest is the training split. Both keep corpus order. Each
// split receives at least one sentence.
func Split(sentences []Sentence, frac float64, rng *rand.Rand) (train, val []Sentence, err error) {
	n := len(sentences)
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 sentences to split, have %d", ErrEmptyCorpus, n)
	}
	if frac <= 0 || frac >= 1 {
		return nil, nil, fmt.Errorf("split fraction %v outside (0, 1)", frac)
	}
	k := int(frac*float64(n) + 0.5)
	k = max(1, min(n-1, k))

	picked := rng.Perm(n)[:k]
	slices.Sort(picked)
	isVal := make([]bool, n)
	for _, i := range picked {
		isVal[i] = true
	}
	for i, s := range sentences {
		if isVal[i] {
			val = append(val, s)
		} else {
			train = append(train, s)
		}
	}
	return train, val, nil
}
