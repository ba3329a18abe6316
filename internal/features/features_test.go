package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/nerd/internal/corpus"
	"github.com/happyhackingspace/nerd/internal/postag"
	"github.com/happyhackingspace/nerd/internal/vocab"
)

func sample(tokens, tags string) Sample {
	s := Sample{Tokens: split(tokens), Tags: split(tags)}
	s.POS = postag.NewRuleTagger().Tag(s.Tokens)
	return s
}

func split(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func trainSet() []Sample {
	return []Sample{
		sample("John lives in Paris", "PERSON O O LOCATION"),
		sample("Mary visited London yesterday with John", "PERSON O LOCATION O O PERSON"),
		sample("ABC123 works", "ORG O"),
	}
}

func TestPrepareTruncatesBeforeAnnotating(t *testing.T) {
	sentences := []corpus.Sentence{
		{Tokens: []string{"John", "lives", "in", "Paris", "today"}, Tags: []string{"PERSON", "O", "O", "LOCATION", "O"}},
		{Tokens: []string{"Hi"}, Tags: []string{"O"}},
	}
	samples := Prepare(sentences, postag.NewRuleTagger(), 3)
	for _, s := range samples {
		assert.LessOrEqual(t, s.Len(), 3)
		assert.Equal(t, len(s.Tokens), len(s.Tags))
		assert.Equal(t, len(s.Tokens), len(s.POS))
	}
	assert.Equal(t, []string{"John", "lives", "in"}, samples[0].Tokens)

	plain := Prepare(sentences, nil, 0)
	assert.Nil(t, plain[0].POS)
	assert.Len(t, plain[0].Tokens, 5)
}

func TestFitVocabularies(t *testing.T) {
	enc, err := Fit(trainSet(), Options{MaxLen: 10, MaxWordLen: 8})
	require.NoError(t, err)

	assert.Equal(t, vocab.Pad, enc.Words.Symbol(0))
	assert.Equal(t, vocab.Unk, enc.Words.Symbol(1))
	assert.Equal(t, 1, enc.Words.Index("never-seen"))
	assert.True(t, enc.Words.Contains("john"))
	assert.False(t, enc.Words.Contains("John"))
	assert.True(t, enc.Chars.Contains("J"))

	// Tags have no separate unknown entry.
	assert.Equal(t, 0, enc.Tags.Index("MISC"))
	assert.Equal(t, 4, enc.NumTags())
	assert.Equal(t, "O", enc.Tags.Symbol(enc.OutsideID()))

	for _, v := range []*vocab.Vocabulary{enc.Words, enc.Chars, enc.Tags, enc.POS} {
		for id, sym := range v.ToStr {
			assert.Equal(t, id, v.Index(sym), "round trip of %q", sym)
		}
	}

	_, err = Fit(nil, Options{MaxWordLen: 8})
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = Fit([]Sample{{Tokens: []string{"a"}, Tags: nil}}, Options{MaxWordLen: 8})
	require.ErrorIs(t, err, corpus.ErrLengthMismatch)
}

func TestEncodeShapesAndMask(t *testing.T) {
	train := trainSet()
	enc, err := Fit(train, Options{MaxLen: 4, MaxWordLen: 5})
	require.NoError(t, err)
	d, err := enc.Encode(train)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 4}, d.Words.Shape)
	assert.Equal(t, []int{3, 4, 5}, d.Chars.Shape)
	assert.Equal(t, []int{3, 4, enc.POS.Size()}, d.POS.Shape)
	assert.Equal(t, []int{3, 4, 7}, d.Enrich.Shape)
	assert.Equal(t, []int{4, 4, 2}, d.Lengths)

	mask := Mask(d.Words)
	for i, n := range d.Lengths {
		count := 0
		for _, m := range mask.Row(i) {
			count += m
		}
		assert.Equal(t, n, count, "row %d", i)
		for t2 := n; t2 < d.Width(); t2++ {
			assert.Zero(t, d.Tags.At(i, t2))
			assert.Zero(t, d.Enrich.At(i, t2, 0))
		}
	}

	// "John" is right-padded along the character axis.
	assert.Equal(t, enc.Chars.Index("J"), d.Chars.At(0, 0, 0))
	assert.Zero(t, d.Chars.At(0, 0, 4))
	// One-hot POS: every real position has exactly one 1.
	for t2 := range 4 {
		sum := 0.0
		for p := range enc.POS.Size() {
			sum += d.POS.At(0, t2, p)
		}
		assert.Equal(t, 1.0, sum)
	}
	// "ABC123" flags.
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0, 1}, d.Enrich.Data[(2*4)*7:(2*4)*7+7])
}

func TestEncodeUnknownsAndIdempotence(t *testing.T) {
	enc, err := Fit(trainSet(), Options{MaxWordLen: 6})
	require.NoError(t, err)
	val := []Sample{sample("Zoë met <pad> in Paris", "PERSON O O O LOCATION")}

	a, err := enc.Encode(val)
	require.NoError(t, err)
	b, err := enc.Encode(val)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, enc.Words.UnkIndex, a.Words.At(0, 0))
	assert.Equal(t, enc.Chars.UnkIndex, a.Chars.At(0, 0, 2))
	// A literal padding token still counts as a real position.
	assert.Equal(t, enc.Words.UnkIndex, a.Words.At(0, 2))
	assert.Equal(t, []int{5}, a.Lengths)
	assert.False(t, enc.Words.Contains("zoë"))

	_, err = enc.Encode(nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	_, err = enc.Encode([]Sample{{}})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestAlignExtendsNarrowerSplit(t *testing.T) {
	train := trainSet()
	enc, err := Fit(train, Options{MaxLen: 10, MaxWordLen: 4})
	require.NoError(t, err)
	td, err := enc.Encode(train)
	require.NoError(t, err)
	vd, err := enc.Encode([]Sample{sample("Paris", "LOCATION")})
	require.NoError(t, err)
	require.Equal(t, 1, vd.Width())

	Align(td, vd)
	assert.Equal(t, td.Words.Shape, []int{3, 6})
	assert.Equal(t, []int{1, 6}, vd.Words.Shape)
	assert.Equal(t, []int{1, 6, 4}, vd.Chars.Shape)
	assert.Equal(t, []int{1, 6, enc.POS.Size()}, vd.POS.Shape)
	assert.Equal(t, []int{1, 6, 7}, vd.Enrich.Shape)
	assert.Equal(t, []int{1, 6}, vd.Tags.Shape)
	assert.Equal(t, []int{enc.Words.Index("paris"), 0, 0, 0, 0, 0}, vd.Words.Row(0))
	assert.Equal(t, []int{1}, vd.Lengths)

	// A wider validation split extends the training split instead.
	short, err := enc.Encode([]Sample{sample("Paris", "LOCATION")})
	require.NoError(t, err)
	Align(short, td)
	assert.Equal(t, 6, short.Width())
}

func TestSubsetAndTagIDs(t *testing.T) {
	train := trainSet()
	enc, err := Fit(train, Options{MaxWordLen: 4})
	require.NoError(t, err)
	d, err := enc.Encode(train)
	require.NoError(t, err)

	sub := d.Subset([]int{2, 0})
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, []int{2, 4}, sub.Lengths)
	assert.Equal(t, d.Words.Row(2), sub.Words.Row(0))
	assert.Len(t, d.TagIDs(), 12)
	assert.NotContains(t, d.TagIDs(), 0)
}

func TestReproducePOSBug(t *testing.T) {
	train := trainSet()
	val := []Sample{sample("Paris is big", "LOCATION O O"), sample("x", "O"), sample("a b c d e f g h", "O O O O O O O O"), sample("y", "O")}
	buggy := ReproducePOSBug(train, val)
	assert.Equal(t, train[0].POS[:3], buggy[0].POS)
	assert.Equal(t, train[1].POS[:1], buggy[1].POS)
	assert.Equal(t, train[2].POS, buggy[2].POS[:2])
	assert.Equal(t, "", buggy[2].POS[7])
	assert.Equal(t, train[0].POS[:1], buggy[3].POS)
	assert.Equal(t, val[0].Tokens, buggy[0].Tokens)
}

func TestBatches(t *testing.T) {
	fixed := Batches(7, 3, false, 1, 0)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}, fixed)
	assert.Equal(t, fixed, Batches(7, 3, false, 1, 5))

	e0 := Batches(50, 10, true, 42, 0)
	assert.Equal(t, e0, Batches(50, 10, true, 42, 0))
	assert.NotEqual(t, e0, Batches(50, 10, true, 42, 1))

	seen := make(map[int]bool)
	for _, b := range e0 {
		for _, i := range b {
			seen[i] = true
		}
	}
	assert.Len(t, seen, 50)
	assert.Nil(t, Batches(0, 4, true, 1, 0))
}

func TestEncoderSaveLoad(t *testing.T) {
	enc, err := Fit(trainSet(), Options{MaxLen: 12, MaxWordLen: 6})
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, enc.Save(dir))

	loaded, err := LoadEncoder(dir)
	require.NoError(t, err)
	assert.Equal(t, enc.Words.ToStr, loaded.Words.ToStr)
	assert.Equal(t, enc.Tags.UnkIndex, loaded.Tags.UnkIndex)
	assert.Equal(t, 12, loaded.MaxLen)
	assert.Equal(t, 6, loaded.MaxWordLen)

	a, err := enc.Encode(trainSet())
	require.NoError(t, err)
	b, err := loaded.Encode(trainSet())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
