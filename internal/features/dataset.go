package features

import (
	"fmt"

	"github.com/happyhackingspace/nerd/internal/tensor"
	"github.com/happyhackingspace/nerd/internal/textutil"
	"github.com/happyhackingspace/nerd/internal/vocab"
)

// Dataset is an encoded split. Row i of every tensor describes sentence i;
// positions at or beyond Lengths[i] hold 0.
type Dataset struct {
	Words  *tensor.Index // N x T
	Chars  *tensor.Index // N x T x W
	POS    *tensor.Dense // N x T x P one-hot
	Enrich *tensor.Dense // N x T x 7
	Tags   *tensor.Index // N x T

	Lengths []int
}

// Len returns the number of sentences.
func (d *Dataset) Len() int { return d.Words.Dim(0) }

// Width returns the padded sentence width T.
func (d *Dataset) Width() int { return d.Words.Dim(1) }

// Encode maps samples to padded tensors. T is min(MaxLen, longest sentence).
// Unknown symbols map to the unknown index and never fail.
func (e *Encoder) Encode(samples []Sample) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}
	longest := 0
	for i, s := range samples {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		longest = max(longest, s.Len())
	}
	width := longest
	if e.MaxLen > 0 {
		width = min(width, e.MaxLen)
	}
	if width == 0 {
		return nil, fmt.Errorf("%w: every sentence is empty", ErrEmptyInput)
	}

	n, w, p := len(samples), e.MaxWordLen, e.POS.Size()
	d := &Dataset{
		Words:   tensor.NewIndex(n, width),
		Chars:   tensor.NewIndex(n, width, w),
		POS:     tensor.New(n, width, p),
		Enrich:  tensor.New(n, width, textutil.EnrichDim),
		Tags:    tensor.NewIndex(n, width),
		Lengths: make([]int, n),
	}
	for i, s := range samples {
		s = truncate(s, width)
		d.Lengths[i] = s.Len()
		for t, tok := range s.Tokens {
			d.Words.Set(nonPad(e.Words, textutil.Lower(tok)), i, t)
			d.Tags.Set(e.Tags.Index(s.Tags[t]), i, t)

			c := 0
			for _, r := range tok {
				if c == w {
					break
				}
				d.Chars.Set(nonPad(e.Chars, string(r)), i, t, c)
				c++
			}
			if s.POS != nil {
				d.POS.Set(1, i, t, nonPad(e.POS, s.POS[t]))
			}
			flags := textutil.Enrich(tok)
			copy(d.Enrich.Data[(i*width+t)*textutil.EnrichDim:], flags[:])
		}
	}
	return d, nil
}

// Mask returns 1 where a word id is a real token and 0 at padding.
func Mask(words *tensor.Index) *tensor.Index {
	m := tensor.NewIndex(words.Shape...)
	for i, id := range words.Data {
		if id != vocab.PadIndex {
			m.Data[i] = 1
		}
	}
	return m
}

// Extend right-pads every tensor with zero columns up to width. It is a
// no-op when the dataset is already that wide.
func (d *Dataset) Extend(width int) {
	n := width - d.Width()
	if n <= 0 {
		return
	}
	d.Words = d.Words.ExtendAxis1(n)
	d.Chars = d.Chars.ExtendAxis1(n)
	d.POS = d.POS.ExtendAxis1(n)
	d.Enrich = d.Enrich.ExtendAxis1(n)
	d.Tags = d.Tags.ExtendAxis1(n)
}

// Align zero-extends whichever dataset is narrower so both share one width.
func Align(train, val *Dataset) {
	w := max(train.Width(), val.Width())
	train.Extend(w)
	val.Extend(w)
}

// Subset gathers the given rows into a new dataset.
func (d *Dataset) Subset(rows []int) *Dataset {
	lengths := make([]int, len(rows))
	for i, r := range rows {
		lengths[i] = d.Lengths[r]
	}
	return &Dataset{
		Words:   d.Words.Gather(rows),
		Chars:   d.Chars.Gather(rows),
		POS:     d.POS.Gather(rows),
		Enrich:  d.Enrich.Gather(rows),
		Tags:    d.Tags.Gather(rows),
		Lengths: lengths,
	}
}

// TagIDs returns the flattened tag ids of every real token.
func (d *Dataset) TagIDs() []int {
	var ids []int
	for i, n := range d.Lengths {
		ids = append(ids, d.Tags.Row(i)[:n]...)
	}
	return ids
}
