// Package embeddings loads pretrained word vectors and aligns them with a
// word vocabulary.
package embeddings

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/happyhackingspace/nerd/internal/tensor"
	"github.com/happyhackingspace/nerd/internal/vocab"
)

// ErrDimension is returned when vectors disagree on their width.
var ErrDimension = errors.New("embedding dimension mismatch")

// Provider returns a fixed-width vector per known word.
type Provider interface {
	Dim() int
	Lookup(word string) ([]float64, bool)
}

// Table is an in-memory Provider.
type Table struct {
	dim     int
	vectors map[string][]float64
}

// NewTable creates an empty table of the given width.
func NewTable(dim int) *Table {
	return &Table{dim: dim, vectors: make(map[string][]float64)}
}

// Add stores vec for word.
func (t *Table) Add(word string, vec []float64) error {
	if len(vec) != t.dim {
		return fmt.Errorf("%w: %q has %d values, want %d", ErrDimension, word, len(vec), t.dim)
	}
	t.vectors[word] = vec
	return nil
}

// Dim implements Provider.
func (t *Table) Dim() int { return t.dim }

// Lookup implements Provider.
func (t *Table) Lookup(word string) ([]float64, bool) {
	v, ok := t.vectors[word]
	return v, ok
}

// Len returns the number of stored words.
func (t *Table) Len() int { return len(t.vectors) }

// LoadGloVe reads the GloVe text format: one word per line followed by its
// values, space separated. Files ending in .gz are decompressed. When keep is
// non-nil only words it accepts are stored.
func LoadGloVe(path string, keep func(word string) bool) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer func() { _ = gr.Close() }()
		r = gr
	}
	t, err := ReadGloVe(r, keep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("Loaded pretrained vectors", "path", path, "words", t.Len(), "dim", t.Dim())
	return t, nil
}

// ReadGloVe parses GloVe text from r. The width is taken from the first line.
func ReadGloVe(r io.Reader, keep func(word string) bool) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	var t *Table
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		word, values := fields[0], fields[1:]
		if t == nil {
			t = NewTable(len(values))
		}
		if len(values) != t.dim {
			return nil, fmt.Errorf("line %d: %w: %d values, want %d", line, ErrDimension, len(values), t.dim)
		}
		if keep != nil && !keep(word) {
			continue
		}
		vec := make([]float64, len(values))
		for i, s := range values {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vec[i] = v
		}
		t.vectors[word] = vec
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("no vectors found")
	}
	return t, nil
}

// Matrix builds a vocab.Size() x p.Dim() table whose row i is the vector of
// word i. Words the provider does not know, including the reserved padding
// and unknown entries, get a zero row. It also returns how many words were
// found.
func Matrix(p Provider, v *vocab.Vocabulary) (*tensor.Dense, int) {
	dim := p.Dim()
	m := tensor.New(v.Size(), dim)
	found := 0
	for id, word := range v.ToStr {
		if id == vocab.PadIndex || id == v.UnkIndex {
			continue
		}
		if vec, ok := p.Lookup(word); ok {
			copy(m.Row(id), vec)
			found++
		}
	}
	return m, found
}
