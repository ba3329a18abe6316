// Package vocab provides frozen symbol <-> index mappings. Index 0 is always
// the padding symbol.
package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

const (
	Pad = "<pad>"
	Unk = "<unk>"

	PadIndex = 0
)

// Vocabulary maps between symbols and integer ids.
type Vocabulary struct {
	ToID  map[string]int `json:"-"`
	ToStr []string       `json:"symbols"`
	// UnkIndex is the id returned for unseen symbols. Tag vocabularies share
	// it with padding (0); the others reserve 1.
	UnkIndex int `json:"unk_index"`
}

// Builder counts symbols before freezing them into a Vocabulary.
type Builder struct {
	counts map[string]int
	order  []string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{counts: make(map[string]int)}
}

// Add counts one occurrence of each symbol.
func (b *Builder) Add(symbols ...string) {
	for _, s := range symbols {
		if _, ok := b.counts[s]; !ok {
			b.order = append(b.order, s)
		}
		b.counts[s]++
	}
}

// Build freezes the counted symbols, most frequent first with ties in order
// of first appearance. withUnk reserves index 1 for the unknown symbol.
func (b *Builder) Build(withUnk bool) *Vocabulary {
	symbols := append([]string(nil), b.order...)
	sort.SliceStable(symbols, func(i, j int) bool {
		return b.counts[symbols[i]] > b.counts[symbols[j]]
	})
	v := &Vocabulary{ToID: make(map[string]int)}
	v.add(Pad)
	if withUnk {
		v.UnkIndex = v.add(Unk)
	}
	for _, s := range symbols {
		v.add(s)
	}
	return v
}

// FromSymbols builds a vocabulary whose ids follow symbols in order. The
// first entry must be the padding symbol.
func FromSymbols(symbols []string, unkIndex int) (*Vocabulary, error) {
	if len(symbols) == 0 || symbols[0] != Pad {
		return nil, fmt.Errorf("vocab: first symbol must be %q", Pad)
	}
	if unkIndex < 0 || unkIndex >= len(symbols) {
		return nil, fmt.Errorf("vocab: unknown index %d out of range", unkIndex)
	}
	v := &Vocabulary{ToID: make(map[string]int), UnkIndex: unkIndex}
	for _, s := range symbols {
		if _, dup := v.ToID[s]; dup {
			return nil, fmt.Errorf("vocab: duplicate symbol %q", s)
		}
		v.add(s)
	}
	return v, nil
}

func (v *Vocabulary) add(s string) int {
	if id, ok := v.ToID[s]; ok {
		return id
	}
	id := len(v.ToStr)
	v.ToID[s] = id
	v.ToStr = append(v.ToStr, s)
	return id
}

// Index returns the id of s, or UnkIndex if s is unseen.
func (v *Vocabulary) Index(s string) int {
	if id, ok := v.ToID[s]; ok {
		return id
	}
	return v.UnkIndex
}

// Indices maps every symbol through Index.
func (v *Vocabulary) Indices(symbols []string) []int {
	out := make([]int, len(symbols))
	for i, s := range symbols {
		out[i] = v.Index(s)
	}
	return out
}

// Symbol returns the symbol for id, or "" if out of range.
func (v *Vocabulary) Symbol(id int) string {
	if id < 0 || id >= len(v.ToStr) {
		return ""
	}
	return v.ToStr[id]
}

// Contains reports whether s has its own id.
func (v *Vocabulary) Contains(s string) bool {
	_, ok := v.ToID[s]
	return ok
}

// Size returns the number of entries including the reserved ones.
func (v *Vocabulary) Size() int {
	return len(v.ToStr)
}

// UnmarshalJSON restores ToID from the symbol list.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	type plain Vocabulary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	restored, err := FromSymbols(p.ToStr, p.UnkIndex)
	if err != nil {
		return err
	}
	*v = *restored
	return nil
}

// Save writes the vocabulary as JSON.
func (v *Vocabulary) Save(path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a vocabulary written by Save.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &v, nil
}
