// Package nerd trains and runs a named-entity tagger: a character CNN and
// word embeddings feed a recurrent network whose emissions are decoded by a
// linear-chain CRF.
//
//	t, _ := nerd.New()
//	tokens, _ := t.TagText("John lives in Paris")
//	for _, e := range nerd.Entities(tokens) {
//	    fmt.Println(e.Type, e.Text) // "PERSON John", "LOCATION Paris"
//	}
package nerd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/postag"
	"github.com/happyhackingspace/nerd/internal/textutil"
	"github.com/happyhackingspace/nerd/model"
)

// Outside is the tag of tokens outside any entity.
const Outside = "O"

// Tagger wraps a trained model with its vocabularies.
type Tagger struct {
	enc       *features.Encoder
	model     *model.Model
	annotator postag.Annotator
}

// Token is one tagged token.
type Token struct {
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// Entity is a run of tokens sharing one entity type.
type Entity struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// New loads the tagger from an "artifacts" directory, searching the current
// directory and parent directories up to the module root (where go.mod
// lives).
func New() (*Tagger, error) {
	dir, err := findArtifacts("artifacts")
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	return Load(dir)
}

func findArtifacts(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(filepath.Join(path, model.File)); err == nil {
			return path, nil
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s/%s not found", name, model.File)
}

// Load reads a tagger saved by Save.
func Load(dir string) (*Tagger, error) {
	enc, err := features.LoadEncoder(dir)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	m, err := model.Load(filepath.Join(dir, model.File), 1)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	return &Tagger{enc: enc, model: m, annotator: postag.NewRuleTagger()}, nil
}

// Save writes the model, the three vocabularies and the POS index into dir.
func (t *Tagger) Save(dir string) error {
	if t.model == nil || t.enc == nil {
		return errors.New("nerd: tagger not initialized")
	}
	if err := t.enc.Save(dir); err != nil {
		return fmt.Errorf("nerd: %w", err)
	}
	if err := t.model.Save(filepath.Join(dir, model.File)); err != nil {
		return fmt.Errorf("nerd: %w", err)
	}
	return nil
}

// Tags returns the tag set, padding excluded.
func (t *Tagger) Tags() []string {
	return append([]string(nil), t.enc.Tags.ToStr[1:]...)
}

// Tag predicts one tag per token. Sentences longer than the trained maximum
// are tagged in consecutive windows.
func (t *Tagger) Tag(tokens []string) ([]string, error) {
	out, err := t.TagBatch([][]string{tokens})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// TagBatch tags several sentences in one forward pass.
func (t *Tagger) TagBatch(sentences [][]string) ([][]string, error) {
	if t.model == nil || t.enc == nil {
		return nil, errors.New("nerd: tagger not initialized")
	}
	type span struct{ sentence, offset int }
	var (
		samples []features.Sample
		spans   []span
	)
	out := make([][]string, len(sentences))
	for i, tokens := range sentences {
		out[i] = make([]string, len(tokens))
		step := t.enc.MaxLen
		if step <= 0 {
			step = len(tokens)
		}
		for off := 0; off < len(tokens); off += step {
			chunk := tokens[off:min(len(tokens), off+step)]
			samples = append(samples, features.Sample{
				Tokens: chunk,
				Tags:   make([]string, len(chunk)),
				POS:    postag.TagAll(t.annotator, [][]string{chunk})[0],
			})
			spans = append(spans, span{i, off})
		}
	}
	if len(samples) == 0 {
		return out, nil
	}

	d, err := t.enc.Encode(samples)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	paths, err := t.model.Decode(model.InputOf(d))
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	for k, sp := range spans {
		for j := range d.Lengths[k] {
			tag := t.enc.Tags.Symbol(paths[k][j])
			if paths[k][j] == 0 {
				tag = Outside
			}
			out[sp.sentence][sp.offset+j] = tag
		}
	}
	return out, nil
}

// TagText tokenizes text and tags the tokens.
func (t *Tagger) TagText(text string) ([]Token, error) {
	words := textutil.Tokenize(textutil.NormalizeWhitespaces(text))
	tags, err := t.Tag(words)
	if err != nil {
		return nil, err
	}
	out := make([]Token, len(words))
	for i, w := range words {
		out[i] = Token{Text: w, Tag: tags[i]}
	}
	return out, nil
}

// Entities merges consecutive tokens of one entity type. BIO prefixes are
// honoured: "B-" always opens a new entity.
func Entities(tokens []Token) []Entity {
	var out []Entity
	open := false
	for i, tok := range tokens {
		typ, begin := tok.Tag, false
		if p, rest, ok := strings.Cut(tok.Tag, "-"); ok && (p == "B" || p == "I") {
			typ, begin = rest, p == "B"
		}
		if typ == Outside || typ == "" {
			open = false
			continue
		}
		if last := len(out) - 1; open && out[last].Type == typ && !begin {
			out[last].Text += " " + tok.Text
			out[last].End = i + 1
			continue
		}
		out = append(out, Entity{Type: typ, Text: tok.Text, Start: i, End: i + 1})
		open = true
	}
	return out
}
