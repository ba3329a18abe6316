package features

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/nerd/internal/vocab"
)

// Artifact file names written by Save.
const (
	WordVocabFile = "word_vocab.json"
	CharVocabFile = "char_vocab.json"
	TagVocabFile  = "tag_vocab.json"
	POSIndexFile  = "pos_index.json"
	EncoderFile   = "encoder.json"
)

type encoderJSON struct {
	MaxLen     int `json:"max_len"`
	MaxWordLen int `json:"max_word_len"`
}

// Save writes the vocabularies and width settings into dir.
func (e *Encoder) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for name, v := range map[string]*vocab.Vocabulary{
		WordVocabFile: e.Words,
		CharVocabFile: e.Chars,
		TagVocabFile:  e.Tags,
		POSIndexFile:  e.POS,
	} {
		if err := v.Save(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	data, err := json.MarshalIndent(encoderJSON{MaxLen: e.MaxLen, MaxWordLen: e.MaxWordLen}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, EncoderFile), data, 0644)
}

// LoadEncoder reads an encoder written by Save.
func LoadEncoder(dir string) (*Encoder, error) {
	e := &Encoder{}
	for name, dst := range map[string]**vocab.Vocabulary{
		WordVocabFile: &e.Words,
		CharVocabFile: &e.Chars,
		TagVocabFile:  &e.Tags,
		POSIndexFile:  &e.POS,
	} {
		v, err := vocab.Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	data, err := os.ReadFile(filepath.Join(dir, EncoderFile))
	if err != nil {
		return nil, err
	}
	var ej encoderJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return nil, fmt.Errorf("%s: %w", EncoderFile, err)
	}
	e.MaxLen, e.MaxWordLen = ej.MaxLen, ej.MaxWordLen
	return e, nil
}
