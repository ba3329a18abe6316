package corpus

import (
	"bufio"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Storage wraps a corpus file or a folder of corpus files.
type Storage struct {
	Path   string
	Logger *slog.Logger
}

// NewStorage creates a Storage for the given file or folder, logging through
// logger (slog.Default when nil).
func NewStorage(path string, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{Path: path, Logger: logger}
}

// IterOptions controls sentence loading.
type IterOptions struct {
	DropDuplicates bool
}

// DefaultIterOptions returns the default options for loading sentences.
func DefaultIterOptions() IterOptions {
	return IterOptions{}
}

// Files lists the corpus files under Path in lexical order. A plain file is
// returned as is.
func (s *Storage) Files() ([]string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{s.Path}, nil
	}
	var files []string
	err = filepath.WalkDir(s.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".conll", ".txt", ".tsv":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Sentences loads every sentence under Path. Empty sentences are skipped
// with a warning.
func (s *Storage) Sentences(opts IterOptions) ([]Sentence, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	seen := make(map[[md5.Size]byte]bool)
	var out []Sentence
	for _, path := range files {
		sentences, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for i, sent := range sentences {
			if sent.Len() == 0 {
				s.Logger.Warn("Skipping empty sentence", "path", path, "index", i)
				continue
			}
			if opts.DropDuplicates {
				h := md5.Sum([]byte(strings.Join(sent.Tokens, "\x00") + "\x01" + strings.Join(sent.Tags, "\x00")))
				if seen[h] {
					continue
				}
				seen[h] = true
			}
			out = append(out, sent)
		}
		s.Logger.Debug("Loaded corpus file", "path", path, "sentences", len(sentences))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, s.Path)
	}
	return out, nil
}

// LoadFile reads one corpus file. Files ending in .json hold a list of
// sentences, each a list of [token, tag] pairs; anything else is read as
// CoNLL columns.
func LoadFile(path string) ([]Sentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var sentences []Sentence
	if strings.EqualFold(filepath.Ext(path), ".json") {
		sentences, err = ReadJSON(f)
	} else {
		sentences, err = ReadCoNLL(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sentences, nil
}

// ReadJSON decodes a list of sentences of [token, tag] pairs.
func ReadJSON(r io.Reader) ([]Sentence, error) {
	var raw [][][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]Sentence, len(raw))
	for i, pairs := range raw {
		s := Sentence{Tokens: make([]string, 0, len(pairs)), Tags: make([]string, 0, len(pairs))}
		for j, p := range pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("sentence %d, token %d: %w: want [token, tag], got %d fields", i, j, ErrLengthMismatch, len(p))
			}
			s.Tokens = append(s.Tokens, p[0])
			s.Tags = append(s.Tags, p[1])
		}
		out[i] = s
	}
	return out, nil
}

// ReadCoNLL reads whitespace-separated columns with the token first and the
// tag last. Blank lines end a sentence and -DOCSTART- lines are ignored.
func ReadCoNLL(r io.Reader) ([]Sentence, error) {
	var out []Sentence
	var cur Sentence
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur)
		}
		cur = Sentence{}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			flush()
			continue
		}
		if strings.HasPrefix(text, "-DOCSTART-") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %w: token without tag", line, ErrLengthMismatch)
		}
		cur.Tokens = append(cur.Tokens, fields[0])
		cur.Tags = append(cur.Tags, fields[len(fields)-1])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}
