// Package config holds the training configuration and the run environment
// built from it at process start.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of training knobs. Zero values are filled from
// Default by Load.
type Config struct {
	DataPath     string `yaml:"data_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	Seed         uint64 `yaml:"seed"`

	MaxSentenceLen int     `yaml:"max_sentence_len"`
	MaxWordLen     int     `yaml:"max_word_len"`
	WordEmbedDim   int     `yaml:"word_embed_dim"`
	CharEmbedDim   int     `yaml:"char_embed_dim"`
	CNNOut         int     `yaml:"cnn_out"`
	Cell           string  `yaml:"cell"`
	RNNHidden      int     `yaml:"rnn_hidden"`
	RNNLayers      int     `yaml:"rnn_layers"`
	Bidirectional  bool    `yaml:"bidirectional"`
	LinearHidden   int     `yaml:"linear_hidden"`
	Dropout        float64 `yaml:"dropout"`

	LearningRate float64 `yaml:"learning_rate"`
	GradClip     float64 `yaml:"grad_clip"`
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	ValSplit     float64 `yaml:"val_split"`
	AuxCEWeight  float64 `yaml:"aux_ce_weight"`

	Device  string `yaml:"device"`
	Workers int    `yaml:"workers"`

	Embeddings       string `yaml:"embeddings"`
	FreezeEmbeddings bool   `yaml:"freeze_embeddings"`

	ReproducePOSBug bool `yaml:"reproduce_pos_bug"`

	TrackingDir     string `yaml:"tracking_dir"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		ArtifactsDir:   "artifacts",
		Seed:           42,
		MaxSentenceLen: 64,
		MaxWordLen:     20,
		WordEmbedDim:   256,
		CharEmbedDim:   124,
		CNNOut:         32,
		Cell:           "LSTM",
		RNNHidden:      512,
		RNNLayers:      2,
		Bidirectional:  true,
		LinearHidden:   128,
		Dropout:        0.3,
		LearningRate:   0.001,
		BatchSize:      32,
		Epochs:         10,
		ValSplit:       0.1,
		Device:         "auto",
	}
}

// Load reads a YAML file over Default. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every knob on its own. The embedding-dimension check needs
// the pretrained table and happens at model construction.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("max_sentence_len", c.MaxSentenceLen)
	positive("max_word_len", c.MaxWordLen)
	positive("word_embed_dim", c.WordEmbedDim)
	positive("char_embed_dim", c.CharEmbedDim)
	positive("cnn_out", c.CNNOut)
	positive("rnn_hidden", c.RNNHidden)
	positive("rnn_layers", c.RNNLayers)
	positive("linear_hidden", c.LinearHidden)
	positive("batch_size", c.BatchSize)
	positive("epochs", c.Epochs)

	switch strings.ToUpper(c.Cell) {
	case "LSTM", "GRU":
	default:
		errs = append(errs, fmt.Errorf("cell must be LSTM or GRU, got %q", c.Cell))
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		errs = append(errs, fmt.Errorf("dropout must be in [0, 1), got %v", c.Dropout))
	}
	if c.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate))
	}
	if c.GradClip < 0 || c.AuxCEWeight < 0 {
		errs = append(errs, errors.New("grad_clip and aux_ce_weight must not be negative"))
	}
	if c.ValSplit <= 0 || c.ValSplit >= 1 {
		errs = append(errs, fmt.Errorf("val_split must be in (0, 1), got %v", c.ValSplit))
	}
	if c.DataPath == "" {
		errs = append(errs, errors.New("data_path is required"))
	} else if _, err := os.Stat(c.DataPath); err != nil {
		errs = append(errs, fmt.Errorf("data_path: %w", err))
	}
	if c.Embeddings != "" {
		if _, err := os.Stat(c.Embeddings); err != nil {
			errs = append(errs, fmt.Errorf("embeddings: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Params flattens the configuration into its YAML keys, for trackers.
func (c Config) Params() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
