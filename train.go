package nerd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/nerd/internal/config"
	"github.com/happyhackingspace/nerd/internal/corpus"
	"github.com/happyhackingspace/nerd/internal/embeddings"
	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/metrics"
	"github.com/happyhackingspace/nerd/internal/nn"
	"github.com/happyhackingspace/nerd/internal/postag"
	"github.com/happyhackingspace/nerd/internal/tracking"
	"github.com/happyhackingspace/nerd/internal/train"
	"github.com/happyhackingspace/nerd/model"
)

type (
	// Config holds every training knob; see DefaultConfig.
	Config = config.Config
	// History is the per-epoch loss and metric record of a run.
	History = train.History
	// Report is a label-wise classification report.
	Report = metrics.Report
)

// ReportFile is the artifact name of the final validation report.
const ReportFile = "report.txt"

// DefaultConfig returns the stock training configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML configuration over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("nerd: %w", err)
	}
	return cfg, nil
}

// TrainOptions are optional collaborators of a training run.
type TrainOptions struct {
	Logger *slog.Logger
	// Annotator produces POS tags; nil uses the built-in rule tagger.
	Annotator postag.Annotator
	// Tracker receives params, metrics and artifacts; nil builds one from
	// the tracking settings of the config.
	Tracker tracking.Tracker
}

// TrainResult is what a finished run hands back.
type TrainResult struct {
	Tagger  *Tagger
	History *History
	Report  Report
}

// Train loads the corpus at cfg.DataPath, trains a tagger and writes its
// artifacts to cfg.ArtifactsDir.
func Train(cfg Config, opts *TrainOptions) (*TrainResult, error) {
	if opts == nil {
		opts = &TrainOptions{}
	}
	env, err := config.NewEnv(cfg, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	log := env.Logger

	sentences, err := corpus.NewStorage(cfg.DataPath, log).Sentences(corpus.DefaultIterOptions())
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	trainSents, valSents, err := corpus.Split(sentences, cfg.ValSplit, env.Rand(config.StreamSplit))
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	log.Info("Corpus loaded", "sentences", len(sentences), "train", len(trainSents), "validation", len(valSents))

	annotator := opts.Annotator
	if annotator == nil {
		annotator = postag.NewRuleTagger()
	}
	trainSamples := features.Prepare(trainSents, annotator, cfg.MaxSentenceLen)
	valSamples := features.Prepare(valSents, annotator, cfg.MaxSentenceLen)
	if cfg.ReproducePOSBug {
		log.Warn("Validation POS tags are taken from the training split")
		valSamples = features.ReproducePOSBug(trainSamples, valSamples)
	}

	enc, err := features.Fit(trainSamples, features.Options{MaxLen: cfg.MaxSentenceLen, MaxWordLen: cfg.MaxWordLen})
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	trainSet, err := enc.Encode(trainSamples)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	valSet, err := enc.Encode(valSamples)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	log.Info("Features encoded",
		"words", enc.Words.Size(), "chars", enc.Chars.Size(),
		"pos", enc.POS.Size(), "tags", enc.NumTags())

	mcfg := model.Config{
		NumWords:         enc.Words.Size(),
		NumChars:         enc.Chars.Size(),
		NumPOS:           enc.POS.Size(),
		NumTags:          enc.NumTags(),
		WordDim:          cfg.WordEmbedDim,
		CharDim:          cfg.CharEmbedDim,
		CNNOut:           cfg.CNNOut,
		MaxWordLen:       cfg.MaxWordLen,
		Cell:             cfg.Cell,
		Hidden:           cfg.RNNHidden,
		Layers:           cfg.RNNLayers,
		Bidirectional:    cfg.Bidirectional,
		LinearHidden:     cfg.LinearHidden,
		Dropout:          cfg.Dropout,
		FreezeEmbeddings: cfg.FreezeEmbeddings,
		AuxWeight:        cfg.AuxCEWeight,
		ClassWeights:     metrics.ClassWeights(trainSet.TagIDs(), enc.NumTags()+1),
		Workers:          env.Device.Workers,
	}
	log.Debug("Class weights", "weights", mcfg.ClassWeights)
	if cfg.Embeddings != "" {
		table, err := embeddings.LoadGloVe(cfg.Embeddings, enc.Words.Contains)
		if err != nil {
			return nil, fmt.Errorf("nerd: %w", err)
		}
		matrix, found := embeddings.Matrix(table, enc.Words)
		log.Info("Pretrained embeddings loaded", "path", cfg.Embeddings, "found", found, "vocabulary", enc.Words.Size())
		mcfg.Pretrained = matrix
	}
	m, err := model.New(mcfg, env.Rand(config.StreamInit))
	if err != nil {
		return nil, fmt.Errorf("nerd: %w: %w", config.ErrInvalid, err)
	}
	m.SetDropoutSource(env.Rand(config.StreamDropout))

	tracker := opts.Tracker
	if tracker == nil {
		if tracker, err = newTracker(cfg); err != nil {
			return nil, fmt.Errorf("nerd: %w", err)
		}
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			log.Warn("Closing tracker", "error", err)
		}
	}()
	if params, err := cfg.Params(); err == nil {
		if err := tracker.LogParams(params); err != nil {
			log.Warn("Tracker rejected params", "error", err)
		}
	}

	ctrl, err := train.NewController(env, m, nn.NewAdam(m.Parameters(), cfg.LearningRate, cfg.GradClip), trainSet, valSet, train.Options{
		OutsideID: enc.OutsideID(),
		Label:     enc.Tags.Symbol,
		Tracker:   tracker,
	})
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}
	history, err := ctrl.Run(cfg.Epochs)
	if err != nil {
		return nil, fmt.Errorf("nerd: %w", err)
	}

	res := &TrainResult{
		Tagger:  &Tagger{enc: enc, model: m, annotator: annotator},
		History: history,
		Report:  ctrl.Report(),
	}
	if err := res.save(cfg.ArtifactsDir, tracker); err != nil {
		return nil, err
	}
	log.Info("Artifacts written", "dir", cfg.ArtifactsDir)
	return res, nil
}

func (r *TrainResult) save(dir string, tracker tracking.Tracker) error {
	if err := r.Tagger.Save(dir); err != nil {
		return err
	}
	hist, err := r.History.JSON()
	if err != nil {
		return fmt.Errorf("nerd: %w", err)
	}
	report := []byte(r.Report.String())
	for name, data := range map[string][]byte{train.HistoryFile: hist, ReportFile: report} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("nerd: %w", err)
		}
		if err := tracker.LogArtifact(name, data); err != nil {
			return fmt.Errorf("nerd: %w", err)
		}
	}
	return nil
}

func newTracker(cfg Config) (tracking.Tracker, error) {
	var multi tracking.Multi
	if cfg.TrackingDir != "" {
		ft, err := tracking.NewFileTracker(cfg.TrackingDir)
		if err != nil {
			return nil, err
		}
		multi = append(multi, ft)
	}
	if cfg.MetricsTextfile != "" {
		multi = append(multi, tracking.NewPromTracker(cfg.MetricsTextfile))
	}
	if len(multi) == 0 {
		return tracking.Nop{}, nil
	}
	return multi, nil
}

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	BatchSize int
	Logger    *slog.Logger
}

// Evaluate scores a saved tagger on a labelled corpus. Padding and tags the
// tagger never saw count as the outside class.
func Evaluate(artifactsDir, dataPath string, cfg *EvalConfig) (Report, error) {
	batchSize := 64
	log := slog.Default()
	if cfg != nil {
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}
	t, err := Load(artifactsDir)
	if err != nil {
		return Report{}, err
	}
	sentences, err := corpus.NewStorage(dataPath, log).Sentences(corpus.DefaultIterOptions())
	if err != nil {
		return Report{}, fmt.Errorf("nerd: %w", err)
	}
	samples := features.Prepare(sentences, t.annotator, t.enc.MaxLen)
	d, err := t.enc.Encode(samples)
	if err != nil {
		return Report{}, fmt.Errorf("nerd: %w", err)
	}

	acc := metrics.NewAccumulator(t.enc.OutsideID())
	for _, rows := range features.Batches(d.Len(), batchSize, false, 0, 0) {
		batch := d.Subset(rows)
		paths, err := t.model.Decode(model.InputOf(batch))
		if err != nil {
			return Report{}, fmt.Errorf("nerd: %w", err)
		}
		for i, path := range paths {
			n := batch.Lengths[i]
			if err := acc.Add(batch.Tags.Row(i)[:n], path[:n]); err != nil {
				return Report{}, fmt.Errorf("nerd: %w", err)
			}
		}
	}
	if acc.Total() == 0 {
		return Report{}, errors.New("nerd: nothing to evaluate")
	}
	log.Info("Evaluated", "sentences", d.Len(), "tokens", acc.Total())
	return acc.Report(t.enc.Tags.Symbol), nil
}
