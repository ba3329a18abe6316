package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/happyhackingspace/nerd"
)

// defaultConfigFile is picked up by train when --config is not given.
const defaultConfigFile = "config.yml"

func (c *CLI) newTrainCommand() *cobra.Command {
	var configPath string
	cfg := nerd.DefaultConfig()
	cfg.DataPath = "data"

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a tagger on a tagged corpus",
		Args:  cobra.NoArgs,
		Example: `  nerd train --data data/train.conll
  nerd train --config config.yml --epochs 20 --cell gru
  nerd train --data data --embeddings glove.6B.100d.txt --word-dim 100 --freeze-embeddings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConfig(configPath, cfg, cmd.Flags())
			if err != nil {
				return err
			}
			slog.Info("Training tagger", "data", resolved.DataPath, "artifacts", resolved.ArtifactsDir, "epochs", resolved.Epochs)
			start := time.Now()
			res, err := nerd.Train(resolved, &nerd.TrainOptions{Logger: slog.Default()})
			if err != nil {
				return err
			}
			n := res.History.Epochs()
			slog.Info("Model saved", "dir", resolved.ArtifactsDir, "duration", time.Since(start).Round(time.Millisecond),
				"val_f1", res.History.Validation.F1[n-1],
				"val_accuracy", res.History.Validation.Accuracy[n-1])
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file; explicit flags override it")
	bindTrainFlags(cmd.Flags(), &cfg)
	return cmd
}

func bindTrainFlags(fs *pflag.FlagSet, cfg *nerd.Config) {
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Corpus file or folder")
	fs.StringVar(&cfg.ArtifactsDir, "artifacts", cfg.ArtifactsDir, "Output folder for the model and vocabularies")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Number of epochs")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Sentences per batch")
	fs.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "Adam learning rate")
	fs.Float64Var(&cfg.GradClip, "grad-clip", cfg.GradClip, "Clip gradients to [-v, v]; 0 disables")
	fs.Float64Var(&cfg.ValSplit, "val-split", cfg.ValSplit, "Fraction of sentences held out for validation")
	fs.IntVar(&cfg.MaxSentenceLen, "max-len", cfg.MaxSentenceLen, "Maximum sentence length in tokens")
	fs.IntVar(&cfg.MaxWordLen, "max-word-len", cfg.MaxWordLen, "Maximum word length in characters")
	fs.IntVar(&cfg.WordEmbedDim, "word-dim", cfg.WordEmbedDim, "Word embedding size")
	fs.IntVar(&cfg.CharEmbedDim, "char-dim", cfg.CharEmbedDim, "Character embedding size")
	fs.IntVar(&cfg.CNNOut, "cnn-out", cfg.CNNOut, "Character CNN filters")
	fs.StringVar(&cfg.Cell, "cell", cfg.Cell, "Recurrent cell: LSTM or GRU")
	fs.IntVar(&cfg.RNNHidden, "hidden", cfg.RNNHidden, "Recurrent hidden size")
	fs.IntVar(&cfg.RNNLayers, "layers", cfg.RNNLayers, "Recurrent layers")
	fs.BoolVar(&cfg.Bidirectional, "bidirectional", cfg.Bidirectional, "Run the recurrent layers in both directions")
	fs.IntVar(&cfg.LinearHidden, "linear-hidden", cfg.LinearHidden, "Size of the first linear layer")
	fs.Float64Var(&cfg.Dropout, "dropout", cfg.Dropout, "Dropout ratio")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Compute device: auto, cpu or cuda")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel workers; 0 uses every core")
	fs.StringVar(&cfg.Embeddings, "embeddings", cfg.Embeddings, "GloVe text file with pretrained word vectors")
	fs.BoolVar(&cfg.FreezeEmbeddings, "freeze-embeddings", cfg.FreezeEmbeddings, "Keep pretrained vectors fixed")
	fs.Float64Var(&cfg.AuxCEWeight, "aux-ce", cfg.AuxCEWeight, "Weight of the auxiliary class-weighted cross-entropy")
	fs.BoolVar(&cfg.ReproducePOSBug, "reproduce-pos-bug", cfg.ReproducePOSBug, "Take validation POS tags from the training split")
	fs.StringVar(&cfg.TrackingDir, "tracking-dir", cfg.TrackingDir, "Folder for per-run tracking output")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Prometheus textfile to rewrite every epoch")
}

// resolveConfig returns the flag config when no file is in play. Otherwise
// the file is loaded and every flag the user set explicitly is applied on top.
func resolveConfig(path string, flags nerd.Config, fs *pflag.FlagSet) (nerd.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path == "" {
		return flags, nil
	}
	cfg, err := nerd.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	slog.Debug("Config loaded", "path", path)

	over := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	bindTrainFlags(over, &cfg)
	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if setErr != nil || over.Lookup(f.Name) == nil {
			return
		}
		setErr = over.Set(f.Name, f.Value.String())
	})
	return cfg, setErr
}
