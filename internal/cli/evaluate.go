package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/nerd"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var artifacts, dataPath string
	var batchSize int

	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Score a trained tagger on a labelled corpus",
		Args:    cobra.NoArgs,
		Example: `  nerd evaluate --artifacts artifacts --data data/test.conll`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Evaluating", "artifacts", artifacts, "data", dataPath)
			start := time.Now()
			report, err := nerd.Evaluate(artifacts, dataPath, &nerd.EvalConfig{
				BatchSize: batchSize,
				Logger:    slog.Default(),
			})
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Token accuracy: %.1f%% (%d tokens)\n", report.Accuracy*100, report.Total)
			fmt.Printf("Macro F1: %.1f%%  Weighted F1: %.1f%%\n\n", report.Macro.F1*100, report.Weighted.F1*100)
			fmt.Print(report.String())
			printConfusionMatrix(os.Stdout, report.Confusion, report.Labels())
			return nil
		},
	}

	cmd.Flags().StringVar(&artifacts, "artifacts", "artifacts", "Folder holding the trained model and vocabularies")
	cmd.Flags().StringVar(&dataPath, "data", "data", "Labelled corpus file or folder")
	cmd.Flags().IntVar(&batchSize, "batch-size", 64, "Sentences per batch")
	return cmd
}

// printConfusionMatrix writes the matrix with the busiest true classes first.
func printConfusionMatrix(w io.Writer, confusion map[string]map[string]int, classes []string) {
	if len(confusion) == 0 {
		return
	}
	classes = append([]string(nil), classes...)
	rowTotal := func(cls string) int {
		t := 0
		for _, v := range confusion[cls] {
			t += v
		}
		return t
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return rowTotal(classes[i]) > rowTotal(classes[j])
	})

	width := 8
	for _, cls := range classes {
		width = max(width, len(cls))
	}

	_, _ = fmt.Fprintf(w, "\nConfusion matrix (rows=true, cols=predicted):\n")
	_, _ = fmt.Fprintf(w, "%*s", width, "")
	for _, cls := range classes {
		_, _ = fmt.Fprintf(w, " %*s", width, cls)
	}
	_, _ = fmt.Fprintf(w, "  total  acc%%\n")

	for _, truth := range classes {
		_, _ = fmt.Fprintf(w, "%*s", width, truth)
		total, correct := 0, 0
		for _, pred := range classes {
			n := confusion[truth][pred]
			total += n
			if truth == pred {
				correct = n
			}
			if n == 0 {
				_, _ = fmt.Fprintf(w, " %*s", width, ".")
			} else {
				_, _ = fmt.Fprintf(w, " %*d", width, n)
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(correct) / float64(total) * 100
		}
		_, _ = fmt.Fprintf(w, "  %5d %5.1f\n", total, acc)
	}
}
