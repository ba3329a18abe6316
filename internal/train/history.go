package train

import (
	"encoding/json"
	"os"

	"github.com/happyhackingspace/nerd/internal/metrics"
)

// Series holds one value per completed epoch for each scalar.
type Series struct {
	Loss      []float64 `json:"loss"`
	Accuracy  []float64 `json:"accuracy"`
	Precision []float64 `json:"precision"`
	Recall    []float64 `json:"recall"`
	F1        []float64 `json:"f1"`
}

func (s *Series) add(loss float64, sc metrics.Scores) {
	s.Loss = append(s.Loss, loss)
	s.Accuracy = append(s.Accuracy, sc.Accuracy)
	s.Precision = append(s.Precision, sc.Precision)
	s.Recall = append(s.Recall, sc.Recall)
	s.F1 = append(s.F1, sc.F1)
}

// Len returns the number of recorded epochs.
func (s *Series) Len() int { return len(s.Loss) }

// History is the per-epoch record of a run.
type History struct {
	Train      Series `json:"train"`
	Validation Series `json:"validation"`
}

// Epochs returns the number of fully completed epochs.
func (h *History) Epochs() int { return min(h.Train.Len(), h.Validation.Len()) }

// HistoryFile is the artifact name of a saved history.
const HistoryFile = "history.json"

// JSON encodes the history.
func (h *History) JSON() ([]byte, error) {
	return json.MarshalIndent(h, "", "  ")
}

// Save writes the history as JSON.
func (h *History) Save(path string) error {
	data, err := h.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
