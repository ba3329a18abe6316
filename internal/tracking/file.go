package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileTracker writes one run into <root>/<run id>/: params.json,
// metrics.jsonl (one line per epoch) and artifacts/.
type FileTracker struct {
	ID  string
	Dir string

	mu      sync.Mutex
	metrics *os.File
}

type metricsLine struct {
	Epoch   int                `json:"epoch"`
	Time    time.Time          `json:"time"`
	Metrics map[string]float64 `json:"metrics"`
}

// NewFileTracker creates a run directory named by a fresh uuid under root.
func NewFileTracker(root string) (*FileTracker, error) {
	id := uuid.New().String()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, "metrics.jsonl"))
	if err != nil {
		return nil, err
	}
	return &FileTracker{ID: id, Dir: dir, metrics: f}, nil
}

func (t *FileTracker) LogParams(params map[string]any) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return os.WriteFile(filepath.Join(t.Dir, "params.json"), data, 0644)
}

func (t *FileTracker) LogMetrics(epoch int, metrics map[string]float64) error {
	line, err := json.Marshal(metricsLine{Epoch: epoch, Time: time.Now().UTC(), Metrics: metrics})
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.metrics.Write(append(line, '\n'))
	return err
}

func (t *FileTracker) LogArtifact(name string, data []byte) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("artifact name %q must not contain a path", name)
	}
	return os.WriteFile(filepath.Join(t.Dir, "artifacts", name), data, 0644)
}

func (t *FileTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics.Close()
}
