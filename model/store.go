package model

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/happyhackingspace/nerd/crf"
)

// File is the artifact name used by Save.
const File = "model.json"

type paramJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

type modelJSON struct {
	Config Config               `json:"config"`
	Params map[string]paramJSON `json:"params"`
	CRF    *crf.CRF             `json:"crf"`
}

// MarshalJSON encodes the configuration and every parameter value.
func (m *Model) MarshalJSON() ([]byte, error) {
	out := modelJSON{Config: m.Config, Params: make(map[string]paramJSON), CRF: m.CRF}
	for _, p := range m.Parameters() {
		if strings.HasPrefix(p.Name, "crf.") {
			continue
		}
		out.Params[p.Name] = paramJSON{Shape: p.Value.Shape, Data: p.Value.Data}
	}
	return json.Marshal(out)
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load rebuilds a model written by Save. workers bounds the CRF fan-out.
func Load(path string, workers int) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mj modelJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	mj.Config.Workers = workers
	m, err := New(mj.Config, rand.New(rand.NewPCG(0, 0)))
	if err != nil {
		return nil, err
	}
	for _, p := range m.Parameters() {
		if strings.HasPrefix(p.Name, "crf.") {
			continue
		}
		saved, ok := mj.Params[p.Name]
		if !ok {
			return nil, fmt.Errorf("%s: missing parameter %s", path, p.Name)
		}
		if len(saved.Data) != len(p.Value.Data) {
			return nil, fmt.Errorf("%s: parameter %s has %d values, want %d", path, p.Name, len(saved.Data), len(p.Value.Data))
		}
		copy(p.Value.Data, saved.Data)
	}
	m.word.Weight.Frozen = mj.Config.FreezeEmbeddings
	if mj.CRF == nil || mj.CRF.NumLabels != mj.Config.Labels() {
		return nil, fmt.Errorf("%s: missing or mismatched crf", path)
	}
	mj.CRF.Workers = m.CRF.Workers
	m.CRF = mj.CRF
	return m, nil
}
