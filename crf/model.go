package crf

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/happyhackingspace/nerd/internal/nn"
	"github.com/happyhackingspace/nerd/internal/tensor"
)

type modelJSON struct {
	NumLabels   int       `json:"num_labels"`
	Transitions []float64 `json:"transitions"`
	Start       []float64 `json:"start_transitions"`
	End         []float64 `json:"end_transitions"`
}

// MarshalJSON encodes the potentials.
func (c *CRF) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{
		NumLabels:   c.NumLabels,
		Transitions: c.Transitions.Value.Data,
		Start:       c.Start.Value.Data,
		End:         c.End.Value.Data,
	})
}

// UnmarshalJSON decodes potentials written by MarshalJSON.
func (c *CRF) UnmarshalJSON(data []byte) error {
	var m modelJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	L := m.NumLabels
	if L <= 0 || len(m.Transitions) != L*L || len(m.Start) != L || len(m.End) != L {
		return fmt.Errorf("crf: inconsistent model with %d labels", L)
	}
	c.NumLabels = L
	c.Transitions = loadParam("crf.transitions", m.Transitions, L, L)
	c.Start = loadParam("crf.start_transitions", m.Start, L)
	c.End = loadParam("crf.end_transitions", m.End, L)
	if c.Workers == 0 {
		c.Workers = 1
	}
	return nil
}

func loadParam(name string, data []float64, shape ...int) *nn.Param {
	p := nn.NewParam(name, shape...)
	p.Value, _ = tensor.FromData(data, shape...)
	return p
}

// SaveModel serializes the CRF to JSON.
func SaveModel(c *CRF, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel deserializes a CRF from JSON.
func LoadModel(path string) (*CRF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c CRF
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
