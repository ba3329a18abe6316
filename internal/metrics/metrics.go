// Package metrics scores tag predictions. Padding id 0 is never a class:
// before counting, padding in both the truth and the prediction is remapped to
// the outside class.
package metrics

import (
	"fmt"
	"slices"
)

// PadID is the padding tag id.
const PadID = 0

// Scores holds accuracy and macro-averaged precision, recall and F1.
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Remap returns a copy of ids with PadID replaced by outsideID.
func Remap(ids []int, outsideID int) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		if id == PadID {
			id = outsideID
		}
		out[i] = id
	}
	return out
}

// Evaluate scores pred against truth after remapping padding to outsideID.
// Classes are those present in either sequence, padding excluded; a class
// with an empty denominator scores 0.
func Evaluate(truth, pred []int, outsideID int) (Scores, error) {
	a := NewAccumulator(outsideID)
	if err := a.Add(truth, pred); err != nil {
		return Scores{}, err
	}
	return a.Scores(), nil
}

// Accumulator keeps running confusion counts. Scores computed from it equal
// Evaluate over everything added since the last Reset.
type Accumulator struct {
	Outside int

	confusion map[[2]int]int
	truth     map[int]int
	pred      map[int]int
	total     int
	correct   int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator(outsideID int) *Accumulator {
	a := &Accumulator{Outside: outsideID}
	a.Reset()
	return a
}

// Reset clears every count.
func (a *Accumulator) Reset() {
	a.confusion = make(map[[2]int]int)
	a.truth = make(map[int]int)
	a.pred = make(map[int]int)
	a.total, a.correct = 0, 0
}

// Add counts one aligned pair of id sequences.
func (a *Accumulator) Add(truth, pred []int) error {
	if len(truth) != len(pred) {
		return fmt.Errorf("metrics: %d truth ids, %d predictions", len(truth), len(pred))
	}
	for i := range truth {
		t, p := truth[i], pred[i]
		if t == PadID {
			t = a.Outside
		}
		if p == PadID {
			p = a.Outside
		}
		a.confusion[[2]int{t, p}]++
		a.truth[t]++
		a.pred[p]++
		a.total++
		if t == p {
			a.correct++
		}
	}
	return nil
}

// Total returns the number of pairs counted.
func (a *Accumulator) Total() int { return a.total }

// Classes returns the sorted class ids seen in truth or prediction, padding
// excluded.
func (a *Accumulator) Classes() []int {
	var ids []int
	for id := range a.truth {
		ids = append(ids, id)
	}
	for id := range a.pred {
		if _, ok := a.truth[id]; !ok {
			ids = append(ids, id)
		}
	}
	ids = slices.DeleteFunc(ids, func(id int) bool { return id == PadID })
	slices.Sort(ids)
	return ids
}

// Class returns precision, recall, F1 and support of one class.
func (a *Accumulator) Class(id int) (precision, recall, f1 float64, support int) {
	tp := a.confusion[[2]int{id, id}]
	support = a.truth[id]
	precision = ratio(tp, a.pred[id])
	recall = ratio(tp, support)
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1, support
}

// Count returns how often truth id t was predicted as p.
func (a *Accumulator) Count(t, p int) int {
	return a.confusion[[2]int{t, p}]
}

// Scores returns accuracy and macro averages over Classes.
func (a *Accumulator) Scores() Scores {
	s := Scores{Accuracy: ratio(a.correct, a.total)}
	classes := a.Classes()
	if len(classes) == 0 {
		return s
	}
	for _, id := range classes {
		p, r, f, _ := a.Class(id)
		s.Precision += p
		s.Recall += r
		s.F1 += f
	}
	n := float64(len(classes))
	s.Precision /= n
	s.Recall /= n
	s.F1 /= n
	return s
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
