package metrics

import (
	"fmt"
	"strings"
)

// ClassScore is one row of a classification report.
type ClassScore struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a label-wise classification report.
type Report struct {
	Classes  []ClassScore `json:"classes"`
	Accuracy float64      `json:"accuracy"`
	Macro    ClassScore   `json:"macro_avg"`
	Weighted ClassScore   `json:"weighted_avg"`
	Total    int          `json:"total"`

	// Confusion[truth][pred] counts, keyed by label.
	Confusion map[string]map[string]int `json:"confusion"`
}

// Report builds a classification report, naming classes with label.
func (a *Accumulator) Report(label func(id int) string) Report {
	classes := a.Classes()
	r := Report{
		Accuracy:  ratio(a.correct, a.total),
		Total:     a.total,
		Macro:     ClassScore{Label: "macro avg"},
		Weighted:  ClassScore{Label: "weighted avg"},
		Confusion: make(map[string]map[string]int),
	}
	for _, id := range classes {
		p, rec, f, support := a.Class(id)
		r.Classes = append(r.Classes, ClassScore{Label: label(id), Precision: p, Recall: rec, F1: f, Support: support})
		r.Macro.Precision += p
		r.Macro.Recall += rec
		r.Macro.F1 += f
		r.Macro.Support += support
		w := float64(support)
		r.Weighted.Precision += p * w
		r.Weighted.Recall += rec * w
		r.Weighted.F1 += f * w
		r.Weighted.Support += support
	}
	if n := float64(len(classes)); n > 0 {
		r.Macro.Precision /= n
		r.Macro.Recall /= n
		r.Macro.F1 /= n
	}
	if w := float64(r.Weighted.Support); w > 0 {
		r.Weighted.Precision /= w
		r.Weighted.Recall /= w
		r.Weighted.F1 /= w
	}
	for k, n := range a.confusion {
		t, p := label(k[0]), label(k[1])
		if r.Confusion[t] == nil {
			r.Confusion[t] = make(map[string]int)
		}
		r.Confusion[t][p] += n
	}
	return r
}

// Labels returns the class labels in report order.
func (r Report) Labels() []string {
	out := make([]string, len(r.Classes))
	for i, c := range r.Classes {
		out[i] = c.Label
	}
	return out
}

// String renders the report as an aligned text table.
func (r Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		width = max(width, len(c.Label))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	for _, c := range []ClassScore{r.Macro, r.Weighted} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return b.String()
}
