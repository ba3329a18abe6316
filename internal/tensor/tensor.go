// Package tensor provides the dense row-major arrays that flow between the
// encoders, the network layers and the CRF.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense is a row-major float64 array with an explicit shape.
type Dense struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// New allocates a zero-filled Dense of the given shape.
func New(shape ...int) *Dense {
	return &Dense{Shape: append([]int(nil), shape...), Data: make([]float64, size(shape))}
}

// FromData wraps data with the given shape. The slice is not copied.
func FromData(data []float64, shape ...int) (*Dense, error) {
	if n := size(shape); n != len(data) {
		return nil, fmt.Errorf("tensor: shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Dense{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Len returns the number of elements.
func (d *Dense) Len() int { return len(d.Data) }

// Dim returns the size of axis i.
func (d *Dense) Dim(i int) int { return d.Shape[i] }

// At returns the element at the given index.
func (d *Dense) At(idx ...int) float64 { return d.Data[offset(d.Shape, idx)] }

// Set stores v at the given index.
func (d *Dense) Set(v float64, idx ...int) { d.Data[offset(d.Shape, idx)] = v }

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	return &Dense{Shape: append([]int(nil), d.Shape...), Data: append([]float64(nil), d.Data...)}
}

// Zero sets every element to 0.
func (d *Dense) Zero() {
	clear(d.Data)
}

// Reshape returns a view sharing d's data with a new shape.
func (d *Dense) Reshape(shape ...int) (*Dense, error) {
	return FromData(d.Data, shape...)
}

// Rows returns the product of all axes but the last.
func (d *Dense) Rows() int {
	if len(d.Shape) == 0 {
		return 0
	}
	return len(d.Data) / d.Shape[len(d.Shape)-1]
}

// Cols returns the size of the last axis.
func (d *Dense) Cols() int {
	if len(d.Shape) == 0 {
		return 0
	}
	return d.Shape[len(d.Shape)-1]
}

// Row returns the i-th row of the flattened (Rows, Cols) view.
func (d *Dense) Row(i int) []float64 {
	c := d.Cols()
	return d.Data[i*c : (i+1)*c]
}

// Matrix returns a gonum view of d flattened to (Rows, Cols). Writes through
// the view are visible in d.
func (d *Dense) Matrix() *mat.Dense {
	return mat.NewDense(d.Rows(), d.Cols(), d.Data)
}

// AddInPlace adds o element-wise into d.
func (d *Dense) AddInPlace(o *Dense) {
	for i, v := range o.Data {
		d.Data[i] += v
	}
}

// ExtendAxis1 returns a copy of d whose axis 1 is right-padded with zeros to
// width n. If d is already n wide it is returned unchanged.
func (d *Dense) ExtendAxis1(n int) *Dense {
	if len(d.Shape) < 2 || d.Shape[1] >= n {
		return d
	}
	shape := append([]int(nil), d.Shape...)
	shape[1] = n
	out := New(shape...)
	inner := size(d.Shape[2:])
	oldStride := d.Shape[1] * inner
	newStride := n * inner
	for b := range d.Shape[0] {
		copy(out.Data[b*newStride:], d.Data[b*oldStride:(b+1)*oldStride])
	}
	return out
}

// Index is a row-major int array, used for token, character and tag ids.
type Index struct {
	Shape []int `json:"shape"`
	Data  []int `json:"data"`
}

// NewIndex allocates a zero-filled Index of the given shape.
func NewIndex(shape ...int) *Index {
	return &Index{Shape: append([]int(nil), shape...), Data: make([]int, size(shape))}
}

// Len returns the number of elements.
func (x *Index) Len() int { return len(x.Data) }

// Dim returns the size of axis i.
func (x *Index) Dim(i int) int { return x.Shape[i] }

// At returns the element at the given index.
func (x *Index) At(idx ...int) int { return x.Data[offset(x.Shape, idx)] }

// Set stores v at the given index.
func (x *Index) Set(v int, idx ...int) { x.Data[offset(x.Shape, idx)] = v }

// Clone returns a deep copy.
func (x *Index) Clone() *Index {
	return &Index{Shape: append([]int(nil), x.Shape...), Data: append([]int(nil), x.Data...)}
}

// Row returns row i of a 2-D index.
func (x *Index) Row(i int) []int {
	c := x.Shape[len(x.Shape)-1]
	return x.Data[i*c : (i+1)*c]
}

// ExtendAxis1 is the Index counterpart of Dense.ExtendAxis1.
func (x *Index) ExtendAxis1(n int) *Index {
	if len(x.Shape) < 2 || x.Shape[1] >= n {
		return x
	}
	shape := append([]int(nil), x.Shape...)
	shape[1] = n
	out := NewIndex(shape...)
	inner := size(x.Shape[2:])
	oldStride := x.Shape[1] * inner
	newStride := n * inner
	for b := range x.Shape[0] {
		copy(out.Data[b*newStride:], x.Data[b*oldStride:(b+1)*oldStride])
	}
	return out
}

// Gather returns the rows of x (along axis 0) listed in rows, in order.
func (x *Index) Gather(rows []int) *Index {
	shape := append([]int(nil), x.Shape...)
	shape[0] = len(rows)
	out := NewIndex(shape...)
	stride := size(x.Shape[1:])
	for i, r := range rows {
		copy(out.Data[i*stride:(i+1)*stride], x.Data[r*stride:(r+1)*stride])
	}
	return out
}

// Gather returns the rows of d (along axis 0) listed in rows, in order.
func (d *Dense) Gather(rows []int) *Dense {
	shape := append([]int(nil), d.Shape...)
	shape[0] = len(rows)
	out := New(shape...)
	stride := size(d.Shape[1:])
	for i, r := range rows {
		copy(out.Data[i*stride:(i+1)*stride], d.Data[r*stride:(r+1)*stride])
	}
	return out
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func offset(shape, idx []int) int {
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("tensor: index %v does not match shape %v", idx, shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, shape))
		}
		off = off*shape[i] + v
	}
	return off
}

// ConcatLast concatenates tensors that agree on every axis but the last.
func ConcatLast(ts ...*Dense) *Dense {
	rows := ts[0].Rows()
	width := 0
	for _, t := range ts {
		width += t.Cols()
	}
	shape := append([]int(nil), ts[0].Shape...)
	shape[len(shape)-1] = width
	out := New(shape...)
	for r := range rows {
		dst := out.Data[r*width : (r+1)*width]
		off := 0
		for _, t := range ts {
			off += copy(dst[off:], t.Row(r))
		}
	}
	return out
}

// SplitLast is the inverse of ConcatLast.
func SplitLast(d *Dense, widths ...int) []*Dense {
	rows := d.Rows()
	out := make([]*Dense, len(widths))
	for i, w := range widths {
		shape := append([]int(nil), d.Shape...)
		shape[len(shape)-1] = w
		out[i] = New(shape...)
	}
	for r := range rows {
		src := d.Row(r)
		off := 0
		for i, w := range widths {
			copy(out[i].Row(r), src[off:off+w])
			off += w
		}
	}
	return out
}
