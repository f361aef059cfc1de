// Package linear provides the linear transform a hidden layer owns its
// weights through. The layer holds the parameter values; this package
// does the matrix-multiply mechanics.
package linear

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// MatrixMul multiplies batches by an owned weight matrix W of shape
// (in, out). Apply and ApplyT are exact transposes of one another,
// which is what keeps downward messages consistent with the pairwise
// energy term.
type MatrixMul struct {
	w *tensor.Dense
}

// New takes ownership of a 2-D weight tensor.
func New(w *tensor.Dense) (*MatrixMul, error) {
	if w == nil {
		return nil, errors.New("nil weight tensor")
	}
	if len(w.Shape()) != 2 {
		return nil, errors.Errorf("weights must be a matrix, got shape %v", w.Shape())
	}
	return &MatrixMul{w: w}, nil
}

// Apply computes x·W for a (batch, in) input, yielding (batch, out).
func (m *MatrixMul) Apply(x *tensor.Dense) (*tensor.Dense, error) {
	if x == nil {
		return nil, errors.New("nil input")
	}
	if len(x.Shape()) != 2 || x.Shape()[1] != m.w.Shape()[0] {
		return nil, errors.Errorf("cannot multiply batch of shape %v by weights of shape %v", x.Shape(), m.w.Shape())
	}
	prod, err := tensor.MatMul(x, m.w)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return prod.(*tensor.Dense), nil
}

// ApplyT computes x·Wᵀ for a (batch, out) input, yielding (batch, in).
func (m *MatrixMul) ApplyT(x *tensor.Dense) (*tensor.Dense, error) {
	if x == nil {
		return nil, errors.New("nil input")
	}
	if len(x.Shape()) != 2 || x.Shape()[1] != m.w.Shape()[1] {
		return nil, errors.Errorf("cannot multiply batch of shape %v by transposed weights of shape %v", x.Shape(), m.w.Shape())
	}
	wT, err := tensor.Transpose(m.w)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	prod, err := tensor.MatMul(x, wT)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return prod.(*tensor.Dense), nil
}

// Params returns the owned parameter tensors. Mutating them mutates
// the transform.
func (m *MatrixMul) Params() []*tensor.Dense { return []*tensor.Dense{m.w} }
