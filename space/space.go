// Package space describes the spaces layer states live in. A space is
// per-example shape metadata: batches are dense arrays whose leading
// axis indexes examples, and a space tells a layer how the remaining
// axes are laid out.
package space

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Space is the shape descriptor of a single example.
type Space interface {
	// TotalDim is the number of elements one example occupies.
	TotalDim() int

	// Validate checks that a batch belongs to this space.
	Validate(batch *tensor.Dense) error
}

// Vector is a flat space of Dim real values per example. Batches in a
// Vector space are 2-D, shaped (batch, Dim).
type Vector struct {
	Dim int
}

func (s Vector) TotalDim() int { return s.Dim }

func (s Vector) Validate(batch *tensor.Dense) error {
	if batch == nil {
		return errors.New("nil batch")
	}
	sh := batch.Shape()
	if len(sh) != 2 {
		return errors.Errorf("vector space wants a 2-D batch, got shape %v", sh)
	}
	if sh[1] != s.Dim {
		return errors.Errorf("vector space has dim %d, got batch of shape %v", s.Dim, sh)
	}
	return nil
}

// Conv2D is a topological space: each example is a Rows×Cols image
// with Chans channels, stored (batch, row, col, channel).
type Conv2D struct {
	Rows, Cols, Chans int
}

func (s Conv2D) TotalDim() int { return s.Rows * s.Cols * s.Chans }

func (s Conv2D) Validate(batch *tensor.Dense) error {
	if batch == nil {
		return errors.New("nil batch")
	}
	sh := batch.Shape()
	if len(sh) != 4 {
		return errors.Errorf("topological space wants a 4-D batch, got shape %v", sh)
	}
	if sh[1] != s.Rows || sh[2] != s.Cols || sh[3] != s.Chans {
		return errors.Errorf("topological space is %dx%dx%d, got batch of shape %v", s.Rows, s.Cols, s.Chans, sh)
	}
	return nil
}

// FormatAs reshapes a batch from one space into another of the same
// total dimension. Element order is preserved, so formatting there and
// back round-trips exactly.
func FormatAs(batch *tensor.Dense, from, to Space) (*tensor.Dense, error) {
	if err := from.Validate(batch); err != nil {
		return nil, errors.Wrap(err, "format as")
	}
	if from.TotalDim() != to.TotalDim() {
		return nil, errors.Errorf("cannot format a batch from a %d-dim space into a %d-dim space", from.TotalDim(), to.TotalDim())
	}
	n := batch.Shape()[0]
	var shape []int
	switch to := to.(type) {
	case Vector:
		shape = []int{n, to.Dim}
	case Conv2D:
		shape = []int{n, to.Rows, to.Cols, to.Chans}
	default:
		return nil, errors.Errorf("unknown space type %T", to)
	}
	retVal := batch.Clone().(*tensor.Dense)
	if err := retVal.Reshape(shape...); err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}
