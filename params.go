package ising

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/ising/space"
)

// Params returns the owned parameter tensors, weights first.
func (l *Hidden) Params() []*tensor.Dense {
	if l.xfer == nil {
		return []*tensor.Dense{l.b}
	}
	return append(l.xfer.Params(), l.b)
}

// Weights returns a copy of W. With a topological input space the
// design-space layout of the weights is not known, so there is no flat
// view to hand out.
func (l *Hidden) Weights() (*tensor.Dense, error) {
	if l.xfer == nil {
		return nil, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	if l.requiresReformat {
		return nil, errors.Errorf("layer %s: weights over a topological input space have no flat view; use WeightsTopo", l.Name)
	}
	return l.xfer.Params()[0].Clone().(*tensor.Dense), nil
}

// SetWeights overwrites W in place.
func (l *Hidden) SetWeights(weights *tensor.Dense) error {
	if l.xfer == nil {
		return errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	w := l.xfer.Params()[0]
	if weights == nil || !weights.Shape().Eq(w.Shape()) {
		return errors.Errorf("layer %s: weights have shape %v, want %v", l.Name, weights.Shape(), w.Shape())
	}
	copy(w.Data().([]float64), weights.Data().([]float64))
	return nil
}

// Biases returns a copy of the bias vector.
func (l *Hidden) Biases() []float64 {
	bs := l.b.Data().([]float64)
	retVal := make([]float64, len(bs))
	copy(retVal, bs)
	return retVal
}

// SetBiases overwrites the bias vector in place. recenter recomputes a
// centering offset, which this layer does not carry, so it must be
// false.
func (l *Hidden) SetBiases(biases []float64, recenter bool) error {
	if len(biases) != l.Dim {
		return errors.Errorf("layer %s has %d units, got %d biases", l.Name, l.Dim, len(biases))
	}
	if recenter {
		return errors.Errorf("layer %s: recenter: centering is not enabled on this layer", l.Name)
	}
	copy(l.b.Data().([]float64), biases)
	return nil
}

// WeightDecay returns coeff · ΣW², the L2 penalty the optimizer adds
// to its loss.
func (l *Hidden) WeightDecay(coeff float64) (float64, error) {
	if l.xfer == nil {
		return 0, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	var sum float64
	for _, v := range l.xfer.Params()[0].Data().([]float64) {
		sum += v * v
	}
	return coeff * sum, nil
}

// LRScalers returns per-parameter learning rate multipliers, keyed by
// the owned parameter tensors. Parameters without an entry use the
// optimizer's global rate.
func (l *Hidden) LRScalers() map[*tensor.Dense]float64 {
	retVal := make(map[*tensor.Dense]float64)
	if l.WLRScale > 0 && l.xfer != nil {
		retVal[l.xfer.Params()[0]] = l.WLRScale
	}
	if l.BLRScale > 0 {
		retVal[l.b] = l.BLRScale
	}
	return retVal
}

// CensorUpdates rescales the columns of a weight value the optimizer
// proposes, in place, so no column's L2 norm exceeds MaxColNorm:
//
//	col ← col · min(1, MaxColNorm / (‖col‖ + ε))
//
// Columns already under the bound are left untouched, which also makes
// the projection idempotent. updates maps each owned parameter to its
// proposed new value; parameters not in the map are ignored.
func (l *Hidden) CensorUpdates(updates map[*tensor.Dense]*tensor.Dense) error {
	if l.MaxColNorm == 0 || l.xfer == nil {
		return nil
	}
	w := l.xfer.Params()[0]
	proposed, ok := updates[w]
	if !ok {
		return nil
	}
	if proposed == nil || !proposed.Shape().Eq(w.Shape()) {
		return errors.Errorf("layer %s: proposed weights have shape %v, want %v", l.Name, proposed.Shape(), w.Shape())
	}
	pd := proposed.Data().([]float64)
	rows, cols := w.Shape()[0], w.Shape()[1]
	for j := 0; j < cols; j++ {
		var sq float64
		for i := 0; i < rows; i++ {
			v := pd[i*cols+j]
			sq += v * v
		}
		norm := math.Sqrt(sq)
		if norm <= l.MaxColNorm {
			continue
		}
		scale := l.MaxColNorm / (normEps + norm)
		for i := 0; i < rows; i++ {
			pd[i*cols+j] *= scale
		}
	}
	return nil
}

// WeightsFormat reports the axis order of the weight matrix: visible
// dim first, hidden dim second.
func (l *Hidden) WeightsFormat() []string { return []string{"v", "h"} }

// WeightsTopo returns the weights reshaped into the topology of the
// input space, one (rows, cols, chans) tile per hidden unit, shaped
// (dim, rows, cols, chans). Only layers over a Conv2D input space have
// a topological view.
func (l *Hidden) WeightsTopo() (*tensor.Dense, error) {
	if l.xfer == nil {
		return nil, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	conv, ok := l.inputSpace.(space.Conv2D)
	if !ok {
		return nil, errors.Errorf("layer %s: weights over a %T input space have no topological view", l.Name, l.inputSpace)
	}
	wT, err := tensor.Transpose(l.xfer.Params()[0])
	if err != nil {
		return nil, errors.WithStack(err)
	}
	retVal := wT.(*tensor.Dense)
	if err := retVal.Reshape(l.Dim, conv.Rows, conv.Cols, conv.Chans); err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}
