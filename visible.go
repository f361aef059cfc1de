package ising

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/ising/space"
)

// Visible is the boundary layer of the stack: a vector of ±1 units
// with energy term -bᵀv and no weights of its own.
type Visible struct {
	nvis  int
	bias  *tensor.Dense // (nvis,)
	space space.Vector
}

// NewVisible builds a visible layer of nvis units. If biasFromMarginals
// is non-nil its column means seed the bias via
// InitTanhBiasFromMarginals; otherwise the bias starts at zero.
func NewVisible(nvis int, biasFromMarginals *tensor.Dense) (*Visible, error) {
	if nvis < 1 {
		return nil, errors.Errorf("visible layer needs at least 1 unit, got %d", nvis)
	}
	backing := make([]float64, nvis)
	if biasFromMarginals != nil {
		b, err := InitTanhBiasFromMarginals(biasFromMarginals)
		if err != nil {
			return nil, errors.Wrap(err, "visible bias from marginals")
		}
		if len(b) != nvis {
			return nil, errors.Errorf("marginal dataset has %d columns, visible layer has %d units", len(b), nvis)
		}
		backing = b
	}
	return &Visible{
		nvis:  nvis,
		bias:  tensor.New(tensor.WithShape(nvis), tensor.WithBacking(backing)),
		space: space.Vector{Dim: nvis},
	}, nil
}

// NVis is the dimension of the layer.
func (l *Visible) NVis() int { return l.nvis }

// Space is the vector space the layer's states live in.
func (l *Visible) Space() space.Space { return l.space }

func (l *Visible) UpwardState(total *tensor.Dense) *tensor.Dense   { return total }
func (l *Visible) DownwardState(total *tensor.Dense) *tensor.Dense { return total }

// Params returns the owned bias tensor.
func (l *Visible) Params() []*tensor.Dense { return []*tensor.Dense{l.bias} }

// Biases returns a copy of the bias vector.
func (l *Visible) Biases() []float64 {
	bs := l.bias.Data().([]float64)
	retVal := make([]float64, len(bs))
	copy(retVal, bs)
	return retVal
}

// SetBiases overwrites the bias vector in place. recenter recomputes a
// centering offset, which this layer does not carry, so it must be
// false.
func (l *Visible) SetBiases(biases []float64, recenter bool) error {
	if len(biases) != l.nvis {
		return errors.Errorf("visible layer has %d units, got %d biases", l.nvis, len(biases))
	}
	if recenter {
		return errors.New("recenter: centering is not enabled on this layer")
	}
	copy(l.bias.Data().([]float64), biases)
	return nil
}

// Sample draws a batch of spins conditioned on the layer above. The
// visible layer is the bottom of the stack, so there is no state
// below; the downward message of the layer above plus the bias form
// the pre-activation.
func (l *Visible) Sample(stateAbove *tensor.Dense, above Messager, gen *rng.UniformGenerator) (*tensor.Dense, error) {
	if above == nil {
		return nil, errors.New("visible sample: a layer above is required")
	}
	if gen == nil {
		return nil, errors.New("visible sample: an explicit random generator is required")
	}
	msg, err := above.DownwardMessage(stateAbove)
	if err != nil {
		return nil, errors.Wrap(err, "visible sample")
	}
	if err := l.space.Validate(msg); err != nil {
		return nil, errors.Wrap(err, "visible sample: downward message")
	}

	md := msg.Data().([]float64)
	bd := l.bias.Data().([]float64)
	out := make([]float64, len(md))
	for i, m := range md {
		out[i] = m + bd[i%l.nvis]
	}
	sampleSpins(out, gen)
	return tensor.New(tensor.WithShape(msg.Shape()[0], l.nvis), tensor.WithBacking(out)), nil
}

// MakeState draws numExamples independent spin vectors from the
// unconditional marginal implied by the bias alone.
func (l *Visible) MakeState(numExamples int, gen *rng.UniformGenerator) (*tensor.Dense, error) {
	if numExamples < 1 {
		return nil, errors.Errorf("make state: need at least 1 example, got %d", numExamples)
	}
	if gen == nil {
		return nil, errors.New("make state: an explicit random generator is required")
	}
	bd := l.bias.Data().([]float64)
	out := make([]float64, numExamples*l.nvis)
	for i := range out {
		out[i] = bd[i%l.nvis]
	}
	sampleSpins(out, gen)
	return tensor.New(tensor.WithShape(numExamples, l.nvis), tensor.WithBacking(out)), nil
}

// ExpectedEnergy returns -(state·bias) per example. The energy is
// linear in the state, so the average flag has no numerical effect;
// stateBelow must be nil because nothing sits below a visible layer.
func (l *Visible) ExpectedEnergy(state *tensor.Dense, average bool, stateBelow *tensor.Dense, averageBelow bool) (*tensor.Dense, error) {
	if stateBelow != nil {
		return nil, errors.New("visible layer has no layer below")
	}
	if err := l.space.Validate(state); err != nil {
		return nil, errors.Wrap(err, "expected energy")
	}
	n := state.Shape()[0]
	sd := state.Data().([]float64)
	bd := l.bias.Data().([]float64)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var dot float64
		for j := 0; j < l.nvis; j++ {
			dot += sd[i*l.nvis+j] * bd[j]
		}
		out[i] = -dot
	}
	return tensor.New(tensor.WithShape(n), tensor.WithBacking(out)), nil
}
