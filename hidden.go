package ising

import (
	"math"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/ising/linear"
	"github.com/gorgonia/ising/space"
)

// Hidden is a hidden Ising layer: a vector of ±1 units coupled to the
// layer below through a weight matrix W of shape (input dim, dim),
// implementing the energy term
//
//	-vᵀWh - bᵀh
//
// where v is the upward state of the layer below.
type Hidden struct {
	Config

	b    *tensor.Dense     // (dim,)
	xfer *linear.MatrixMul // owns W; nil until SetInputSpace

	inputSpace       space.Space
	desired          space.Vector
	inputDim         int
	requiresReformat bool
}

// NewHidden builds a hidden layer from a config. Weights are not
// allocated until SetInputSpace wires the layer to the layer below.
func NewHidden(conf Config) (*Hidden, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid hidden layer config %+v: dim and batch size must be positive and exactly one of IRange/SparseInit must be set", conf)
	}
	backing := make([]float64, conf.Dim)
	for i := range backing {
		backing[i] = conf.InitBias
	}
	return &Hidden{
		Config: conf,
		b:      tensor.New(tensor.WithShape(conf.Dim), tensor.WithBacking(backing)),
	}, nil
}

// SetInputSpace wires the layer to the space of the layer below and
// initializes the weights. Note: this resets any previous weights.
//
// A non-vector input space sets the requiresReformat flag: every
// incoming batch is then reshaped into a flat desired space of the
// input's total dimension before use.
func (l *Hidden) SetInputSpace(s space.Space, gen *rng.UniformGenerator) error {
	if s == nil {
		return errors.Errorf("layer %s: nil input space", l.Name)
	}
	if v, ok := s.(space.Vector); ok {
		l.requiresReformat = false
		l.inputDim = v.Dim
	} else {
		l.requiresReformat = true
		l.inputDim = s.TotalDim()
	}
	l.inputSpace = s
	l.desired = space.Vector{Dim: l.inputDim}

	if l.SparseInit > 0 {
		// The sparse pattern this scheme calls for was never pinned
		// down; refuse rather than guess at it.
		return errors.Errorf("layer %s: sparse weight initialization is not yet implemented", l.Name)
	}
	if gen == nil {
		return errors.Errorf("layer %s: weight initialization requires an explicit random generator", l.Name)
	}
	backing := make([]float64, l.inputDim*l.Dim)
	for i := range backing {
		v := gen.Float64Range(-l.IRange, l.IRange)
		if l.IncludeProb < 1 && gen.Float64() >= l.IncludeProb {
			v = 0
		}
		backing[i] = v
	}
	w := tensor.New(tensor.WithShape(l.inputDim, l.Dim), tensor.WithBacking(backing))

	var err error
	if l.xfer, err = linear.New(w); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// InputSpace returns the space of the layer below, or nil before
// SetInputSpace.
func (l *Hidden) InputSpace() space.Space { return l.inputSpace }

// OutputSpace is the vector space of this layer's states.
func (l *Hidden) OutputSpace() space.Space { return space.Vector{Dim: l.Dim} }

func (l *Hidden) UpwardState(total *tensor.Dense) *tensor.Dense   { return total }
func (l *Hidden) DownwardState(total *tensor.Dense) *tensor.Dense { return total }

// reformat validates a topological batch against the configured batch
// size and input dimension, then flattens it into the desired space.
func (l *Hidden) reformat(stateBelow *tensor.Dense) (*tensor.Dense, error) {
	sh := stateBelow.Shape()
	if sh[0] != l.BatchSize {
		return nil, errors.Errorf("layer %s: batch size is %d but got shape of %d", l.Name, l.BatchSize, sh[0])
	}
	if sh.TotalSize()/sh[0] != l.inputDim {
		return nil, errors.Errorf("layer %s: input dim is %d but examples of shape %v have %d elements", l.Name, l.inputDim, sh[1:], sh.TotalSize()/sh[0])
	}
	retVal, err := space.FormatAs(stateBelow, l.inputSpace, l.desired)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", l.Name)
	}
	return retVal, nil
}

// preactivation computes z = W·x + b (+ downward message from above),
// the pipeline shared by Sample and MFUpdate. doubleWeights doubles
// the state below first; the mean field driver uses it on its
// initialization pass to stand in for the missing top-down input.
func (l *Hidden) preactivation(stateBelow, stateAbove *tensor.Dense, above Messager, doubleWeights bool) (*tensor.Dense, error) {
	if l.xfer == nil {
		return nil, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	if err := l.inputSpace.Validate(stateBelow); err != nil {
		return nil, errors.Wrapf(err, "layer %s: state below", l.Name)
	}
	if l.requiresReformat {
		var err error
		if stateBelow, err = l.reformat(stateBelow); err != nil {
			return nil, err
		}
	}
	if doubleWeights {
		doubled := stateBelow.Clone().(*tensor.Dense)
		xs := doubled.Data().([]float64)
		for i := range xs {
			xs[i] *= 2
		}
		stateBelow = doubled
	}

	z, err := l.xfer.Apply(stateBelow)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", l.Name)
	}
	zd := z.Data().([]float64)
	bd := l.b.Data().([]float64)
	for i := range zd {
		zd[i] += bd[i%l.Dim]
	}

	if stateAbove != nil {
		if above == nil {
			return nil, errors.Errorf("layer %s: got a state above without a layer above", l.Name)
		}
		msg, err := above.DownwardMessage(stateAbove)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %s: message from above", l.Name)
		}
		md := msg.Data().([]float64)
		if len(md) != len(zd) {
			return nil, errors.Errorf("layer %s: downward message has shape %v, want %v", l.Name, msg.Shape(), z.Shape())
		}
		for i := range zd {
			zd[i] += md[i]
		}
	}
	return z, nil
}

// Sample draws a batch of spins: per unit, +1 with probability
// sigmoid(2z). The generator is required; there is no implicit
// fallback source.
func (l *Hidden) Sample(stateBelow, stateAbove *tensor.Dense, above Messager, gen *rng.UniformGenerator) (*tensor.Dense, error) {
	if gen == nil {
		return nil, errors.Errorf("layer %s: sample requires an explicit random generator", l.Name)
	}
	z, err := l.preactivation(stateBelow, stateAbove, above, false)
	if err != nil {
		return nil, err
	}
	sampleSpins(z.Data().([]float64), gen)
	return z, nil
}

// MFUpdate computes one deterministic mean field relaxation step,
// tanh(z): the exact expectation of each spin under the factorized
// approximation. Iterated to convergence by the driver it approaches a
// fixed point of the variational posterior.
func (l *Hidden) MFUpdate(stateBelow, stateAbove *tensor.Dense, above Messager, doubleWeights bool) (*tensor.Dense, error) {
	z, err := l.preactivation(stateBelow, stateAbove, above, doubleWeights)
	if err != nil {
		return nil, err
	}
	zd := z.Data().([]float64)
	for i, v := range zd {
		zd[i] = math.Tanh(v)
	}
	return z, nil
}

// DownwardMessage applies the transpose of the forward map to a state
// of this layer, producing the top-down contribution to the layer
// below's pre-activation.
func (l *Hidden) DownwardMessage(state *tensor.Dense) (*tensor.Dense, error) {
	if l.xfer == nil {
		return nil, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	if err := l.OutputSpace().Validate(state); err != nil {
		return nil, errors.Wrapf(err, "layer %s: downward state", l.Name)
	}
	msg, err := l.xfer.ApplyT(state)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", l.Name)
	}
	if l.requiresReformat {
		if msg, err = space.FormatAs(msg, l.desired, l.inputSpace); err != nil {
			return nil, errors.Wrapf(err, "layer %s", l.Name)
		}
	}
	return msg, nil
}

// MakeState draws numExamples independent spin vectors from the
// unconditional marginal implied by the bias alone.
func (l *Hidden) MakeState(numExamples int, gen *rng.UniformGenerator) (*tensor.Dense, error) {
	if numExamples < 1 {
		return nil, errors.Errorf("layer %s: need at least 1 example, got %d", l.Name, numExamples)
	}
	if gen == nil {
		return nil, errors.Errorf("layer %s: make state requires an explicit random generator", l.Name)
	}
	bd := l.b.Data().([]float64)
	out := make([]float64, numExamples*l.Dim)
	for i := range out {
		out[i] = bd[i%l.Dim]
	}
	sampleSpins(out, gen)
	return tensor.New(tensor.WithShape(numExamples, l.Dim), tensor.WithBacking(out)), nil
}

// ExpectedEnergy returns -(state·b) - Σ_units (W·stateBelow ⊙ state)
// per example. The terms are linear resp. bilinear in the states, so
// the averaging flags have no numerical effect.
func (l *Hidden) ExpectedEnergy(state *tensor.Dense, average bool, stateBelow *tensor.Dense, averageBelow bool) (*tensor.Dense, error) {
	if l.xfer == nil {
		return nil, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	if err := l.inputSpace.Validate(stateBelow); err != nil {
		return nil, errors.Wrapf(err, "layer %s: state below", l.Name)
	}
	if l.requiresReformat {
		var err error
		if stateBelow, err = l.reformat(stateBelow); err != nil {
			return nil, err
		}
	}
	if err := l.OutputSpace().Validate(state); err != nil {
		return nil, errors.Wrapf(err, "layer %s: state", l.Name)
	}
	n := state.Shape()[0]
	if stateBelow.Shape()[0] != n {
		return nil, errors.Errorf("layer %s: state has %d examples but state below has %d", l.Name, n, stateBelow.Shape()[0])
	}

	wx, err := l.xfer.Apply(stateBelow)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", l.Name)
	}
	sd := state.Data().([]float64)
	wd := wx.Data().([]float64)
	bd := l.b.Data().([]float64)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var biasTerm, weightsTerm float64
		for j := 0; j < l.Dim; j++ {
			biasTerm += sd[i*l.Dim+j] * bd[j]
			weightsTerm += wd[i*l.Dim+j] * sd[i*l.Dim+j]
		}
		out[i] = -biasTerm - weightsTerm
	}
	return tensor.New(tensor.WithShape(n), tensor.WithBacking(out)), nil
}

// LinearFeedForward is the bottom-up pre-activation W·x + b with no
// non-linearity and no top-down feedback. An infinitesimal change in
// the input or the parameters moves it in the same direction as
// MFUpdate.
func (l *Hidden) LinearFeedForward(stateBelow *tensor.Dense) (*tensor.Dense, error) {
	return l.preactivation(stateBelow, nil, nil, false)
}
