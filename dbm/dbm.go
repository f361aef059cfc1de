// Package dbm stacks ising layers into a deep Boltzmann machine and
// drives block Gibbs sampling and mean field inference over them.
//
// The layers themselves are pure (possibly randomized) functions of
// their inputs and parameters; the alternation discipline lives here.
// Adjacent layers are conditionally dependent, so a sweep updates the
// odd half of the stack while the even half is held fixed, then the
// other way around.
package dbm

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/ising"
)

// Stack is a visible layer plus one or more hidden layers, bottom to
// top.
type Stack struct {
	Visible *ising.Visible
	Hidden  []*ising.Hidden

	BatchSize int
}

// New wires the layers together: each hidden layer's input space is
// set to the space of the layer below it, which also initializes its
// weights from gen.
func New(gen *rng.UniformGenerator, v *ising.Visible, hidden ...*ising.Hidden) (*Stack, error) {
	if v == nil {
		return nil, errors.New("dbm: nil visible layer")
	}
	if len(hidden) == 0 {
		return nil, errors.New("dbm: need at least one hidden layer")
	}
	batchSize := hidden[0].BatchSize
	below := v.Space()
	for _, h := range hidden {
		if h.BatchSize != batchSize {
			return nil, errors.Errorf("dbm: layer %s has batch size %d, stack has %d", h.Name, h.BatchSize, batchSize)
		}
		if err := h.SetInputSpace(below, gen); err != nil {
			return nil, errors.Wrap(err, "dbm")
		}
		below = h.OutputSpace()
	}
	return &Stack{Visible: v, Hidden: hidden, BatchSize: batchSize}, nil
}

// State holds one activation batch per layer.
type State struct {
	V *tensor.Dense
	H []*tensor.Dense
}

// InitStates seeds a persistent sampling chain: every layer draws an
// independent batch from its unconditional bias marginal.
func (st *Stack) InitStates(numExamples int, gen *rng.UniformGenerator) (*State, error) {
	v, err := st.Visible.MakeState(numExamples, gen)
	if err != nil {
		return nil, errors.Wrap(err, "dbm: init states")
	}
	hs := make([]*tensor.Dense, len(st.Hidden))
	for i, h := range st.Hidden {
		if hs[i], err = h.MakeState(numExamples, gen); err != nil {
			return nil, errors.Wrap(err, "dbm: init states")
		}
	}
	return &State{V: v, H: hs}, nil
}

// GibbsSweep performs one full alternating sweep in place: first the
// odd layers of the stack are resampled with the even layers held
// fixed, then the even layers (visible included) with the odd ones
// fixed.
func (st *Stack) GibbsSweep(s *State, gen *rng.UniformGenerator) error {
	if s == nil || len(s.H) != len(st.Hidden) {
		return errors.New("dbm: state does not match stack")
	}
	// odd half: hidden layers at stack positions 1, 3, ...
	for i := 0; i < len(st.Hidden); i += 2 {
		ns, err := st.sampleHidden(i, s, gen)
		if err != nil {
			return err
		}
		s.H[i] = ns
	}
	// even half: the visible layer and hidden layers at 2, 4, ...
	v, err := st.Visible.Sample(st.Hidden[0].DownwardState(s.H[0]), st.Hidden[0], gen)
	if err != nil {
		return errors.Wrap(err, "dbm: gibbs sweep")
	}
	s.V = v
	for i := 1; i < len(st.Hidden); i += 2 {
		ns, err := st.sampleHidden(i, s, gen)
		if err != nil {
			return err
		}
		s.H[i] = ns
	}
	return nil
}

func (st *Stack) sampleHidden(i int, s *State, gen *rng.UniformGenerator) (*tensor.Dense, error) {
	below := s.V
	if i > 0 {
		below = st.Hidden[i-1].UpwardState(s.H[i-1])
	}
	var above *ising.Hidden
	var stateAbove *tensor.Dense
	if i+1 < len(st.Hidden) {
		above = st.Hidden[i+1]
		stateAbove = above.DownwardState(s.H[i+1])
	}
	ns, err := st.Hidden[i].Sample(below, stateAbove, messager(above), gen)
	if err != nil {
		return nil, errors.Wrap(err, "dbm: gibbs sweep")
	}
	return ns, nil
}

// MeanField runs clamped mean field inference: the visible batch v is
// held fixed and the hidden layers relax for iters alternating sweeps.
// The initialization pass runs bottom-up with doubled weights on every
// layer but the top one, standing in for the top-down input that does
// not exist yet.
func (st *Stack) MeanField(v *tensor.Dense, iters int) ([]*tensor.Dense, error) {
	if iters < 0 {
		return nil, errors.Errorf("dbm: negative mean field iteration count %d", iters)
	}
	hs := make([]*tensor.Dense, len(st.Hidden))
	below := v
	for i, h := range st.Hidden {
		double := i < len(st.Hidden)-1
		state, err := h.MFUpdate(below, nil, nil, double)
		if err != nil {
			return nil, errors.Wrap(err, "dbm: mean field init")
		}
		hs[i] = state
		below = h.UpwardState(state)
	}
	for it := 0; it < iters; it++ {
		for i := 0; i < len(st.Hidden); i += 2 {
			if err := st.relaxHidden(i, v, hs); err != nil {
				return nil, err
			}
		}
		for i := 1; i < len(st.Hidden); i += 2 {
			if err := st.relaxHidden(i, v, hs); err != nil {
				return nil, err
			}
		}
	}
	return hs, nil
}

func (st *Stack) relaxHidden(i int, v *tensor.Dense, hs []*tensor.Dense) error {
	below := v
	if i > 0 {
		below = st.Hidden[i-1].UpwardState(hs[i-1])
	}
	var above *ising.Hidden
	var stateAbove *tensor.Dense
	if i+1 < len(st.Hidden) {
		above = st.Hidden[i+1]
		stateAbove = above.DownwardState(hs[i+1])
	}
	state, err := st.Hidden[i].MFUpdate(below, stateAbove, messager(above), false)
	if err != nil {
		return errors.Wrap(err, "dbm: mean field")
	}
	hs[i] = state
	return nil
}

// Censor lets every hidden layer project its proposed weight update
// before the optimizer applies it.
func (st *Stack) Censor(updates map[*tensor.Dense]*tensor.Dense) error {
	for _, h := range st.Hidden {
		if err := h.CensorUpdates(updates); err != nil {
			return errors.Wrap(err, "dbm: censor updates")
		}
	}
	return nil
}

// Params returns every parameter tensor in the stack, bottom to top.
func (st *Stack) Params() []*tensor.Dense {
	retVal := st.Visible.Params()
	for _, h := range st.Hidden {
		retVal = append(retVal, h.Params()...)
	}
	return retVal
}

// messager keeps a typed-nil *Hidden from leaking into a non-nil
// ising.Messager interface value.
func messager(h *ising.Hidden) ising.Messager {
	if h == nil {
		return nil
	}
	return h
}
