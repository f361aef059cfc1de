// Package ising implements the layers of a densely connected Ising
// model for use in a deep Boltzmann machine. Units take values in
// {-1, 1}. If p(h) ∝ exp(z·h) then the expected value of h is tanh(z)
// and the probability that h is 1 is sigmoid(2z).
//
// The layers hold no knowledge of the stack they sit in: an external
// driver (see the dbm package) passes in the states and messages of
// neighbouring layers per call and owns the alternating update order.
package ising

import (
	"math"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Float is the dtype of every tensor in this package. The core is
// float64 throughout: the marginal clipping bound 1-1e-7 is not
// representable in float32.
var Float = tensor.Float64

const (
	// marginalEps clips empirical marginals away from the tanh
	// saturation points so arctanh stays finite.
	marginalEps = 1e-7

	// normEps guards the column norm projection against division by a
	// zero norm.
	normEps = 1e-7
)

// Layer is the capability set shared by every layer of a DBM stack. A
// pooled or convolutional variant implements the same set with
// different internals.
type Layer interface {
	// UpwardState and DownwardState extract the part of a layer's
	// total state seen by the layer above resp. below. Plain Ising
	// layers have no pooling, so both are passthroughs.
	UpwardState(total *tensor.Dense) *tensor.Dense
	DownwardState(total *tensor.Dense) *tensor.Dense

	// MakeState draws an independent batch of spins from the
	// unconditional marginal implied by the layer's bias alone. Used
	// to seed persistent sampling chains.
	MakeState(numExamples int, gen *rng.UniformGenerator) (*tensor.Dense, error)

	// ExpectedEnergy returns this layer's energy term per example.
	// The averaging flags are accepted for interface uniformity; the
	// energy is (bi)linear, so its expectation depends only on the
	// first moments already carried by the states.
	ExpectedEnergy(state *tensor.Dense, average bool, stateBelow *tensor.Dense, averageBelow bool) (*tensor.Dense, error)

	// Params returns the layer's owned parameter tensors.
	Params() []*tensor.Dense
}

// Messager is a layer that can inject top-down feedback into the
// pre-activation of the layer below.
type Messager interface {
	DownwardMessage(state *tensor.Dense) (*tensor.Dense, error)
}

var (
	_ Layer    = &Visible{}
	_ Layer    = &Hidden{}
	_ Messager = &Hidden{}
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// sampleSpins overwrites z with spins drawn one per unit: +1 with
// probability sigmoid(2z), by thresholding a uniform driver.
func sampleSpins(z []float64, gen *rng.UniformGenerator) {
	for i, v := range z {
		if gen.Float64() < sigmoid(2*v) {
			z[i] = 1
		} else {
			z[i] = -1
		}
	}
}

// InitTanhBiasFromMarginals computes a bias vector b = arctanh(m) from
// the column means m of a ±1-valued design matrix, so that a layer
// with bias b has unconditional marginals matching the data under the
// sigmoid-of-double convention. Means are clipped into
// (marginalEps, 1-marginalEps) before the arctanh.
//
// The matrix must consist entirely of -1s and 1s; anything else is
// rejected before any bias is computed.
func InitTanhBiasFromMarginals(data *tensor.Dense) ([]float64, error) {
	if data == nil {
		return nil, errors.New("nil marginal dataset")
	}
	sh := data.Shape()
	if len(sh) != 2 || sh[0] == 0 {
		return nil, errors.Errorf("marginal dataset must be a nonempty design matrix, got shape %v", sh)
	}
	n, dim := sh[0], sh[1]
	xs := data.Data().([]float64)
	for i, v := range xs {
		if v != 1 && v != -1 {
			return nil, errors.Errorf("expected design matrix to consist entirely of -1s and 1s, but found %v at row %d col %d", v, i/dim, i%dim)
		}
	}

	bias := make([]float64, dim)
	for j := 0; j < dim; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += xs[i*dim+j]
		}
		mean := sum / float64(n)
		if mean < marginalEps {
			mean = marginalEps
		}
		if mean > 1-marginalEps {
			mean = 1 - marginalEps
		}
		bias[j] = math.Atanh(mean)
	}
	return bias, nil
}
