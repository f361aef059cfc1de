package ising

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	rng "github.com/leesper/go_rng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/gorgonia/ising/space"
)

// identity-like 2×3 coupling used by the end to end scenarios
var idW = [][]float64{
	{1, 0, 0},
	{0, 1, 0},
}

func TestMFUpdateEndToEnd(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	below := spinMatrix(1, 2, 1, -1)

	got, err := h.MFUpdate(below, nil, nil, false)
	require.NoError(t, err)

	want := []float64{math.Tanh(1), math.Tanh(-1), 0}
	assert.InDeltaSlice(t, want, got.Data().([]float64), 1e-12)

	// deterministic: same inputs, same outputs
	again, err := h.MFUpdate(below, nil, nil, false)
	require.NoError(t, err)
	if diff := cmp.Diff(got.Data(), again.Data()); diff != "" {
		t.Errorf("mean field update is not deterministic:\n%s", diff)
	}
}

func TestMFUpdateStaysOpenInterval(t *testing.T) {
	// pre-activations are kept below the float64 tanh saturation
	// point (|z| ≈ 19); past it tanh rounds to exactly ±1
	h := newTestHidden(t, 2, 3, [][]float64{
		{10, -10, 3},
		{-7, 0.5, 1e-9},
	})
	below := spinMatrix(2, 2, 1, 1, -1, 1)
	got, err := h.MFUpdate(below, nil, nil, false)
	require.NoError(t, err)
	for _, v := range got.Data().([]float64) {
		if v <= -1 || v >= 1 {
			t.Errorf("mean field output %v escaped (-1, 1)", v)
		}
	}
}

func TestMFUpdateDoubleWeights(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	below := spinMatrix(1, 2, 1, -1)

	got, err := h.MFUpdate(below, nil, nil, true)
	require.NoError(t, err)
	want := []float64{math.Tanh(2), math.Tanh(-2), 0}
	assert.InDeltaSlice(t, want, got.Data().([]float64), 1e-12)

	// the caller's batch is left alone
	assert.Equal(t, []float64{1, -1}, below.Data().([]float64))
}

func TestSampleSpinValuesAndDistribution(t *testing.T) {
	const n = 5000
	h := newTestHidden(t, 2, 3, idW)
	h.BatchSize = n

	backing := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		backing[2*i], backing[2*i+1] = 1, -1
	}
	below := tensor.New(tensor.WithShape(n, 2), tensor.WithBacking(backing))

	gen := rng.NewUniformGenerator(99)
	s, err := h.Sample(below, nil, nil, gen)
	require.NoError(t, err)

	sd := s.Data().([]float64)
	for _, v := range sd {
		if v != 1 && v != -1 {
			t.Fatalf("sample produced a non-spin value %v", v)
		}
	}

	// each unit's empirical mean must approach tanh(z), z = [1, -1, 0]
	want := []float64{math.Tanh(1), math.Tanh(-1), 0}
	for j := 0; j < 3; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += sd[i*3+j]
		}
		mean := sum / n
		if math.Abs(mean-want[j]) > 0.06 {
			t.Errorf("unit %d: empirical mean %v, want %v", j, mean, want[j])
		}
	}
}

func TestSampleRequiresGenerator(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	_, err := h.Sample(spinMatrix(1, 2, 1, -1), nil, nil, nil)
	assert.Error(t, err, "no silent fallback to a default random source")
}

func TestStateAboveWithoutLayerAbove(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	_, err := h.MFUpdate(spinMatrix(1, 2, 1, -1), spinMatrix(1, 3, 1, 1, 1), nil, false)
	assert.Error(t, err)
}

func TestDownwardMessageIsExactTranspose(t *testing.T) {
	w := [][]float64{
		{0.5, -1, 2},
		{3, 0, -0.25},
	}
	h := newTestHidden(t, 2, 3, w)
	state := spinMatrix(2, 3,
		1, -1, 1,
		-1, 1, 1,
	)
	msg, err := h.DownwardMessage(state)
	require.NoError(t, err)

	// manual x·Wᵀ
	sd := state.Data().([]float64)
	want := make([]float64, 2*2)
	for i := 0; i < 2; i++ {
		for k := 0; k < 2; k++ {
			for j := 0; j < 3; j++ {
				want[i*2+k] += sd[i*3+j] * w[k][j]
			}
		}
	}
	assert.InDeltaSlice(t, want, msg.Data().([]float64), 1e-12)
}

func TestExpectedEnergyIdentity(t *testing.T) {
	w := [][]float64{
		{0.5, -1, 2},
		{3, 0, -0.25},
	}
	h := newTestHidden(t, 2, 3, w)
	require.NoError(t, h.SetBiases([]float64{0.1, -0.2, 0.3}, false))

	state := spinMatrix(2, 3,
		1, -1, 1,
		-1, -1, 1,
	)
	below := spinMatrix(2, 2,
		1, -1,
		-1, -1,
	)

	for _, average := range []bool{false, true} {
		e, err := h.ExpectedEnergy(state, average, below, average)
		require.NoError(t, err)

		sd := state.Data().([]float64)
		bd := below.Data().([]float64)
		bias := h.Biases()
		want := make([]float64, 2)
		for i := 0; i < 2; i++ {
			var biasTerm, weightsTerm float64
			for j := 0; j < 3; j++ {
				biasTerm += sd[i*3+j] * bias[j]
				var wx float64
				for k := 0; k < 2; k++ {
					wx += bd[i*2+k] * w[k][j]
				}
				weightsTerm += wx * sd[i*3+j]
			}
			want[i] = -biasTerm - weightsTerm
		}
		assert.InDeltaSlice(t, want, e.Data().([]float64), 1e-12)
	}
}

func TestHiddenMakeStateMatchesTanhBias(t *testing.T) {
	h := newTestHidden(t, 2, 2, [][]float64{{0, 0}, {0, 0}})
	require.NoError(t, h.SetBiases([]float64{-0.5, 1.2}, false))

	gen := rng.NewUniformGenerator(5)
	const n = 20000
	s, err := h.MakeState(n, gen)
	require.NoError(t, err)

	sd := s.Data().([]float64)
	for j, b := range h.Biases() {
		var sum float64
		for i := 0; i < n; i++ {
			sum += sd[i*2+j]
		}
		if mean := sum / n; math.Abs(mean-math.Tanh(b)) > 0.05 {
			t.Errorf("unit %d: empirical mean %v, want tanh(%v) = %v", j, mean, b, math.Tanh(b))
		}
	}
}

func TestCensorUpdates(t *testing.T) {
	assert := assert.New(t)

	conf := DefaultConfig(2, "h")
	conf.IRange = 0.01
	conf.MaxColNorm = 1
	h, err := NewHidden(conf)
	require.NoError(t, err)
	require.NoError(t, h.SetInputSpace(space.Vector{Dim: 2}, rng.NewUniformGenerator(1)))

	w := h.Params()[0]
	// column 0 has norm 5, column 1 has norm 0.5
	proposed := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{
		3, 0.3,
		4, 0.4,
	}))
	updates := map[*tensor.Dense]*tensor.Dense{w: proposed}
	require.NoError(t, h.CensorUpdates(updates))

	pd := proposed.Data().([]float64)
	col0 := math.Hypot(pd[0], pd[2])
	assert.True(col0 <= conf.MaxColNorm+normEps, "column 0 norm %v exceeds the cap", col0)

	// the column already under the bound is untouched
	assert.Equal(0.3, pd[1])
	assert.Equal(0.4, pd[3])

	// idempotence
	before := append([]float64(nil), pd...)
	require.NoError(t, h.CensorUpdates(updates))
	assert.Equal(before, proposed.Data().([]float64))
}

func TestCensorUpdatesDisabled(t *testing.T) {
	h := newTestHidden(t, 2, 2, [][]float64{{1, 2}, {3, 4}})
	w := h.Params()[0]
	proposed := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{10, 10, 10, 10}))
	require.NoError(t, h.CensorUpdates(map[*tensor.Dense]*tensor.Dense{w: proposed}))
	assert.Equal(t, []float64{10, 10, 10, 10}, proposed.Data().([]float64))
}

func TestWeightDecay(t *testing.T) {
	h := newTestHidden(t, 2, 2, [][]float64{
		{1, 2},
		{3, 4},
	})
	wd, err := h.WeightDecay(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*(1+4+9+16), wd, 1e-12)
}

func TestLRScalers(t *testing.T) {
	conf := DefaultConfig(2, "h")
	conf.IRange = 0.01
	conf.WLRScale = 0.1
	conf.BLRScale = 2
	h, err := NewHidden(conf)
	require.NoError(t, err)
	require.NoError(t, h.SetInputSpace(space.Vector{Dim: 3}, rng.NewUniformGenerator(1)))

	scalers := h.LRScalers()
	require.Len(t, scalers, 2)
	assert.Equal(t, 0.1, scalers[h.Params()[0]])
	assert.Equal(t, 2.0, scalers[h.b])
}

func TestSparseInitNotImplemented(t *testing.T) {
	conf := DefaultConfig(4, "h")
	conf.SparseInit = 2
	h, err := NewHidden(conf)
	require.NoError(t, err)
	err = h.SetInputSpace(space.Vector{Dim: 3}, rng.NewUniformGenerator(1))
	assert.Error(t, err, "the sparse pattern is deliberately unspecified")
}

func TestWeightInitRespectsRangeAndSparsity(t *testing.T) {
	conf := DefaultConfig(50, "h")
	conf.IRange = 0.3
	conf.IncludeProb = 0.5
	h, err := NewHidden(conf)
	require.NoError(t, err)
	require.NoError(t, h.SetInputSpace(space.Vector{Dim: 40}, rng.NewUniformGenerator(23)))

	w, err := h.Weights()
	require.NoError(t, err)
	wd := w.Data().([]float64)
	var zeros int
	for _, v := range wd {
		if math.Abs(v) > conf.IRange {
			t.Fatalf("weight %v outside U(-%v, %v)", v, conf.IRange, conf.IRange)
		}
		if v == 0 {
			zeros++
		}
	}
	frac := float64(zeros) / float64(len(wd))
	if frac < 0.4 || frac > 0.6 {
		t.Errorf("expected about half the weights zeroed, got fraction %v", frac)
	}
}

func TestTopologicalInput(t *testing.T) {
	assert := assert.New(t)

	conf := DefaultConfig(4, "topo")
	conf.IRange = 0.1
	conf.BatchSize = 2
	h, err := NewHidden(conf)
	require.NoError(t, err)
	in := space.Conv2D{Rows: 2, Cols: 3, Chans: 1}
	require.NoError(t, h.SetInputSpace(in, rng.NewUniformGenerator(3)))

	// a 4-D batch of the configured batch size flows through
	batch := tensor.New(tensor.WithShape(2, 2, 3, 1), tensor.WithBacking(make([]float64, 12)))
	out, err := h.MFUpdate(batch, nil, nil, false)
	require.NoError(t, err)
	assert.Equal([]int{2, 4}, []int(out.Shape()))

	// wrong batch size is fatal
	bad := tensor.New(tensor.WithShape(3, 2, 3, 1), tensor.WithBacking(make([]float64, 18)))
	_, err = h.MFUpdate(bad, nil, nil, false)
	assert.Error(err)

	// messages come back in the topological space
	msg, err := h.DownwardMessage(tensor.New(tensor.WithShape(2, 4), tensor.WithBacking(make([]float64, 8))))
	require.NoError(t, err)
	assert.Equal([]int{2, 2, 3, 1}, []int(msg.Shape()))

	// no flat view of topological weights, but a topo view exists
	_, err = h.Weights()
	assert.Error(err)
	topo, err := h.WeightsTopo()
	require.NoError(t, err)
	assert.Equal([]int{4, 2, 3, 1}, []int(topo.Shape()))
}

func TestWeightsTopoNeedsTopologicalSpace(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	_, err := h.WeightsTopo()
	assert.Error(t, err)
}

func TestSetBiasesRecenterNotSupported(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	assert.Error(t, h.SetBiases([]float64{0, 0, 0}, true))
}

func TestMonitoringChannels(t *testing.T) {
	h := newTestHidden(t, 2, 2, [][]float64{
		{3, 0},
		{4, 0},
	})
	mc, err := h.MonitoringChannels()
	require.NoError(t, err)

	assert.InDelta(t, 5.0, mc["col_norms_max"], 1e-12)
	assert.InDelta(t, 0.0, mc["col_norms_min"], 1e-12)
	assert.InDelta(t, 2.5, mc["col_norms_mean"], 1e-12)
	assert.InDelta(t, 3.0, mc["row_norms_min"], 1e-12)
	assert.InDelta(t, 4.0, mc["row_norms_max"], 1e-12)
	assert.InDelta(t, 3.5, mc["row_norms_mean"], 1e-12)
}

func TestStateMonitoringChannels(t *testing.T) {
	h := newTestHidden(t, 2, 2, [][]float64{
		{1, 0},
		{0, 1},
	})
	state := spinMatrix(2, 2,
		1, -1,
		-1, -1,
	)
	mc, err := h.StateMonitoringChannels(state)
	require.NoError(t, err)

	// unit 0 has values {1, -1}; unit 1 has {-1, -1}
	assert.Equal(t, 1.0, mc["max_x.max_u"])
	assert.Equal(t, -1.0, mc["max_x.min_u"])
	assert.Equal(t, -1.0, mc["min_x.mean_u"])
	assert.Equal(t, 2.0, mc["range_x.max_u"])
	assert.Equal(t, 0.0, mc["range_x.min_u"])
	assert.Equal(t, -0.5, mc["mean_x.mean_u"])
}

func TestLinearFeedForward(t *testing.T) {
	h := newTestHidden(t, 2, 3, idW)
	require.NoError(t, h.SetBiases([]float64{0.5, 0.5, 0.5}, false))
	z, err := h.LinearFeedForward(spinMatrix(1, 2, 1, -1))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.5, -0.5, 0.5}, z.Data().([]float64), 1e-12)
}
