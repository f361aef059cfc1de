package ising

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// MonitoringChannels reports min/mean/max of the row and column L2
// norms of W. Row norms are per input unit, column norms per hidden
// unit. Pure reporting, no effect on the layer.
func (l *Hidden) MonitoringChannels() (map[string]float64, error) {
	if l.xfer == nil {
		return nil, errors.Errorf("layer %s: input space has not been set", l.Name)
	}
	w := l.xfer.Params()[0]
	wd := w.Data().([]float64)
	rows, cols := w.Shape()[0], w.Shape()[1]

	rowNorms := make([]float64, rows)
	colNorms := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sq := wd[i*cols+j] * wd[i*cols+j]
			rowNorms[i] += sq
			colNorms[j] += sq
		}
	}
	for i := range rowNorms {
		rowNorms[i] = math.Sqrt(rowNorms[i])
	}
	for j := range colNorms {
		colNorms[j] = math.Sqrt(colNorms[j])
	}

	rMin, rMean, rMax := stats(rowNorms)
	cMin, cMean, cMax := stats(colNorms)
	return map[string]float64{
		"row_norms_min":  rMin,
		"row_norms_mean": rMean,
		"row_norms_max":  rMax,
		"col_norms_min":  cMin,
		"col_norms_mean": cMean,
		"col_norms_max":  cMax,
	}, nil
}

// StateMonitoringChannels computes cross statistics of an activation
// batch: per unit, the max/min/mean/range over examples, then the
// max/min/mean over units of each. Channel names read inner.outer:
// "max_x.mean_u" is the mean over units of the per-unit max over
// examples.
func (l *Hidden) StateMonitoringChannels(state *tensor.Dense) (map[string]float64, error) {
	if err := l.OutputSpace().Validate(state); err != nil {
		return nil, errors.Wrapf(err, "layer %s: state monitoring", l.Name)
	}
	n := state.Shape()[0]
	sd := state.Data().([]float64)

	vMax := make([]float64, l.Dim)
	vMin := make([]float64, l.Dim)
	vMean := make([]float64, l.Dim)
	vRange := make([]float64, l.Dim)
	for j := 0; j < l.Dim; j++ {
		max, min := math.Inf(-1), math.Inf(1)
		var sum float64
		for i := 0; i < n; i++ {
			v := sd[i*l.Dim+j]
			if v > max {
				max = v
			}
			if v < min {
				min = v
			}
			sum += v
		}
		vMax[j] = max
		vMin[j] = min
		vMean[j] = sum / float64(n)
		vRange[j] = max - min
	}

	retVal := make(map[string]float64, 12)
	for _, c := range []struct {
		prefix string
		vals   []float64
	}{
		{"max_x", vMax},
		{"min_x", vMin},
		{"mean_x", vMean},
		{"range_x", vRange},
	} {
		min, mean, max := stats(c.vals)
		retVal[c.prefix+".max_u"] = max
		retVal[c.prefix+".mean_u"] = mean
		retVal[c.prefix+".min_u"] = min
	}
	return retVal, nil
}

func stats(xs []float64) (min, mean, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range xs {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	return min, sum / float64(len(xs)), max
}
