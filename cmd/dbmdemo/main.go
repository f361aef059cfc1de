// Command dbmdemo builds a small two hidden layer Ising DBM over a
// synthetic ±1 dataset, runs a few Gibbs sweeps and a clamped mean
// field pass, and writes the stack topology (stack.dot) and a weight
// filter grid (filters.png) to disk.
package main

import (
	"flag"
	"log"
	"os"

	rng "github.com/leesper/go_rng"
	"gorgonia.org/tensor"

	"github.com/gorgonia/ising"
	"github.com/gorgonia/ising/dbm"
	"github.com/gorgonia/ising/encoding/filters"
	"github.com/gorgonia/ising/space"
)

var (
	seed   = flag.Int64("seed", 1337, "random seed")
	sweeps = flag.Int("sweeps", 50, "gibbs sweeps to run")
	batch  = flag.Int("batch", 20, "batch size")
)

// syntheticSpins draws a ±1 design matrix whose columns have a
// per-column on-probability, so the marginal-seeded visible bias has
// something to match.
func syntheticSpins(n, dim int, gen *rng.UniformGenerator) *tensor.Dense {
	backing := make([]float64, n*dim)
	for i := range backing {
		p := 0.1 + 0.8*float64(i%dim)/float64(dim)
		if gen.Float64() < p {
			backing[i] = 1
		} else {
			backing[i] = -1
		}
	}
	return tensor.New(tensor.WithShape(n, dim), tensor.WithBacking(backing))
}

func main() {
	flag.Parse()
	gen := rng.NewUniformGenerator(*seed)

	const nvis = 49
	data := syntheticSpins(200, nvis, gen)

	v, err := ising.NewVisible(nvis, data)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	h1conf := ising.DefaultConfig(36, "h1")
	h1conf.IRange = 0.05
	h1conf.BatchSize = *batch
	h1conf.MaxColNorm = 2
	h2conf := ising.DefaultConfig(16, "h2")
	h2conf.IRange = 0.05
	h2conf.BatchSize = *batch

	h1, err := ising.NewHidden(h1conf)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	h2, err := ising.NewHidden(h2conf)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	stack, err := dbm.New(gen, v, h1, h2)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	s, err := stack.InitStates(*batch, gen)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	for i := 0; i < *sweeps; i++ {
		if err := stack.GibbsSweep(s, gen); err != nil {
			log.Fatalf("sweep %d: %+v", i, err)
		}
	}
	e, err := v.ExpectedEnergy(s.V, false, nil, false)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("after %d sweeps, first-example visible energy term: %v", *sweeps, e.Data().([]float64)[0])

	hs, err := stack.MeanField(firstRows(data, *batch), 10)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	mc, err := h1.StateMonitoringChannels(hs[0])
	if err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("h1 mean field activations: mean_x.mean_u = %.4f, range_x.max_u = %.4f", mc["mean_x.mean_u"], mc["range_x.max_u"])

	if err := os.WriteFile("stack.dot", []byte(stack.ToDot()), 0644); err != nil {
		log.Fatal(err)
	}

	// a topological layer to show off the filter renderer
	tconf := ising.DefaultConfig(16, "topo")
	tconf.IRange = 0.5
	tconf.BatchSize = *batch
	topo, err := ising.NewHidden(tconf)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if err := topo.SetInputSpace(space.Conv2D{Rows: 7, Cols: 7, Chans: 1}, gen); err != nil {
		log.Fatalf("%+v", err)
	}
	f, err := os.Create("filters.png")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := filters.RenderTo(f, topo, 4); err != nil {
		log.Fatalf("%+v", err)
	}
	log.Println("wrote stack.dot and filters.png")
}

func firstRows(t *tensor.Dense, n int) *tensor.Dense {
	data := t.Data().([]float64)
	dim := t.Shape()[1]
	backing := make([]float64, n*dim)
	copy(backing, data[:n*dim])
	return tensor.New(tensor.WithShape(n, dim), tensor.WithBacking(backing))
}
