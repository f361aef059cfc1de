package filters

import (
	"bytes"
	"image/png"
	"testing"

	rng "github.com/leesper/go_rng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorgonia/ising"
	"github.com/gorgonia/ising/space"
)

func topoLayer(t *testing.T, dim int) *ising.Hidden {
	t.Helper()
	conf := ising.DefaultConfig(dim, "topo")
	conf.IRange = 0.5
	h, err := ising.NewHidden(conf)
	require.NoError(t, err)
	require.NoError(t, h.SetInputSpace(space.Conv2D{Rows: 3, Cols: 3, Chans: 1}, rng.NewUniformGenerator(17)))
	return h
}

func TestRenderDimensions(t *testing.T) {
	h := topoLayer(t, 6)
	img, err := Render(h, 4)
	require.NoError(t, err)

	// 4 tiles of 3x3 weights per row, 2 grid rows for 6 units
	wantW := 4*(3*cell+pad) + pad
	wantH := 2*(3*cell+labelH+pad) + pad
	b := img.Bounds()
	assert.Equal(t, wantW, b.Dx())
	assert.Equal(t, wantH, b.Dy())
}

func TestRenderNeedsTopologicalLayer(t *testing.T) {
	conf := ising.DefaultConfig(4, "flat")
	conf.IRange = 0.5
	h, err := ising.NewHidden(conf)
	require.NoError(t, err)
	require.NoError(t, h.SetInputSpace(space.Vector{Dim: 9}, rng.NewUniformGenerator(17)))

	_, err = Render(h, 4)
	assert.Error(t, err)

	_, err = Render(topoLayer(t, 4), 0)
	assert.Error(t, err)
}

func TestRenderToWritesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTo(&buf, topoLayer(t, 4), 2))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.True(t, img.Bounds().Dx() > 0)
}
