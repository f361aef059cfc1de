// Package filters renders the weights of a hidden layer over a
// topological input space as a tiled grayscale image, one tile per
// hidden unit, for eyeballing what the units have learned.
package filters

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
	"gorgonia.org/vecf32"

	"github.com/gorgonia/ising"
)

var tt font.Face

const (
	dpi      = 72.0
	fontsize = 10.0

	cell   = 8  // pixels per weight
	pad    = 4  // pixels between tiles
	labelH = 14 // pixels under each tile for the unit label
)

func init() {
	regular, err := truetype.Parse(gomono.TTF)
	if err != nil {
		panic(err)
	}
	tt = truetype.NewFace(regular, &truetype.Options{
		Size:    fontsize,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
}

// Render draws the layer's topological weights into a grid with perRow
// tiles per row. Each tile is normalized independently and
// symmetrically, so a zero weight is mid gray in every tile; channels
// are averaged. The rendering path is float32: display does not need
// the core's float64 precision.
func Render(l *ising.Hidden, perRow int) (image.Image, error) {
	if perRow < 1 {
		return nil, errors.Errorf("filters: need at least 1 tile per row, got %d", perRow)
	}
	topo, err := l.WeightsTopo()
	if err != nil {
		return nil, errors.Wrap(err, "filters")
	}
	sh := topo.Shape()
	dim, rows, cols, chans := sh[0], sh[1], sh[2], sh[3]
	wd := topo.Data().([]float64)

	tileW, tileH := cols*cell, rows*cell
	gridRows := (dim + perRow - 1) / perRow
	imW := perRow*(tileW+pad) + pad
	imH := gridRows*(tileH+labelH+pad) + pad
	img := image.NewGray(image.Rect(0, 0, imW, imH))
	draw.Draw(img, img.Bounds(), image.White, image.ZP, draw.Src)

	d := font.Drawer{Dst: img, Src: image.Black, Face: tt}

	tile := make([]float32, rows*cols)
	for u := 0; u < dim; u++ {
		for p := range tile {
			var sum float32
			for c := 0; c < chans; c++ {
				sum += float32(wd[(u*rows*cols+p)*chans+c])
			}
			tile[p] = sum / float32(chans)
		}
		bound := math32.Max(math32.Abs(vecf32.MaxOf(tile)), math32.Abs(vecf32.MinOf(tile)))
		if bound > 0 {
			vecf32.Scale(tile, 1/bound)
		}

		x0 := pad + (u%perRow)*(tileW+pad)
		y0 := pad + (u/perRow)*(tileH+labelH+pad)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				gray := uint8(127.5 * (1 + tile[r*cols+c]))
				for yy := 0; yy < cell; yy++ {
					for xx := 0; xx < cell; xx++ {
						img.SetGray(x0+c*cell+xx, y0+r*cell+yy, color.Gray{Y: gray})
					}
				}
			}
		}
		d.Dot = fixed.P(x0, y0+tileH+labelH-3)
		d.DrawString(strconv.Itoa(u))
	}
	return img, nil
}

// RenderTo writes the rendered grid as a PNG.
func RenderTo(w io.Writer, l *ising.Hidden, perRow int) error {
	img, err := Render(l, perRow)
	if err != nil {
		return err
	}
	return errors.Wrap(png.Encode(w, img), "filters: png encode")
}
