package charts

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/KaramelBytes/crashlens/internal/analysis"
	"github.com/KaramelBytes/crashlens/internal/dashboard"
)

// Heatmap colour ramp from low to high density.
var ramp = []colorful.Color{
	mustHex("#ffffcc"),
	mustHex("#feb24c"),
	mustHex("#f03b20"),
	mustHex("#800026"),
}

// cells below this share of the peak stay blank
const heatFloor = 0.02

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// rampAt maps t in [0, 1] onto the colour ramp.
func rampAt(t float64) colorful.Color {
	if t <= 0 {
		return ramp[0]
	}
	if t >= 1 {
		return ramp[len(ramp)-1]
	}
	pos := t * float64(len(ramp)-1)
	i := int(pos)
	return ramp[i].BlendHcl(ramp[i+1], pos-float64(i)).Clamped()
}

// HeatmapImage colours a density grid, one pixel per cell.
func HeatmapImage(g *analysis.Grid) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			t := 0.0
			if g.Max > 0 {
				t = g.At(x, y) / g.Max
			}
			if t < heatFloor {
				img.Set(x, y, color.White)
				continue
			}
			r, gr, b := rampAt(t).RGB255()
			img.Set(x, y, color.RGBA{R: r, G: gr, B: b, A: 0xff})
		}
	}
	return img
}

// Heatmap writes the density panel as a PNG scaled to width×height.
func Heatmap(w io.Writer, p dashboard.HeatmapPanel, width, height int) error {
	if !p.OK() || p.Grid == nil || p.Grid.Width == 0 || p.Grid.Height == 0 {
		return ErrNoData
	}
	if width <= 0 {
		width = Width * 3 / 4
	}
	if height <= 0 {
		height = width
	}
	var img image.Image = HeatmapImage(p.Grid)
	img = imaging.Resize(img, width, height, imaging.Linear)
	img = blur.Gaussian(img, 1.5)
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode heatmap: %w", err)
	}
	return nil
}
