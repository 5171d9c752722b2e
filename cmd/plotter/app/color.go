package app

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	hueStart      = 15.0
	seriesChroma  = 0.75
	seriesLight   = 0.55
	gridLightness = 0.92
)

var (
	axisColor = color.RGBA{A: 0xff}
	gridColor = toRGBA(colorful.Hcl(0, 0, gridLightness))
)

// seriesColors returns n colors spread evenly around the HCL hue circle, so
// that lines of equal weight appear equally bright.
func seriesColors(n int) []color.RGBA {
	colors := make([]color.RGBA, n)
	for i := range colors {
		hue := hueStart + float64(i)*360/float64(max(n, 1))
		colors[i] = toRGBA(colorful.Hcl(hue, seriesChroma, seriesLight).Clamped())
	}
	return colors
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
