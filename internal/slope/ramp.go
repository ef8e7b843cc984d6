package slope

import (
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RampStop anchors a color at a normalized position in [0,1].
type RampStop struct {
	Pos   float64
	Color colorful.Color
}

// Ramp is an ordered set of color stops blended in CIE-Lab space.
type Ramp []RampStop

// DefaultRamp grades flat terrain green through yellow and orange to red at
// the configured maximum angle.
func DefaultRamp() Ramp {
	return Ramp{
		{Pos: 0.0, Color: colorful.Color{R: 0.13, G: 0.55, B: 0.13}},
		{Pos: 0.5, Color: colorful.Color{R: 1.00, G: 0.84, B: 0.00}},
		{Pos: 0.8, Color: colorful.Color{R: 1.00, G: 0.55, B: 0.00}},
		{Pos: 1.0, Color: colorful.Color{R: 0.80, G: 0.00, B: 0.00}},
	}
}

// At returns the blended color for a normalized position, clamping to the
// outermost stops.
func (ra Ramp) At(pos float64) colorful.Color {
	if len(ra) == 0 {
		return colorful.Color{}
	}
	if pos <= ra[0].Pos {
		return ra[0].Color
	}
	if pos >= ra[len(ra)-1].Pos {
		return ra[len(ra)-1].Color
	}
	i := sort.Search(len(ra), func(i int) bool { return ra[i].Pos >= pos })
	lo, hi := ra[i-1], ra[i]
	span := hi.Pos - lo.Pos
	if span <= 0 {
		return hi.Color
	}
	return lo.Color.BlendLab(hi.Color, (pos-lo.Pos)/span).Clamped()
}

// ColorBuffer encodes the raster as row-major RGBA8 using a color ramp
// instead of grayscale. The NaN-transparency rule matches ImageBuffer.
func (r *Raster) ColorBuffer(ramp Ramp, maxAngleDegrees float64) []byte {
	if maxAngleDegrees <= 0 {
		maxAngleDegrees = DefaultMaxAngle
	}
	buf := make([]byte, r.w*r.h*4)
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			i := (y*r.w + x) * 4
			angle := r.sample(x, y)
			if math.IsNaN(angle) {
				continue
			}
			cr, cg, cb := ramp.At(clamp01(angle / maxAngleDegrees)).RGB255()
			buf[i+0] = cr
			buf[i+1] = cg
			buf[i+2] = cb
			buf[i+3] = 0xff
		}
	}
	return buf
}
