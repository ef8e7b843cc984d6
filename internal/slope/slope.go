// Package slope computes per-pixel slope-angle rasters from elevation grids
// using Horn's weighted-difference gradient estimator, and encodes them into
// RGBA pixel buffers.
package slope

import (
	"math"

	"github.com/reliefmaps/slopetiles/internal/dem"
)

// DefaultPixelSize is the assumed ground distance between adjacent samples,
// in meters, when the caller does not supply one.
const DefaultPixelSize = 30.0

// DefaultMaxAngle is the slope angle, in degrees, that maps to full
// intensity in the encoded buffer.
const DefaultMaxAngle = 45.0

// Raster is a slope-angle lookup over a fixed-size raster. Sample returns
// degrees in [0,90], or NaN where any of the pixel's eight elevation
// neighbors is missing. Out-of-bounds samples are NaN.
type Raster struct {
	w, h   int
	sample func(x, y int) float64
}

// FromGrid derives a lazily evaluated slope raster from g. The grid must
// answer samples one pixel beyond its own bounds (see dem.Stitch); border
// pixels of an unstitched grid therefore come out NaN. pixelSizeMeters <= 0
// falls back to DefaultPixelSize.
func FromGrid(g dem.Grid, pixelSizeMeters float64) *Raster {
	if pixelSizeMeters <= 0 {
		pixelSizeMeters = DefaultPixelSize
	}
	return &Raster{
		w: g.Width(),
		h: g.Height(),
		sample: func(x, y int) float64 {
			return horn(g, x, y, pixelSizeMeters)
		},
	}
}

// horn estimates the slope angle at (x, y) from the 8-neighborhood. Any NaN
// neighbor makes the whole pixel NaN; no partial estimate is attempted.
func horn(g dem.Grid, x, y int, pixelSize float64) float64 {
	z1 := g.Sample(x-1, y-1)
	z2 := g.Sample(x, y-1)
	z3 := g.Sample(x+1, y-1)
	z4 := g.Sample(x-1, y)
	z6 := g.Sample(x+1, y)
	z7 := g.Sample(x-1, y+1)
	z8 := g.Sample(x, y+1)
	z9 := g.Sample(x+1, y+1)
	sum := z1 + z2 + z3 + z4 + z6 + z7 + z8 + z9
	if math.IsNaN(sum) {
		return math.NaN()
	}
	dzdx := ((z3 + 2*z6 + z9) - (z1 + 2*z4 + z7)) / (8 * pixelSize)
	dzdy := ((z7 + 2*z8 + z9) - (z1 + 2*z2 + z3)) / (8 * pixelSize)
	return math.Atan(math.Sqrt(dzdx*dzdx+dzdy*dzdy)) * 180 / math.Pi
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.w }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.h }

// Sample returns the slope angle in degrees at (x, y).
func (r *Raster) Sample(x, y int) float64 {
	if x < 0 || y < 0 || x >= r.w || y >= r.h {
		return math.NaN()
	}
	return r.sample(x, y)
}

// Materialize precomputes every pixel into a dense float32 array and returns
// a raster backed by it. Sample results are quantized to float32 precision,
// so they agree with the lazy form only to about seven significant digits;
// the encoded buffers are unaffected. Use it when the same raster is read
// more than once.
func (r *Raster) Materialize() *Raster {
	data := make([]float32, r.w*r.h)
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			data[y*r.w+x] = float32(r.sample(x, y))
		}
	}
	w := r.w
	return &Raster{
		w: r.w,
		h: r.h,
		sample: func(x, y int) float64 {
			return float64(data[y*w+x])
		},
	}
}

// ImageBuffer encodes the raster as row-major RGBA8, four bytes per pixel.
// Intensity is the angle scaled against maxAngleDegrees and clamped to
// [0,255]; NaN pixels are fully transparent. maxAngleDegrees <= 0 falls back
// to DefaultMaxAngle.
func (r *Raster) ImageBuffer(maxAngleDegrees float64) []byte {
	if maxAngleDegrees <= 0 {
		maxAngleDegrees = DefaultMaxAngle
	}
	buf := make([]byte, r.w*r.h*4)
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			i := (y*r.w + x) * 4
			angle := r.sample(x, y)
			if math.IsNaN(angle) {
				continue // zeroed, alpha 0
			}
			v := byte(math.Round(clamp01(angle/maxAngleDegrees) * 255))
			buf[i+0] = v
			buf[i+1] = v
			buf[i+2] = v
			buf[i+3] = 0xff
		}
	}
	return buf
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
