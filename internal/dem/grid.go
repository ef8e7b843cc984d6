package dem

import "math"

// Grid is an elevation lookup over a fixed-size raster. Sample returns the
// elevation in meters at pixel (x, y), or NaN where no data is available.
// Implementations define their own behavior outside [0,Width)×[0,Height);
// DenseGrid and FuncGrid return NaN there.
type Grid interface {
	Width() int
	Height() int
	Sample(x, y int) float64
}

// DenseGrid is a Grid backed by a row-major float32 array.
type DenseGrid struct {
	w, h int
	data []float32
}

// NewDenseGrid allocates a w×h grid with every cell set to NaN.
func NewDenseGrid(w, h int) *DenseGrid {
	data := make([]float32, w*h)
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return &DenseGrid{w: w, h: h, data: data}
}

// Width returns the grid width in pixels.
func (g *DenseGrid) Width() int { return g.w }

// Height returns the grid height in pixels.
func (g *DenseGrid) Height() int { return g.h }

// Set stores an elevation value. Out-of-bounds writes are dropped.
func (g *DenseGrid) Set(x, y int, v float64) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	g.data[y*g.w+x] = float32(v)
}

// Sample returns the stored elevation, or NaN outside the grid bounds.
func (g *DenseGrid) Sample(x, y int) float64 {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return math.NaN()
	}
	return float64(g.data[y*g.w+x])
}

// FuncGrid is a Grid whose samples are computed on demand.
type FuncGrid struct {
	w, h int
	fn   func(x, y int) float64
}

// NewFuncGrid wraps fn as a w×h Grid. Coordinates outside the bounds are
// clipped to NaN before fn is consulted.
func NewFuncGrid(w, h int, fn func(x, y int) float64) *FuncGrid {
	return &FuncGrid{w: w, h: h, fn: fn}
}

// Width returns the grid width in pixels.
func (g *FuncGrid) Width() int { return g.w }

// Height returns the grid height in pixels.
func (g *FuncGrid) Height() int { return g.h }

// Sample computes the elevation at (x, y), or NaN outside the grid bounds.
func (g *FuncGrid) Sample(x, y int) float64 {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return math.NaN()
	}
	return g.fn(x, y)
}
