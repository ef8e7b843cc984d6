package dem

import "math"

// Neighbors holds the up-to-eight compass neighbors of a center grid. Any
// field may be nil; a nil neighbor degrades the matching halo pixels to NaN.
type Neighbors struct {
	NW, N, NE Grid
	W, E      Grid
	SW, S, SE Grid
}

// stitchedGrid composes a center grid with its compass neighbors so that
// Sample answers queries one pixel beyond the center's edges. It never copies
// neighbor data; halo lookups delegate by coordinate translation.
type stitchedGrid struct {
	center Grid
	nb     Neighbors
}

// Stitch builds a composite grid over center and its neighbors. It returns
// false when center is nil, which callers must treat as fatal. All grids are
// assumed to share center's dimensions.
//
// The composite supports Sample over [-1,w]×[-1,h]: exactly one ring beyond
// the center, enough for a 3×3 kernel and no more. Queries past the ring, or
// into a missing neighbor's region, return NaN.
func Stitch(center Grid, nb Neighbors) (Grid, bool) {
	if center == nil {
		return nil, false
	}
	return &stitchedGrid{center: center, nb: nb}, true
}

func (g *stitchedGrid) Width() int  { return g.center.Width() }
func (g *stitchedGrid) Height() int { return g.center.Height() }

func (g *stitchedGrid) Sample(x, y int) float64 {
	w, h := g.center.Width(), g.center.Height()
	if x >= 0 && y >= 0 && x < w && y < h {
		return g.center.Sample(x, y)
	}
	if x < -1 || y < -1 || x > w || y > h {
		return math.NaN()
	}

	// Halo ring: pick the neighbor whose compass direction matches the
	// offset's sign, translating into that neighbor's coordinate space.
	var nb Grid
	nx, ny := x, y
	switch {
	case x < 0 && y < 0:
		nb, nx, ny = g.nb.NW, x+w, y+h
	case x >= w && y < 0:
		nb, nx, ny = g.nb.NE, x-w, y+h
	case x < 0 && y >= h:
		nb, nx, ny = g.nb.SW, x+w, y-h
	case x >= w && y >= h:
		nb, nx, ny = g.nb.SE, x-w, y-h
	case y < 0:
		nb, ny = g.nb.N, y+h
	case y >= h:
		nb, ny = g.nb.S, y-h
	case x < 0:
		nb, nx = g.nb.W, x+w
	default:
		nb, nx = g.nb.E, x-w
	}
	if nb == nil {
		return math.NaN()
	}
	return nb.Sample(nx, ny)
}
