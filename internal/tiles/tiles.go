// Package tiles provides slippy-map tile coordinates, URL templating, and
// request-path parsing for the {z}/{x}/{y} addressing scheme.
package tiles

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/maptile"
)

// TileSize is the pixel edge length assumed for ground-resolution estimates.
const TileSize = 256

// ErrBadPath reports a request path that does not match /{z}/{x}/{y}.
var ErrBadPath = errors.New("tiles: path does not match /{z}/{x}/{y}")

// Coord addresses one tile in the slippy-map scheme. Signed components keep
// neighbor arithmetic at the x=0 or y=0 edge well defined; out-of-range
// coordinates simply fail to fetch.
type Coord struct {
	Z, X, Y int
}

// String formats the coordinate as z/x/y.
func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Valid reports whether the coordinate addresses a real tile at its zoom.
func (c Coord) Valid() bool {
	if c.Z < 0 || c.Z > 30 {
		return false
	}
	n := 1 << c.Z
	return c.X >= 0 && c.Y >= 0 && c.X < n && c.Y < n
}

// Tile converts to an orb maptile. Only meaningful for valid coordinates.
func (c Coord) Tile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// Shift returns the coordinate offset by (dx, dy) at the same zoom.
func (c Coord) Shift(dx, dy int) Coord {
	return Coord{Z: c.Z, X: c.X + dx, Y: c.Y + dy}
}

// Neighbors returns the 3x3 block of coordinates centred on c, row-major
// from the northwest corner. Index 4 is c itself. Coordinates on the edge
// of the tile space may fall outside the valid range.
func (c Coord) Neighbors() [9]Coord {
	var block [9]Coord
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			block[(dy+1)*3+(dx+1)] = c.Shift(dx, dy)
		}
	}
	return block
}

// GroundResolution estimates the ground distance covered by one pixel of the
// tile, in meters, measured along the tile's central parallel.
func (c Coord) GroundResolution() float64 {
	if !c.Valid() {
		return math.NaN()
	}
	b := c.Tile().Bound()
	mid := (b.Min[1] + b.Max[1]) / 2
	west := orb.Point{b.Min[0], mid}
	east := orb.Point{b.Max[0], mid}
	return geo.Distance(west, east) / TileSize
}

// ParsePath parses "/{z}/{x}/{y}" into a Coord. A trailing file extension on
// the y segment ("/5/10/10.png") is tolerated. Anything else is ErrBadPath.
func ParsePath(path string) (Coord, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	if i := strings.IndexByte(parts[2], '.'); i >= 0 {
		parts[2] = parts[2][:i]
	}
	var c Coord
	for i, dst := range []*int{&c.Z, &c.X, &c.Y} {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return Coord{}, fmt.Errorf("%w: %q", ErrBadPath, path)
		}
		*dst = v
	}
	return c, nil
}

// URL substitutes the coordinate into a {z}/{x}/{y} URL template.
func URL(template string, c Coord) string {
	url := strings.Replace(template, "{z}", strconv.Itoa(c.Z), -1)
	url = strings.Replace(url, "{x}", strconv.Itoa(c.X), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(c.Y), -1)
	return url
}
