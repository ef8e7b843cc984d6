// Package dem owns the elevation data model.
//
// Responsibilities: elevation grid variants (dense, computed, stitched),
// neighbor stitching with a one-pixel halo, and terrain-RGB tile decoding.
// Key types: Grid, DenseGrid, FuncGrid, Neighbors.
//
// Dependency rule: dem has no knowledge of tiles, transport, or rendering.
// No HTTP or database code is allowed in this package.
package dem
