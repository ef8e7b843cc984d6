// Package render orchestrates slope tile production: it fans out the nine
// neighborhood DEM fetches, stitches the survivors, computes the slope
// raster, and encodes the response, emitting one timing observation per
// request.
package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reliefmaps/slopetiles/internal/dem"
	"github.com/reliefmaps/slopetiles/internal/monitoring"
	"github.com/reliefmaps/slopetiles/internal/slope"
	"github.com/reliefmaps/slopetiles/internal/tiles"
	"github.com/reliefmaps/slopetiles/internal/timeutil"
)

// CacheControl is the fixed cache policy attached to every rendered tile.
const CacheControl = "public, max-age=3600"

// TileTTL matches the max-age in CacheControl.
const TileTTL = time.Hour

// Style selects the pixel encoding of the rendered raster.
type Style string

const (
	// StyleGray encodes slope as grayscale intensity.
	StyleGray Style = "gray"
	// StyleColor encodes slope through a color ramp.
	StyleColor Style = "color"
)

// TileParser fetches and decodes one DEM tile. It is the orchestrator's only
// upstream dependency; fetch.Source satisfies it, as does a bridge-delegated
// fetch in a worker context.
type TileParser func(ctx context.Context, z, x, y int) (dem.Grid, error)

// Options control one render request. Zero values select the defaults.
type Options struct {
	MaxAngle  float64 // degrees at full intensity; default 45
	PixelSize float64 // meters between samples; default 30
	Style     Style   // default StyleGray
}

// TileResult is a rendered tile: raw RGBA8 bytes plus cache metadata.
type TileResult struct {
	Bytes         []byte
	Width, Height int
	CacheControl  string
	Expires       time.Time
}

// Timing is the per-request measurement delivered to observers. Err is nil
// on success.
type Timing struct {
	RequestID string
	Z, X, Y   int
	Duration  time.Duration
	Err       error
}

// Renderer drives the fetch-stitch-compute-encode pipeline.
type Renderer struct {
	parse TileParser
	clock timeutil.Clock

	mu        sync.Mutex
	observers []func(Timing)
}

// New creates a Renderer over a tile parser. A nil clock uses the real one.
func New(parse TileParser, clock timeutil.Clock) *Renderer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Renderer{parse: parse, clock: clock}
}

// OnTiming registers an observer invoked exactly once per RenderTile call,
// after all fetch and compute work has finished, on success and failure
// alike.
func (r *Renderer) OnTiming(fn func(Timing)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// slot indexes the 3×3 fetch neighborhood row-major, center included.
type slot struct {
	grid dem.Grid
	err  error
}

// RenderTile produces the slope tile for (z, x, y).
//
// All nine fetches run concurrently under a tolerant join: each slot's
// outcome is captured independently and no neighbor failure aborts another.
// Only a center failure is fatal. ctx cancels all in-flight fetches; no
// timeout is imposed here.
func (r *Renderer) RenderTile(ctx context.Context, z, x, y int, opts Options) (result *TileResult, err error) {
	start := r.clock.Now()
	defer func() {
		r.emit(Timing{
			RequestID: uuid.New().String(),
			Z:         z, X: x, Y: y,
			Duration: r.clock.Since(start),
			Err:      err,
		})
	}()

	var slots [9]slot
	var wg sync.WaitGroup
	for i, nc := range (tiles.Coord{Z: z, X: x, Y: y}).Neighbors() {
		wg.Add(1)
		go func(i int, c tiles.Coord) {
			defer wg.Done()
			g, ferr := r.parse(ctx, c.Z, c.X, c.Y)
			if ferr != nil {
				g = nil
			}
			slots[i] = slot{grid: g, err: ferr}
		}(i, nc)
	}
	wg.Wait()

	center := slots[4]
	if center.err != nil {
		return nil, fmt.Errorf("center tile %d/%d/%d: %w", z, x, y, center.err)
	}

	for i, s := range slots {
		if s.err != nil {
			monitoring.Logf("tile %d/%d/%d: neighbor slot %d absent: %v", z, x, y, i, s.err)
		}
	}

	stitched, ok := dem.Stitch(center.grid, dem.Neighbors{
		NW: slots[0].grid, N: slots[1].grid, NE: slots[2].grid,
		W: slots[3].grid, E: slots[5].grid,
		SW: slots[6].grid, S: slots[7].grid, SE: slots[8].grid,
	})
	if !ok {
		return nil, fmt.Errorf("center tile %d/%d/%d: no grid", z, x, y)
	}

	raster := slope.FromGrid(stitched, opts.PixelSize)
	var buf []byte
	if opts.Style == StyleColor {
		buf = raster.ColorBuffer(slope.DefaultRamp(), opts.MaxAngle)
	} else {
		buf = raster.ImageBuffer(opts.MaxAngle)
	}

	return &TileResult{
		Bytes:        buf,
		Width:        raster.Width(),
		Height:       raster.Height(),
		CacheControl: CacheControl,
		Expires:      r.clock.Now().Add(TileTTL),
	}, nil
}

// emit delivers one timing record to every observer. A panicking observer is
// contained so it cannot replace the request's own result.
func (r *Renderer) emit(t Timing) {
	r.mu.Lock()
	observers := make([]func(Timing), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					monitoring.Logf("timing observer panicked: %v", p)
				}
			}()
			fn(t)
		}()
	}
}
