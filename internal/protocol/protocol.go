// Package protocol adapts the slope renderer to a map-rendering host. It
// owns protocol-id registration (with numeric dedup suffixes), virtual
// raster URL parsing, and the boundary between the host's two handler
// calling conventions. The core pipeline only ever sees the awaitable form.
package protocol

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reliefmaps/slopetiles/internal/render"
	"github.com/reliefmaps/slopetiles/internal/tiles"
)

// schemeSuffix distinguishes slope virtual-raster URLs from other protocols
// the host may carry.
const schemeSuffix = "-slope"

// Response is the payload a protocol handler returns to the host.
type Response struct {
	Bytes        []byte
	CacheControl string
	Expires      time.Time
}

// Handler is the core calling convention: awaitable result, cancellation via
// ctx.
type Handler func(ctx context.Context, rawURL string) (*Response, error)

// CallbackHandler is the legacy convention: the result arrives through a
// callback and the returned function cancels the request.
type CallbackHandler func(rawURL string, done func(*Response, error)) (cancel func())

// Host is the surface a map-rendering host exposes for protocol
// registration.
type Host interface {
	AddProtocol(id string, h Handler)
	HasProtocol(id string) bool
}

// Register installs h under base's slope scheme, appending an increasing
// integer suffix until the id is unique on the host. It returns the id
// actually registered.
func Register(host Host, base string, h Handler) string {
	id := base
	for n := 2; host.HasProtocol(id + schemeSuffix); n++ {
		id = base + strconv.Itoa(n)
	}
	host.AddProtocol(id+schemeSuffix, h)
	return id + schemeSuffix
}

// AsCallback adapts the core convention to the legacy one.
func AsCallback(h Handler) CallbackHandler {
	return func(rawURL string, done func(*Response, error)) func() {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			resp, err := h(ctx, rawURL)
			done(resp, err)
		}()
		return cancel
	}
}

// FromCallback adapts a legacy handler to the core convention.
func FromCallback(ch CallbackHandler) Handler {
	return func(ctx context.Context, rawURL string) (*Response, error) {
		type outcome struct {
			resp *Response
			err  error
		}
		out := make(chan outcome, 1)
		cancel := ch(rawURL, func(resp *Response, err error) {
			out <- outcome{resp, err}
		})
		select {
		case <-ctx.Done():
			cancel()
			return nil, ctx.Err()
		case o := <-out:
			return o.resp, o.err
		}
	}
}

// ParseTileURL splits a virtual raster URL of the form
// {id}-slope://{z}/{x}/{y}?maxAngle=&pixelSize=&style= into the tile
// coordinate and render options. Missing query parameters take the render
// defaults.
func ParseTileURL(rawURL string) (tiles.Coord, render.Options, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return tiles.Coord{}, render.Options{}, fmt.Errorf("parse tile url %q: %w", rawURL, err)
	}
	if !strings.HasSuffix(u.Scheme, schemeSuffix) {
		return tiles.Coord{}, render.Options{}, fmt.Errorf("tile url %q: scheme %q is not a slope protocol", rawURL, u.Scheme)
	}

	// The authority slot holds z; the path holds /x/y.
	coord, err := tiles.ParsePath(u.Host + u.Path)
	if err != nil {
		return tiles.Coord{}, render.Options{}, err
	}

	opts := render.Options{Style: render.StyleGray}
	q := u.Query()
	if v := q.Get("maxAngle"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			opts.MaxAngle = f
		}
	}
	if v := q.Get("pixelSize"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			opts.PixelSize = f
		}
	}
	if v := q.Get("style"); v == string(render.StyleColor) {
		opts.Style = render.StyleColor
	}
	return coord, opts, nil
}

// NewHandler builds the protocol handler serving slope tiles from r.
func NewHandler(r *render.Renderer) Handler {
	return func(ctx context.Context, rawURL string) (*Response, error) {
		coord, opts, err := ParseTileURL(rawURL)
		if err != nil {
			return nil, err
		}
		res, err := r.RenderTile(ctx, coord.Z, coord.X, coord.Y, opts)
		if err != nil {
			return nil, err
		}
		return &Response{Bytes: res.Bytes, CacheControl: res.CacheControl, Expires: res.Expires}, nil
	}
}
