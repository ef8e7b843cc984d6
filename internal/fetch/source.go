// Package fetch retrieves DEM tiles over HTTP and decodes them into
// elevation grids. It validates response statuses, extracts cache metadata
// from headers, and optionally reads through a persistent tile cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reliefmaps/slopetiles/internal/cache"
	"github.com/reliefmaps/slopetiles/internal/dem"
	"github.com/reliefmaps/slopetiles/internal/httputil"
	"github.com/reliefmaps/slopetiles/internal/monitoring"
	"github.com/reliefmaps/slopetiles/internal/tiles"
	"github.com/reliefmaps/slopetiles/internal/timeutil"
)

// DefaultTileTTL is applied when a response carries no usable cache headers.
const DefaultTileTTL = time.Hour

// Result carries fetched bytes plus the cache metadata extracted from the
// response headers.
type Result struct {
	Bytes        []byte
	CacheControl string
	Expires      time.Time
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// Source fetches and decodes DEM tiles from a {z}/{x}/{y} URL template.
type Source struct {
	Client   httputil.Client
	Template string
	Encoding dem.Encoding
	Store    *cache.Store // optional read-through cache
	Clock    timeutil.Clock
}

// NewSource builds a tile source. A nil client uses http.DefaultClient; a
// nil clock uses the real one.
func NewSource(client httputil.Client, template string, enc dem.Encoding) *Source {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Source{
		Client:   client,
		Template: template,
		Encoding: enc,
		Clock:    timeutil.RealClock{},
	}
}

// GetData performs one HTTP GET bound to ctx. Non-2xx statuses are returned
// as *StatusError carrying the code and URL.
func (s *Source) GetData(ctx context.Context, url string) (Result, error) {
	resp, err := httputil.Get(ctx, s.Client, url)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &StatusError{Code: resp.StatusCode, URL: url}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", url, err)
	}
	return Result{
		Bytes:        body,
		CacheControl: resp.Header.Get("Cache-Control"),
		Expires:      s.expiryFrom(resp.Header),
	}, nil
}

// expiryFrom derives an absolute expiry from response headers, preferring
// Cache-Control max-age over Expires, falling back to DefaultTileTTL.
func (s *Source) expiryFrom(h http.Header) time.Time {
	now := s.clock().Now()
	if cc := h.Get("Cache-Control"); cc != "" {
		for _, part := range strings.Split(cc, ",") {
			part = strings.TrimSpace(part)
			if v, ok := strings.CutPrefix(part, "max-age="); ok {
				if d, err := time.ParseDuration(v + "s"); err == nil {
					return now.Add(d)
				}
			}
		}
	}
	if exp := h.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			return t
		}
	}
	return now.Add(DefaultTileTTL)
}

// FetchAndParseTile retrieves one DEM tile and decodes it into an elevation
// grid. Cache hits skip the network; successful fetches are stored for their
// advertised lifetime.
func (s *Source) FetchAndParseTile(ctx context.Context, z, x, y int) (dem.Grid, error) {
	c := tiles.Coord{Z: z, X: x, Y: y}
	if s.Store != nil {
		if data, _, ok := s.Store.Get(c); ok {
			monitoring.Logf("tile %s: cache hit (%d bytes)", c, len(data))
			return dem.DecodeTerrainRGB(data, s.Encoding)
		}
	}

	res, err := s.GetData(ctx, tiles.URL(s.Template, c))
	if err != nil {
		return nil, err
	}
	grid, err := dem.DecodeTerrainRGB(res.Bytes, s.Encoding)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", c, err)
	}
	if s.Store != nil {
		if err := s.Store.Put(c, res.Bytes, res.Expires); err != nil {
			monitoring.Logf("tile %s: cache store failed: %v", c, err)
		}
	}
	return grid, nil
}

func (s *Source) clock() timeutil.Clock {
	if s.Clock == nil {
		return timeutil.RealClock{}
	}
	return s.Clock
}
