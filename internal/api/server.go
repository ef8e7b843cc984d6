package api

import (
	"bytes"
	"errors"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/reliefmaps/slopetiles/internal/fetch"
	"github.com/reliefmaps/slopetiles/internal/httputil"
	"github.com/reliefmaps/slopetiles/internal/monitoring"
	"github.com/reliefmaps/slopetiles/internal/render"
	"github.com/reliefmaps/slopetiles/internal/tiles"
	"github.com/reliefmaps/slopetiles/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes rendered slope tiles and request statistics over HTTP.
type Server struct {
	renderer *render.Renderer
	timings  *monitoring.TimingWindow
	defaults render.Options
}

// NewServer wires a renderer into the HTTP surface. The defaults fill in any
// render option a request leaves unset; a zero PixelSize derives the sample
// spacing from the tile's latitude.
func NewServer(r *render.Renderer, timings *monitoring.TimingWindow, defaults render.Options) *Server {
	return &Server{
		renderer: r,
		timings:  timings,
		defaults: defaults,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/tiles/", s.renderTileHandler)
	mux.HandleFunc("/api/stats", s.showTimingStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// parseOptions merges the server defaults with the request's query
// parameters. Unknown or out-of-range values are rejected rather than
// silently clamped.
func (s *Server) parseOptions(r *http.Request, c tiles.Coord) (render.Options, error) {
	opts := s.defaults
	q := r.URL.Query()

	if v := q.Get("maxAngle"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 90 {
			return opts, errors.New("maxAngle must be in (0, 90]")
		}
		opts.MaxAngle = f
	}
	if v := q.Get("pixelSize"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, errors.New("pixelSize must be positive")
		}
		opts.PixelSize = f
	}
	if v := q.Get("style"); v != "" {
		switch render.Style(v) {
		case render.StyleGray, render.StyleColor:
			opts.Style = render.Style(v)
		default:
			return opts, errors.New("style must be gray or color")
		}
	}
	if opts.PixelSize == 0 {
		opts.PixelSize = c.GroundResolution()
	}
	return opts, nil
}

func (s *Server) renderTileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	coord, err := tiles.ParsePath(strings.TrimPrefix(r.URL.Path, "/tiles/"))
	if err != nil {
		httputil.BadRequest(w, "expected /tiles/{z}/{x}/{y}.png")
		return
	}
	if !coord.Valid() {
		httputil.BadRequest(w, "tile out of range: "+coord.String())
		return
	}
	opts, err := s.parseOptions(r, coord)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.renderer.RenderTile(r.Context(), coord.Z, coord.X, coord.Y, opts)
	if err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			httputil.NotFound(w, "no elevation data for tile "+coord.String())
			return
		}
		monitoring.Logf("render %s failed: %v", coord, err)
		httputil.InternalServerError(w, "tile render failed")
		return
	}

	w.Header().Set("Cache-Control", res.CacheControl)
	w.Header().Set("Expires", res.Expires.UTC().Format(http.TimeFormat))

	if r.URL.Query().Get("format") == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(res.Bytes)
		return
	}

	img := &image.NRGBA{
		Pix:    res.Bytes,
		Stride: res.Width * 4,
		Rect:   image.Rect(0, 0, res.Width, res.Height),
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		monitoring.Logf("png encode for %s failed: %v", coord, err)
		httputil.InternalServerError(w, "png encode failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) showTimingStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.timings.Stats())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    version.Version,
		"max_angle":  s.defaults.MaxAngle,
		"pixel_size": s.defaults.PixelSize,
		"style":      s.defaults.Style,
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}
