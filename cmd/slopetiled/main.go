// Command slopetiled serves slope-angle raster tiles computed from remote
// terrain-RGB elevation tiles.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"

	"github.com/reliefmaps/slopetiles/internal/api"
	"github.com/reliefmaps/slopetiles/internal/cache"
	"github.com/reliefmaps/slopetiles/internal/config"
	"github.com/reliefmaps/slopetiles/internal/dem"
	"github.com/reliefmaps/slopetiles/internal/fetch"
	"github.com/reliefmaps/slopetiles/internal/httputil"
	"github.com/reliefmaps/slopetiles/internal/monitoring"
	"github.com/reliefmaps/slopetiles/internal/render"
	"github.com/reliefmaps/slopetiles/internal/timeutil"
	"github.com/reliefmaps/slopetiles/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to TOML config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
)

const timingWindowSize = 512

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		log.Warnf("unknown log level %q, using info", level)
	} else {
		log.SetLevel(lvl)
	}
	return log
}

// timingRecord is the JSONL schema written to the timing log for later
// analysis with the timing-report tool.
type timingRecord struct {
	RequestID  string    `json:"request_id"`
	Time       time.Time `json:"time"`
	Z          int       `json:"z"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func timingLogger(path string, log *logrus.Logger) (func(render.Timing), func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	var mu sync.Mutex
	enc := json.NewEncoder(f)
	observe := func(t render.Timing) {
		rec := timingRecord{
			RequestID:  t.RequestID,
			Time:       time.Now().UTC(),
			Z:          t.Z,
			X:          t.X,
			Y:          t.Y,
			DurationMS: float64(t.Duration.Nanoseconds()) / 1e6,
		}
		if t.Err != nil {
			rec.Error = t.Err.Error()
		}
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(rec); err != nil {
			log.Warnf("timing log write failed: %v", err)
		}
	}
	return observe, f.Close, nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log := newLogger(cfg.LogLevel)
	monitoring.UseLogrus(log)
	log.Infof("slopetiled %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	clock := timeutil.RealClock{}

	source := fetch.NewSource(
		httputil.NewStandardClient(nil),
		cfg.DemURL,
		dem.Encoding(cfg.DemEncoding),
	)
	source.Clock = clock
	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath, clock)
		if err != nil {
			log.Fatalf("failed to open tile cache %s: %v", cfg.CachePath, err)
		}
		defer store.Close()
		source.Store = store
		log.Infof("tile cache at %s", cfg.CachePath)
	}

	renderer := render.New(source.FetchAndParseTile, clock)

	timings := monitoring.NewTimingWindow(timingWindowSize)
	renderer.OnTiming(func(t render.Timing) {
		timings.Observe(t.Duration, t.Err != nil)
	})
	if cfg.TimingLog != "" {
		observe, closeLog, err := timingLogger(cfg.TimingLog, log)
		if err != nil {
			log.Fatalf("failed to open timing log %s: %v", cfg.TimingLog, err)
		}
		defer closeLog()
		renderer.OnTiming(observe)
		log.Infof("timing log at %s", cfg.TimingLog)
	}

	srv := api.NewServer(renderer, timings, render.Options{
		MaxAngle:  cfg.MaxAngle,
		PixelSize: cfg.PixelSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.LoggingMiddleware(srv.ServeMux()),
	}

	go func() {
		log.Infof("serving slope tiles on %s from %s", cfg.Listen, cfg.DemURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}
}
