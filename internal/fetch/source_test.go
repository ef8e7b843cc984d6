package fetch

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/reliefmaps/slopetiles/internal/cache"
	"github.com/reliefmaps/slopetiles/internal/dem"
	"github.com/reliefmaps/slopetiles/internal/httputil"
	"github.com/reliefmaps/slopetiles/internal/timeutil"
)

const template = "https://dem.test/{z}/{x}/{y}.png"

func flatTilePNG(t *testing.T, w, h int, elev float64) []byte {
	t.Helper()
	g := dem.NewDenseGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, elev)
		}
	}
	data, err := dem.EncodeTerrainRGB(g, dem.Terrarium)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return data
}

func TestGetData_Success(t *testing.T) {
	mock := httputil.NewMockClient()
	headers := http.Header{}
	headers.Set("Cache-Control", "public, max-age=600")
	mock.RespondWithHeaders("https://dem.test/data", http.StatusOK, []byte("abc"), headers)

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s := NewSource(mock, template, dem.Terrarium)
	s.Clock = clock

	res, err := s.GetData(context.Background(), "https://dem.test/data")
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	if string(res.Bytes) != "abc" {
		t.Errorf("bytes = %q, want abc", res.Bytes)
	}
	if res.CacheControl != "public, max-age=600" {
		t.Errorf("cache-control = %q", res.CacheControl)
	}
	if want := clock.Now().Add(10 * time.Minute); !res.Expires.Equal(want) {
		t.Errorf("expires = %v, want %v", res.Expires, want)
	}
}

func TestGetData_ExpiresHeaderFallback(t *testing.T) {
	exp := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	headers := http.Header{}
	headers.Set("Expires", exp.Format(http.TimeFormat))
	mock := httputil.NewMockClient()
	mock.RespondWithHeaders("https://dem.test/data", http.StatusOK, nil, headers)

	s := NewSource(mock, template, dem.Terrarium)
	res, err := s.GetData(context.Background(), "https://dem.test/data")
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	if !res.Expires.Equal(exp) {
		t.Errorf("expires = %v, want %v", res.Expires, exp)
	}
}

func TestGetData_StatusError(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.Respond("https://dem.test/missing", http.StatusNotFound, nil)

	s := NewSource(mock, template, dem.Terrarium)
	_, err := s.GetData(context.Background(), "https://dem.test/missing")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound || se.URL != "https://dem.test/missing" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestGetData_Cancellation(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.Respond("https://dem.test/slow", http.StatusOK, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSource(mock, template, dem.Terrarium)
	if _, err := s.GetData(ctx, "https://dem.test/slow"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFetchAndParseTile_DecodesGrid(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.Respond("https://dem.test/5/10/10.png", http.StatusOK, flatTilePNG(t, 4, 4, 100))

	s := NewSource(mock, template, dem.Terrarium)
	g, err := s.FetchAndParseTile(context.Background(), 5, 10, 10)
	if err != nil {
		t.Fatalf("FetchAndParseTile failed: %v", err)
	}
	if g.Width() != 4 || g.Height() != 4 {
		t.Fatalf("grid = %dx%d, want 4x4", g.Width(), g.Height())
	}
	if got := g.Sample(2, 2); got < 99.9 || got > 100.1 {
		t.Errorf("Sample(2,2) = %f, want ~100", got)
	}
}

func TestFetchAndParseTile_BadBytes(t *testing.T) {
	mock := httputil.NewMockClient()
	mock.Respond("https://dem.test/5/10/10.png", http.StatusOK, []byte("not a png"))

	s := NewSource(mock, template, dem.Terrarium)
	if _, err := s.FetchAndParseTile(context.Background(), 5, 10, 10); err == nil {
		t.Error("expected decode error")
	}
}

func TestFetchAndParseTile_CacheReadThrough(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	store, err := cache.Open(filepath.Join(t.TempDir(), "tiles.db"), clock)
	if err != nil {
		t.Fatalf("cache open: %v", err)
	}
	defer store.Close()

	tile := flatTilePNG(t, 4, 4, 100)
	headers := http.Header{}
	headers.Set("Cache-Control", "public, max-age=3600")
	mock := httputil.NewMockClient()
	mock.RespondWithHeaders("https://dem.test/5/10/10.png", http.StatusOK, tile, headers)

	s := NewSource(mock, template, dem.Terrarium)
	s.Store = store
	s.Clock = clock

	if _, err := s.FetchAndParseTile(context.Background(), 5, 10, 10); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := s.FetchAndParseTile(context.Background(), 5, 10, 10); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if n := mock.RequestCount(); n != 1 {
		t.Errorf("network requests = %d, want 1 (second fetch should hit cache)", n)
	}

	// After expiry the source goes back to the network.
	clock.Advance(2 * time.Hour)
	if _, err := s.FetchAndParseTile(context.Background(), 5, 10, 10); err != nil {
		t.Fatalf("post-expiry fetch: %v", err)
	}
	if n := mock.RequestCount(); n != 2 {
		t.Errorf("network requests = %d, want 2 after expiry", n)
	}
}
