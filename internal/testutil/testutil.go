// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reliefmaps/slopetiles/internal/dem"
)

// FlatGrid builds a w×h dense elevation grid at a constant elevation.
func FlatGrid(w, h int, elev float64) *dem.DenseGrid {
	g := dem.NewDenseGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, elev)
		}
	}
	return g
}

// GridFromRows builds a dense grid from row-major elevation rows. Use NaN
// for no-data cells.
func GridFromRows(t *testing.T, rows [][]float64) *dem.DenseGrid {
	t.Helper()
	if len(rows) == 0 {
		t.Fatal("GridFromRows: no rows")
	}
	g := dem.NewDenseGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != len(rows[0]) {
			t.Fatalf("GridFromRows: ragged row %d", y)
		}
		for x, v := range row {
			g.Set(x, y, v)
		}
	}
	return g
}

// AssertSample checks one grid sample against an expected value, treating
// NaN as equal to NaN.
func AssertSample(t *testing.T, g dem.Grid, x, y int, want float64) {
	t.Helper()
	got := g.Sample(x, y)
	if math.IsNaN(want) {
		if !math.IsNaN(got) {
			t.Errorf("Sample(%d,%d) = %f, want NaN", x, y, got)
		}
		return
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Sample(%d,%d) = %f, want %f", x, y, got, want)
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
