package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TimingStats summarises a set of request durations.
type TimingStats struct {
	Count  int           `json:"count"`
	Errors int           `json:"errors"`
	Mean   time.Duration `json:"mean_ns"`
	P50    time.Duration `json:"p50_ns"`
	P95    time.Duration `json:"p95_ns"`
	Max    time.Duration `json:"max_ns"`
}

// TimingWindow accumulates recent request durations in a bounded ring so a
// long-running server can report statistics without unbounded growth.
type TimingWindow struct {
	mu     sync.Mutex
	size   int
	durs   []time.Duration
	next   int
	full   bool
	errors int
	total  int
}

// NewTimingWindow creates a window holding up to size observations.
func NewTimingWindow(size int) *TimingWindow {
	if size <= 0 {
		size = 1024
	}
	return &TimingWindow{size: size, durs: make([]time.Duration, size)}
}

// Observe records one request duration.
func (w *TimingWindow) Observe(d time.Duration, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.durs[w.next] = d
	w.next = (w.next + 1) % w.size
	if w.next == 0 {
		w.full = true
	}
	w.total++
	if failed {
		w.errors++
	}
}

// Stats computes summary statistics over the observations currently held.
func (w *TimingWindow) Stats() TimingStats {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = w.size
	}
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(w.durs[i])
	}
	out := TimingStats{Count: w.total, Errors: w.errors}
	w.mu.Unlock()

	if n == 0 {
		return out
	}
	sort.Float64s(samples)
	out.Mean = time.Duration(stat.Mean(samples, nil))
	out.P50 = time.Duration(stat.Quantile(0.5, stat.Empirical, samples, nil))
	out.P95 = time.Duration(stat.Quantile(0.95, stat.Empirical, samples, nil))
	out.Max = time.Duration(samples[n-1])
	return out
}
