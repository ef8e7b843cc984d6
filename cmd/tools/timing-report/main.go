// Command timing-report summarises a slopetiled timing log (JSONL) and
// renders an HTML chart of per-request render durations.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
)

var (
	input  = flag.String("in", "timings.jsonl", "Timing log to read")
	output = flag.String("out", "", "Write an HTML chart to this path (optional)")
)

type timingRecord struct {
	RequestID  string    `json:"request_id"`
	Time       time.Time `json:"time"`
	Z          int       `json:"z"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func readRecords(path string) ([]timingRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []timingRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec timingRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			log.Printf("skipping malformed record on line %d: %v", line, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, sc.Err()
}

func summarise(recs []timingRecord) {
	durations := make([]float64, 0, len(recs))
	errors := 0
	for _, r := range recs {
		if r.Error != "" {
			errors++
			continue
		}
		durations = append(durations, r.DurationMS)
	}
	sort.Float64s(durations)

	fmt.Printf("requests:  %d\n", len(recs))
	fmt.Printf("errors:    %d\n", errors)
	if len(durations) == 0 {
		return
	}
	fmt.Printf("mean:      %.2fms\n", stat.Mean(durations, nil))
	fmt.Printf("p50:       %.2fms\n", stat.Quantile(0.50, stat.Empirical, durations, nil))
	fmt.Printf("p95:       %.2fms\n", stat.Quantile(0.95, stat.Empirical, durations, nil))
	fmt.Printf("max:       %.2fms\n", durations[len(durations)-1])
}

func renderChart(recs []timingRecord, path string) error {
	ok := make([]opts.ScatterData, 0, len(recs))
	failed := make([]opts.ScatterData, 0)
	for i, r := range recs {
		point := opts.ScatterData{Value: []interface{}{i, r.DurationMS}}
		if r.Error != "" {
			failed = append(failed, point)
		} else {
			ok = append(ok, point)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tile Render Timings", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tile Render Timings", Subtitle: fmt.Sprintf("requests=%d", len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "request"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (ms)"}),
	)
	scatter.AddSeries("ok", ok, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if len(failed) > 0 {
		scatter.AddSeries("failed", failed, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return scatter.Render(f)
}

func main() {
	flag.Parse()

	recs, err := readRecords(*input)
	if err != nil {
		log.Fatalf("failed to read %s: %v", *input, err)
	}
	if len(recs) == 0 {
		log.Fatalf("no timing records in %s", *input)
	}

	summarise(recs)

	if *output != "" {
		if err := renderChart(recs, *output); err != nil {
			log.Fatalf("failed to render chart: %v", err)
		}
		fmt.Printf("chart:     %s\n", *output)
	}
}
