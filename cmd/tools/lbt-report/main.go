// Command lbt-report renders an HTML occupancy report for a recorded
// channel-access run: sensed energy against the detection threshold
// over time, the free/busy split, and energy percentiles.
//
// Usage:
//
//	go run ./cmd/tools/lbt-report -db lbt_data.db [-run RUN_ID] [-out report.html]
//
// With no -run flag the most recent run is reported.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/spectrum.report/internal/db"
)

func main() {
	dbPath := flag.String("db", "lbt_data.db", "Sqlite database path")
	runID := flag.String("run", "", "Run ID to report (default: most recent)")
	outPath := flag.String("out", "lbt_report.html", "Output HTML path")
	maxPoints := flag.Int("max-points", 20000, "Downsample the energy series to at most this many points")
	flag.Parse()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	id := *runID
	if id == "" {
		runs, err := database.Runs()
		if err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) == 0 {
			log.Fatal("no runs recorded")
		}
		id = runs[0].RunID
		log.Printf("reporting most recent run %s (%s, started %s)",
			id, runs[0].Mode, runs[0].StartedAt.Format(time.RFC3339))
	}

	events, err := database.SensingEvents(id, 0)
	if err != nil {
		log.Fatalf("failed to load events: %v", err)
	}
	if len(events) == 0 {
		log.Fatalf("run %s has no sensing events", id)
	}

	summary, err := database.SummariseRun(id)
	if err != nil {
		log.Fatalf("failed to summarise run: %v", err)
	}

	page := components.NewPage()
	page.PageTitle = "LBT occupancy report"
	page.AddCharts(
		energyChart(events, *maxPoints),
		occupancyChart(summary),
		percentileChart(events),
	)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}

	log.Printf("wrote %s: %d events, busy ratio %.1f%%, energy [%.1f, %.1f] dBm",
		*outPath, summary.EventCount, summary.BusyRatio*100,
		summary.MinEnergyDbm, summary.MaxEnergyDbm)
}

// energyChart plots sensed energy and the detection threshold over the
// course of the run, downsampled by stride to keep the page light.
func energyChart(events []db.StoredEvent, maxPoints int) *charts.Line {
	stride := 1
	if maxPoints > 0 && len(events) > maxPoints {
		stride = (len(events) + maxPoints - 1) / maxPoints
	}

	start := events[0].TimestampUs
	var axis []string
	var energy, threshold []opts.LineData
	for i := 0; i < len(events); i += stride {
		ev := events[i]
		axis = append(axis, fmt.Sprintf("%.3f", float64(ev.TimestampUs-start)/1e6))
		energy = append(energy, opts.LineData{Value: ev.EnergyDbm})
		threshold = append(threshold, opts.LineData{Value: ev.ThresholdDbm})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Sensed energy",
			Subtitle: fmt.Sprintf("%d events, stride %d", len(events), stride),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dBm"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(axis).
		AddSeries("energy", energy).
		AddSeries("ED threshold", threshold)
	return line
}

func occupancyChart(summary *db.RunSummary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Channel occupancy",
			Subtitle: fmt.Sprintf("busy ratio %.1f%%", summary.BusyRatio*100),
		}),
	)
	bar.SetXAxis([]string{"free", "busy"}).
		AddSeries("checks", []opts.BarData{
			{Value: summary.EventCount - summary.BusyCount},
			{Value: summary.BusyCount},
		})
	return bar
}

// percentileChart shows the energy distribution as quantiles, which is
// more useful than a mean when interferers are bursty.
func percentileChart(events []db.StoredEvent) *charts.Bar {
	energies := make([]float64, len(events))
	for i, ev := range events {
		energies[i] = ev.EnergyDbm
	}
	sort.Float64s(energies)

	quantiles := []float64{0.05, 0.25, 0.5, 0.75, 0.95, 0.99}
	var axis []string
	var data []opts.BarData
	for _, q := range quantiles {
		axis = append(axis, fmt.Sprintf("p%02.0f", q*100))
		data = append(data, opts.BarData{
			Value: stat.Quantile(q, stat.Empirical, energies, nil),
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Energy percentiles"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dBm"}),
	)
	bar.SetXAxis(axis).AddSeries("energy", data)
	return bar
}
