// Package report renders the PNG charts over the processed data.
package report

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/stats"
)

// Chart file names
const (
	ChartDailyVolume  = "daily_trip_volume.png"
	ChartDistanceDist = "trip_distance_distribution.png"
	ChartFareDist     = "fare_amount_distribution.png"
)

// ChartNames lists every chart the reporter writes, in render order
var ChartNames = []string{ChartDailyVolume, ChartDistanceDist, ChartFareDist}

// HistogramBins is the bin count of both distribution charts
const HistogramBins = 50

// ChartResult is the outcome of one chart. Err wraps models.ErrRender.
type ChartResult struct {
	Name string
	Path string
	Err  error
}

// Result describes one reporting run
type Result struct {
	Status string // completed or degraded
	Charts []ChartResult
}

// Files returns the paths of the charts that were written
func (r *Result) Files() []string {
	var files []string
	for _, c := range r.Charts {
		if c.Err == nil {
			files = append(files, c.Path)
		}
	}
	return files
}

// Failed returns the charts that could not be rendered
func (r *Result) Failed() []ChartResult {
	var failed []ChartResult
	for _, c := range r.Charts {
		if c.Err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}

// Reporter writes charts into cfg.PlotsDir
type Reporter struct {
	cfg    config.Config
	logger log.FieldLogger
}

// NewReporter creates a reporter
func NewReporter(cfg config.Config, logger log.FieldLogger) *Reporter {
	return &Reporter{cfg: cfg, logger: logger.WithField("stage", "report")}
}

// Run reads the processed files and renders every chart. An unreadable
// input fails the charts that depend on it; it never fails the run.
func (r *Reporter) Run(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summaries, sumErr := dataset.ReadSummaries(r.cfg.SummaryPath)
	trips, tripErr := dataset.ReadCleaned(r.cfg.CleanedPath)

	var charts []ChartResult
	if sumErr != nil {
		charts = append(charts, r.failed(ChartDailyVolume, sumErr))
	} else {
		charts = append(charts, r.renderVolume(summaries))
	}
	if tripErr != nil {
		charts = append(charts, r.failed(ChartDistanceDist, tripErr), r.failed(ChartFareDist, tripErr))
	} else {
		charts = append(charts, r.renderDistributions(trips)...)
	}

	return r.finish(charts), nil
}

// Render draws all charts from in-memory data. One chart failing never
// stops the others.
func (r *Reporter) Render(summaries []models.DailyVendorSummary, trips []models.CleanedTrip) []ChartResult {
	return append([]ChartResult{r.renderVolume(summaries)}, r.renderDistributions(trips)...)
}

func (r *Reporter) finish(charts []ChartResult) *Result {
	res := &Result{Status: models.StageStatusCompleted, Charts: charts}
	for _, c := range charts {
		if c.Err != nil {
			res.Status = models.StageStatusDegraded
			r.logger.WithError(c.Err).WithField("chart", c.Name).Warn("Chart not rendered")
		}
	}
	r.logger.WithFields(log.Fields{"charts": len(res.Files()), "status": res.Status, "dir": r.cfg.PlotsDir}).Info("Saved charts")
	return res
}

// failed drops any chart left by an earlier run under the same name, so the
// plots directory only holds charts of the latest report
func (r *Reporter) failed(name string, err error) ChartResult {
	if !errors.Is(err, models.ErrRender) {
		err = fmt.Errorf("%w: %v", models.ErrRender, err)
	}
	path := filepath.Join(r.cfg.PlotsDir, name)
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		r.logger.WithError(rmErr).WithField("chart", name).Warn("Could not remove stale chart")
	}
	return ChartResult{Name: name, Path: path, Err: err}
}

func (r *Reporter) renderVolume(summaries []models.DailyVendorSummary) ChartResult {
	xys, err := dailyVolume(summaries)
	if err != nil {
		return r.failed(ChartDailyVolume, err)
	}

	p := plot.New()
	p.Title.Text = "Daily Trip Volume (all vendors)"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Number of Trips"
	p.X.Tick.Marker = plot.TimeTicks{Format: models.DateLayout}
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return r.failed(ChartDailyVolume, err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	points.Color = line.Color
	p.Add(line, points)

	return r.save(ChartDailyVolume, p, 10*vg.Inch, 5*vg.Inch)
}

// dailyVolume sums trip_count per date across vendors. X values are unix
// seconds so the axis can use time ticks.
func dailyVolume(summaries []models.DailyVendorSummary) (plotter.XYs, error) {
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: no summary rows", models.ErrRender)
	}

	totals := make(map[string]int)
	for _, s := range summaries {
		if s.TripCount <= 0 {
			return nil, fmt.Errorf("%w: trip_count %d for %s vendor %s", models.ErrRender, s.TripCount, s.Date, s.VendorID)
		}
		totals[s.Date] += s.TripCount
	}

	dates := make([]string, 0, len(totals))
	for d := range totals {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	xys := make(plotter.XYs, len(dates))
	for i, d := range dates {
		day, err := time.Parse(models.DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date %q", models.ErrRender, d)
		}
		xys[i].X = float64(day.Unix())
		xys[i].Y = float64(totals[d])
	}
	return xys, nil
}

type histogramSpec struct {
	name   string
	title  string
	xLabel string
	fill   color.Color
	value  func(models.CleanedTrip) float64
}

var histograms = []histogramSpec{
	{
		name:   ChartDistanceDist,
		title:  "Distribution of Trip Distances",
		xLabel: "Trip Distance (miles)",
		fill:   color.RGBA{R: 135, G: 206, B: 235, A: 255},
		value:  func(t models.CleanedTrip) float64 { return t.TripDistance },
	},
	{
		name:   ChartFareDist,
		title:  "Distribution of Fare Amounts",
		xLabel: "Fare Amount (USD)",
		fill:   color.RGBA{R: 250, G: 128, B: 114, A: 255},
		value:  func(t models.CleanedTrip) float64 { return t.FareAmount },
	},
}

func (r *Reporter) renderDistributions(trips []models.CleanedTrip) []ChartResult {
	out := make([]ChartResult, 0, len(histograms))
	for _, spec := range histograms {
		out = append(out, r.renderHistogram(spec, trips))
	}
	return out
}

func (r *Reporter) renderHistogram(spec histogramSpec, trips []models.CleanedTrip) ChartResult {
	values := make(plotter.Values, len(trips))
	for i, t := range trips {
		values[i] = spec.value(t)
	}
	if err := checkSeries(values); err != nil {
		return r.failed(spec.name, err)
	}

	s := stats.Describe(values)
	r.logger.WithFields(log.Fields{
		"chart":  spec.name,
		"count":  s.Count,
		"mean":   s.Mean,
		"median": s.Median,
		"p95":    s.P95,
	}).Info("Distribution")

	p := plot.New()
	p.Title.Text = spec.title
	p.X.Label.Text = spec.xLabel
	p.Y.Label.Text = "Frequency"

	h, err := plotter.NewHist(values, HistogramBins)
	if err != nil {
		return r.failed(spec.name, err)
	}
	h.FillColor = spec.fill
	h.LineStyle.Color = color.Black
	p.Add(h)

	return r.save(spec.name, p, 8*vg.Inch, 4*vg.Inch)
}

func checkSeries(values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: empty series", models.ErrRender)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at row %d", models.ErrRender, i)
		}
	}
	return nil
}

func (r *Reporter) save(name string, p *plot.Plot, w, h vg.Length) ChartResult {
	path := filepath.Join(r.cfg.PlotsDir, name)
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return r.failed(name, err)
	}
	err = dataset.WriteFileAtomic(path, func(out io.Writer) error {
		_, err := wt.WriteTo(out)
		return err
	})
	if err != nil {
		return r.failed(name, err)
	}
	return ChartResult{Name: name, Path: path}
}
