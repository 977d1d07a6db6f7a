// Package transform turns the raw dump into the cleaned trip set and the
// per-day, per-vendor summary.
package transform

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// Result describes one transformation run
type Result struct {
	Stats       Stats
	Trips       []models.CleanedTrip
	Summaries   []models.DailyVendorSummary
	Aggregator  string
	CleanedPath string
	SummaryPath string
}

// Transformer reads cfg.RawPath and writes cfg.CleanedPath and cfg.SummaryPath
type Transformer struct {
	cfg    config.Config
	logger log.FieldLogger
}

// NewTransformer creates a transformer
func NewTransformer(cfg config.Config, logger log.FieldLogger) *Transformer {
	return &Transformer{cfg: cfg, logger: logger.WithField("stage", "transform")}
}

// ReadRaw loads the raw dump and checks it carries every required column
func ReadRaw(path string) (*dataset.Table, error) {
	tbl, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := tbl.Require(dataset.RawColumns...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}

// Run cleans and aggregates the raw dump. Both outputs are replaced
// atomically; a failure leaves the previous files in place.
func (t *Transformer) Run(ctx context.Context) (*Result, error) {
	tbl, err := ReadRaw(t.cfg.RawPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trips, stats, err := Clean(tbl, t.cfg.MalformedPolicy)
	if err != nil {
		return nil, err
	}
	if stats.DroppedTotal() > 0 {
		t.logger.WithFields(log.Fields{
			"dropped": stats.DroppedTotal(),
			"reasons": stats.Dropped,
		}).Warnf("Dropped invalid rows: %v", models.ErrValidationDrop)
	}

	agg := SelectAggregator(t.cfg.Aggregator, len(trips), t.cfg.TableThreshold)
	summaries, err := agg.Aggregate(trips)
	if err != nil {
		return nil, fmt.Errorf("aggregating with %s: %w", agg.Name(), err)
	}

	if err := dataset.WriteCleaned(t.cfg.CleanedPath, trips); err != nil {
		return nil, fmt.Errorf("writing cleaned trips: %w", err)
	}
	if err := dataset.WriteSummaries(t.cfg.SummaryPath, summaries); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}

	t.logger.WithFields(log.Fields{
		"rows":       stats.Total,
		"valid":      stats.Valid,
		"groups":     len(summaries),
		"aggregator": agg.Name(),
	}).Info("Transformed trips")

	return &Result{
		Stats:       stats,
		Trips:       trips,
		Summaries:   summaries,
		Aggregator:  agg.Name(),
		CleanedPath: t.cfg.CleanedPath,
		SummaryPath: t.cfg.SummaryPath,
	}, nil
}
