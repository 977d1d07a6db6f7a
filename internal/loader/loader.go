// Package loader copies the cleaned trips and the daily summary into the
// relational store.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/database"
	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/repository"
)

// Result counts the rows each table holds after the load
type Result struct {
	Trips     int
	Summaries int
}

// Loader replaces the trips and trip_summary tables from the processed files
type Loader struct {
	cfg       config.Config
	db        *sql.DB
	trips     *repository.TripRepository
	summaries *repository.SummaryRepository
	logger    log.FieldLogger
}

// NewLoader creates a loader over an opened, migrated database
func NewLoader(cfg config.Config, db *sql.DB, logger log.FieldLogger) *Loader {
	return &Loader{
		cfg:       cfg,
		db:        db,
		trips:     repository.NewTripRepository(db),
		summaries: repository.NewSummaryRepository(db),
		logger:    logger.WithField("stage", "load"),
	}
}

// Run loads both tables, one transaction each. Running it twice on the same
// files leaves the same rows.
func (l *Loader) Run(ctx context.Context) (*Result, error) {
	if err := database.VerifyColumns(ctx, l.db, "trips", repository.TripColumns); err != nil {
		return nil, err
	}
	if err := database.VerifyColumns(ctx, l.db, "trip_summary", repository.SummaryColumns); err != nil {
		return nil, err
	}

	trips, err := dataset.ReadCleaned(l.cfg.CleanedPath)
	if err != nil {
		return nil, fmt.Errorf("reading cleaned trips: %w", err)
	}
	summaries, err := dataset.ReadSummaries(l.cfg.SummaryPath)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	err = database.Transaction(ctx, l.db, func(tx *sql.Tx) error {
		return l.trips.Replace(ctx, tx, trips)
	})
	if err != nil {
		return nil, l.fail("trips", err)
	}
	l.logger.WithFields(log.Fields{"table": "trips", "rows": len(trips)}).Info("Loaded table")

	err = database.Transaction(ctx, l.db, func(tx *sql.Tx) error {
		return l.summaries.Replace(ctx, tx, summaries)
	})
	if err != nil {
		return nil, l.fail("trip_summary", err)
	}
	l.logger.WithFields(log.Fields{"table": "trip_summary", "rows": len(summaries)}).Info("Loaded table")

	return &Result{Trips: len(trips), Summaries: len(summaries)}, nil
}

func (l *Loader) fail(table string, err error) error {
	l.logger.WithError(err).WithField("table", table).Error("Load rolled back")
	return fmt.Errorf("loading %s: %w", table, wrapLoad(err))
}

// wrapLoad marks err as a load failure unless it already is one
func wrapLoad(err error) error {
	if errors.Is(err, models.ErrLoadFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrLoadFailure, err)
}
