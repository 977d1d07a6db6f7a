package loader

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/database"
	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
	"github.com/jengzang/taxi-etl-go/internal/repository"
)

func setup(t *testing.T) (config.Config, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "taxi.db")
	cfg.CleanedPath = filepath.Join(dir, "cleaned.csv")
	cfg.SummaryPath = filepath.Join(dir, "summary.csv")

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	require.NoError(t, database.Migrate(context.Background(), db, config.DriverSQLite, logger))
	return cfg, db
}

func writeInputs(t *testing.T, cfg config.Config, summaries []models.DailyVendorSummary) {
	t.Helper()
	pickup := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	trips := []models.CleanedTrip{
		models.NewCleanedTrip(models.TripRecord{VendorID: "1", PickupAt: pickup, DropoffAt: pickup.Add(10 * time.Minute), PassengerCount: 1, TripDistance: 2, FareAmount: 10, PaymentType: 1}),
		models.NewCleanedTrip(models.TripRecord{VendorID: "1", PickupAt: pickup, DropoffAt: pickup.Add(20 * time.Minute), PassengerCount: 3, TripDistance: 4, FareAmount: 20, PaymentType: 2}),
	}
	require.NoError(t, dataset.WriteCleaned(cfg.CleanedPath, trips))
	require.NoError(t, dataset.WriteSummaries(cfg.SummaryPath, summaries))
}

var goodSummary = []models.DailyVendorSummary{
	{Date: "2025-01-01", VendorID: "1", TripCount: 2, AvgPassengerCount: 2, AvgTripDistance: 3, TotalFareAmount: 30, AvgTripDurationMinutes: 15},
}

func TestLoadTwiceKeepsOneRowPerKey(t *testing.T) {
	cfg, db := setup(t)
	writeInputs(t, cfg, goodSummary)
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := NewLoader(cfg, db, logger).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, &Result{Trips: 2, Summaries: 1}, res)
	}

	rows, err := repository.NewSummaryRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, goodSummary, rows)

	n, err := repository.NewTripRepository(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoadFailureRollsBack(t *testing.T) {
	cfg, db := setup(t)
	writeInputs(t, cfg, goodSummary)
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	_, err := NewLoader(cfg, db, logger).Run(ctx)
	require.NoError(t, err)

	bad := append(append([]models.DailyVendorSummary{}, goodSummary...),
		models.DailyVendorSummary{Date: "2025-01-02", VendorID: "1", TripCount: -1})
	writeInputs(t, cfg, bad)

	_, err = NewLoader(cfg, db, logger).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrLoadFailure))

	rows, err := repository.NewSummaryRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, goodSummary, rows)
}

func TestLoadRequiresSchema(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "empty.db")
	cfg.CleanedPath = filepath.Join(dir, "cleaned.csv")
	cfg.SummaryPath = filepath.Join(dir, "summary.csv")
	db, err := database.Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	logger, _ := test.NewNullLogger()
	_, err = NewLoader(cfg, db, logger).Run(context.Background())
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestLoadMissingInput(t *testing.T) {
	cfg, db := setup(t)
	logger, _ := test.NewNullLogger()
	_, err := NewLoader(cfg, db, logger).Run(context.Background())
	assert.Error(t, err)
}
