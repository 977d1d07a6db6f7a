package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/taxi-etl-go/internal/models"
)

// SummaryColumns are the columns of the trip_summary table, in insert order
var SummaryColumns = []string{
	"date", "vendor_id", "trip_count", "avg_passenger_count",
	"avg_trip_distance", "total_fare_amount", "avg_trip_duration_minutes",
}

// SummaryRepository handles database operations for the daily summary
type SummaryRepository struct {
	db *sql.DB
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *sql.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Replace swaps the contents of trip_summary within tx. The primary key
// guarantees one row per (date, vendor_id) however often it runs.
func (r *SummaryRepository) Replace(ctx context.Context, tx *sql.Tx, rows []models.DailyVendorSummary) error {
	if err := clearTable(ctx, tx, "trip_summary"); err != nil {
		return err
	}
	return insertBatched(ctx, tx, "trip_summary", SummaryColumns, len(rows), func(i int) []interface{} {
		s := rows[i]
		return []interface{}{
			s.Date,
			s.VendorID,
			s.TripCount,
			s.AvgPassengerCount,
			s.AvgTripDistance,
			s.TotalFareAmount,
			s.AvgTripDurationMinutes,
		}
	})
}

// List returns every summary row ordered by date then vendor
func (r *SummaryRepository) List(ctx context.Context) ([]models.DailyVendorSummary, error) {
	query := `SELECT date, vendor_id, trip_count, avg_passenger_count,
		avg_trip_distance, total_fare_amount, avg_trip_duration_minutes
		FROM trip_summary ORDER BY date, vendor_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trip summary: %w", err)
	}
	defer rows.Close()

	var out []models.DailyVendorSummary
	for rows.Next() {
		var s models.DailyVendorSummary
		if err := rows.Scan(&s.Date, &s.VendorID, &s.TripCount, &s.AvgPassengerCount,
			&s.AvgTripDistance, &s.TotalFareAmount, &s.AvgTripDurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan trip summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DailyVolume returns the trip count per date summed over vendors
func (r *SummaryRepository) DailyVolume(ctx context.Context) ([]models.DailyVolume, error) {
	query := `SELECT date, SUM(trip_count) FROM trip_summary GROUP BY date ORDER BY date`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily volume: %w", err)
	}
	defer rows.Close()

	var out []models.DailyVolume
	for rows.Next() {
		var v models.DailyVolume
		if err := rows.Scan(&v.Date, &v.TripCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily volume: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
