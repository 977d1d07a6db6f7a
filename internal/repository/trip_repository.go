package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// TripColumns are the columns of the trips table, in insert order
var TripColumns = []string{
	"vendor_id", "pickup_datetime", "dropoff_datetime", "passenger_count",
	"trip_distance", "fare_amount", "payment_type", "trip_duration_minutes",
}

// TripRepository handles database operations for cleaned trips
type TripRepository struct {
	db *sql.DB
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Replace swaps the contents of trips for the given set within tx
func (r *TripRepository) Replace(ctx context.Context, tx *sql.Tx, trips []models.CleanedTrip) error {
	if err := clearTable(ctx, tx, "trips"); err != nil {
		return err
	}
	return insertBatched(ctx, tx, "trips", TripColumns, len(trips), func(i int) []interface{} {
		t := trips[i]
		return []interface{}{
			t.VendorID,
			dataset.FormatTimestamp(t.PickupAt),
			dataset.FormatTimestamp(t.DropoffAt),
			t.PassengerCount,
			t.TripDistance,
			t.FareAmount,
			t.PaymentType,
			t.TripDurationMinutes,
		}
	})
}

// Count returns the number of stored trips
func (r *TripRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trips").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return n, nil
}

// List returns up to limit trips ordered by pickup time
func (r *TripRepository) List(ctx context.Context, limit int) ([]models.CleanedTrip, error) {
	query := `SELECT vendor_id, pickup_datetime, dropoff_datetime, passenger_count,
		trip_distance, fare_amount, payment_type, trip_duration_minutes
		FROM trips ORDER BY pickup_datetime, id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var trips []models.CleanedTrip
	for rows.Next() {
		var (
			t               models.CleanedTrip
			pickup, dropoff string
		)
		if err := rows.Scan(&t.VendorID, &pickup, &dropoff, &t.PassengerCount,
			&t.TripDistance, &t.FareAmount, &t.PaymentType, &t.TripDurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		if t.PickupAt, err = dataset.ParseTimestamp(pickup); err != nil {
			return nil, err
		}
		if t.DropoffAt, err = dataset.ParseTimestamp(dropoff); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}
