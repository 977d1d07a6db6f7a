package models

import "time"

// TripRecord is one raw taxi trip as delivered by the feed or the generator
type TripRecord struct {
	VendorID       string    `json:"vendor_id" db:"vendor_id"`             // Dispatch system code
	PickupAt       time.Time `json:"pickup_datetime" db:"pickup_datetime"` // UTC
	DropoffAt      time.Time `json:"dropoff_datetime" db:"dropoff_datetime"`
	PassengerCount int       `json:"passenger_count" db:"passenger_count"`
	TripDistance   float64   `json:"trip_distance" db:"trip_distance"` // Miles
	FareAmount     float64   `json:"fare_amount" db:"fare_amount"`     // USD
	PaymentType    int       `json:"payment_type" db:"payment_type"`
}

// Duration returns dropoff minus pickup
func (t TripRecord) Duration() time.Duration {
	return t.DropoffAt.Sub(t.PickupAt)
}

// PickupDate returns the calendar day of the pickup (YYYY-MM-DD)
func (t TripRecord) PickupDate() string {
	return t.PickupAt.UTC().Format(DateLayout)
}

// CleanedTrip is a validated trip with its derived duration
type CleanedTrip struct {
	TripRecord
	TripDurationMinutes float64 `json:"trip_duration_minutes" db:"trip_duration_minutes"`
}

// NewCleanedTrip derives the duration for a record that already passed validation
func NewCleanedTrip(r TripRecord) CleanedTrip {
	return CleanedTrip{
		TripRecord:          r,
		TripDurationMinutes: r.Duration().Minutes(),
	}
}

// DateLayout is the day format shared by files and tables
const DateLayout = "2006-01-02"

// TimestampLayout is the ISO-8601 layout written to the CSV files
const TimestampLayout = "2006-01-02T15:04:05.999999999"
