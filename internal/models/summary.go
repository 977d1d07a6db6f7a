package models

// DailyVendorSummary aggregates the valid trips of one vendor on one day
type DailyVendorSummary struct {
	Date     string `json:"date" db:"date"` // YYYY-MM-DD
	VendorID string `json:"vendor_id" db:"vendor_id"`

	TripCount              int     `json:"trip_count" db:"trip_count"`
	AvgPassengerCount      float64 `json:"avg_passenger_count" db:"avg_passenger_count"`
	AvgTripDistance        float64 `json:"avg_trip_distance" db:"avg_trip_distance"`
	TotalFareAmount        float64 `json:"total_fare_amount" db:"total_fare_amount"`
	AvgTripDurationMinutes float64 `json:"avg_trip_duration_minutes" db:"avg_trip_duration_minutes"`
}

// Key returns the grouping key
func (s DailyVendorSummary) Key() SummaryKey {
	return SummaryKey{Date: s.Date, VendorID: s.VendorID}
}

// SummaryKey identifies a summary row; it is the primary key of trip_summary
type SummaryKey struct {
	Date     string
	VendorID string
}

// DailyVolume is the number of trips across all vendors on one day
type DailyVolume struct {
	Date      string `json:"date"`
	TripCount int    `json:"trip_count"`
}
