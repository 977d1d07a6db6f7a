package transform

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// Drop reasons counted in Stats.Dropped
const (
	DropMalformed          = "malformed"
	DropNonPositiveDist    = "non_positive_distance"
	DropDropoffBeforePick  = "dropoff_before_pickup"
	DropNegativeFare       = "negative_fare"
	DropNegativePassengers = "negative_passenger_count"
)

// Stats summarises one cleaning pass
type Stats struct {
	Total   int
	Valid   int
	Dropped map[string]int
}

// DroppedTotal returns the number of rows excluded for any reason
func (s Stats) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// Validate reports the first invariant a record violates, or "" if it is
// valid. The checks mirror the invariants of TripRecord.
func Validate(r models.TripRecord) string {
	switch {
	case r.TripDistance <= 0:
		return DropNonPositiveDist
	case r.DropoffAt.Before(r.PickupAt):
		return DropDropoffBeforePick
	case r.FareAmount < 0:
		return DropNegativeFare
	case r.PassengerCount < 0:
		return DropNegativePassengers
	}
	return ""
}

// Clean parses, validates and enriches the raw rows. A missing column is a
// configuration error; everything else is a per-row drop.
//
// policy decides what a malformed numeric cell does: PolicyDrop drops the
// row, PolicyZero reads it as 0. Empty vendors and unparsable timestamps
// drop the row under either policy since no default is meaningful.
func Clean(tbl *dataset.Table, policy string) ([]models.CleanedTrip, Stats, error) {
	stats := Stats{Dropped: make(map[string]int)}
	if err := tbl.Require(dataset.RawColumns...); err != nil {
		return nil, stats, err
	}

	trips := make([]models.CleanedTrip, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		stats.Total++

		rec, ok := parseRow(tbl, row, policy)
		if !ok {
			stats.Dropped[DropMalformed]++
			continue
		}
		if reason := Validate(rec); reason != "" {
			stats.Dropped[reason]++
			continue
		}
		trips = append(trips, models.NewCleanedTrip(rec))
	}
	stats.Valid = len(trips)
	return trips, stats, nil
}

func parseRow(tbl *dataset.Table, row []string, policy string) (models.TripRecord, bool) {
	vendor := tbl.Value(row, dataset.ColVendorID)
	if vendor == "" {
		return models.TripRecord{}, false
	}
	pickup, err := dataset.ParseTimestamp(tbl.Value(row, dataset.ColPickup))
	if err != nil {
		return models.TripRecord{}, false
	}
	dropoff, err := dataset.ParseTimestamp(tbl.Value(row, dataset.ColDropoff))
	if err != nil {
		return models.TripRecord{}, false
	}

	c := coercer{policy: policy, ok: true}
	rec := models.TripRecord{
		VendorID:       vendor,
		PickupAt:       pickup,
		DropoffAt:      dropoff,
		PassengerCount: c.int(tbl.Value(row, dataset.ColPassengerCount)),
		TripDistance:   c.float(tbl.Value(row, dataset.ColTripDistance)),
		FareAmount:     c.float(tbl.Value(row, dataset.ColFareAmount)),
		PaymentType:    c.int(tbl.Value(row, dataset.ColPaymentType)),
	}
	return rec, c.ok
}

type coercer struct {
	policy string
	ok     bool
}

func (c *coercer) float(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		if c.policy != config.PolicyZero {
			c.ok = false
		}
		return 0
	}
	return f
}

// int accepts integral floats ("2.0") since the feed stores counts as doubles
func (c *coercer) int(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f := c.float(s)
	if f != float64(int(f)) {
		if c.policy != config.PolicyZero {
			c.ok = false
		}
		return 0
	}
	return int(f)
}

// duration returns the derived trip duration of a record
func duration(r models.TripRecord) time.Duration {
	return r.DropoffAt.Sub(r.PickupAt)
}

func (s Stats) String() string {
	return fmt.Sprintf("total=%d valid=%d dropped=%d", s.Total, s.Valid, s.DroppedTotal())
}
