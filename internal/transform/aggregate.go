package transform

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// Aggregator groups cleaned trips by (pickup date, vendor). Implementations
// must return identical values for the same input in any order, sorted by
// date then vendor.
type Aggregator interface {
	Name() string
	Aggregate(trips []models.CleanedTrip) ([]models.DailyVendorSummary, error)
}

// SelectAggregator resolves a configured mode. Auto picks the columnar path
// once the input reaches threshold rows.
func SelectAggregator(mode string, rows, threshold int) Aggregator {
	switch mode {
	case config.AggregatorTable:
		return NewTableAggregator()
	case config.AggregatorIter:
		return IterAggregator{}
	}
	if rows >= threshold {
		return NewTableAggregator()
	}
	return IterAggregator{}
}

// accumulator holds exact running sums for one group. Money and distance
// go through decimal and durations through integer nanoseconds, so the
// result does not depend on the order rows are added in.
type accumulator struct {
	count      int64
	passengers int64
	distance   decimal.Decimal
	fare       decimal.Decimal
	durationNs int64
}

func (a *accumulator) add(passengers int64, distance, fare float64, dur time.Duration) {
	a.count++
	a.passengers += passengers
	a.distance = a.distance.Add(decimal.NewFromFloat(distance))
	a.fare = a.fare.Add(decimal.NewFromFloat(fare))
	a.durationNs += int64(dur)
}

var nanosPerMinute = decimal.NewFromInt(int64(time.Minute))

func (a *accumulator) summary(key models.SummaryKey) models.DailyVendorSummary {
	n := decimal.NewFromInt(a.count)
	return models.DailyVendorSummary{
		Date:                   key.Date,
		VendorID:               key.VendorID,
		TripCount:              int(a.count),
		AvgPassengerCount:      decimal.NewFromInt(a.passengers).Div(n).InexactFloat64(),
		AvgTripDistance:        a.distance.Div(n).InexactFloat64(),
		TotalFareAmount:        a.fare.InexactFloat64(),
		AvgTripDurationMinutes: decimal.NewFromInt(a.durationNs).Div(n.Mul(nanosPerMinute)).InexactFloat64(),
	}
}

// compareKeys orders by date, then vendor. Numeric vendor codes sort
// before the others and compare as numbers ("2" before "10").
func compareKeys(a, b models.SummaryKey) int {
	if c := strings.Compare(a.Date, b.Date); c != 0 {
		return c
	}
	return compareVendor(a.VendorID, b.VendorID)
}

// compareVendor is a total order: numeric codes by value then text,
// then every non-numeric code by text
func compareVendor(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// SortSummaries orders rows by date then vendor
func SortSummaries(rows []models.DailyVendorSummary) {
	sort.Slice(rows, func(i, j int) bool {
		return compareKeys(rows[i].Key(), rows[j].Key()) < 0
	})
}

// IterAggregator is the row-at-a-time path: one map lookup per trip
type IterAggregator struct{}

// Name implements Aggregator
func (IterAggregator) Name() string { return config.AggregatorIter }

// Aggregate implements Aggregator
func (IterAggregator) Aggregate(trips []models.CleanedTrip) ([]models.DailyVendorSummary, error) {
	groups := make(map[models.SummaryKey]*accumulator)
	for _, t := range trips {
		key := models.SummaryKey{Date: t.PickupDate(), VendorID: t.VendorID}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.add(int64(t.PassengerCount), t.TripDistance, t.FareAmount, duration(t.TripRecord))
	}

	out := make([]models.DailyVendorSummary, 0, len(groups))
	for key, acc := range groups {
		out = append(out, acc.summary(key))
	}
	SortSummaries(out)
	return out, nil
}
