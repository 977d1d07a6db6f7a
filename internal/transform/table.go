package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// tripSchema is the columnar layout the table path aggregates over
var tripSchema = arrow.NewSchema([]arrow.Field{
	{Name: "date", Type: arrow.BinaryTypes.String},
	{Name: "vendor_id", Type: arrow.BinaryTypes.String},
	{Name: "passenger_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "trip_distance", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fare_amount", Type: arrow.PrimitiveTypes.Float64},
	{Name: "duration_ns", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// TableAggregator loads the trips into an Arrow record batch, computes a
// sort permutation over the key columns and reduces each run of equal keys
// column by column.
type TableAggregator struct {
	mem memory.Allocator
}

// NewTableAggregator creates a table aggregator on the Go allocator
func NewTableAggregator() *TableAggregator {
	return &TableAggregator{mem: memory.NewGoAllocator()}
}

// Name implements Aggregator
func (a *TableAggregator) Name() string { return config.AggregatorTable }

// Aggregate implements Aggregator
func (a *TableAggregator) Aggregate(trips []models.CleanedTrip) ([]models.DailyVendorSummary, error) {
	if len(trips) == 0 {
		return []models.DailyVendorSummary{}, nil
	}

	rec := a.buildRecord(trips)
	defer rec.Release()

	dates, ok1 := rec.Column(0).(*array.String)
	vendors, ok2 := rec.Column(1).(*array.String)
	passengers, ok3 := rec.Column(2).(*array.Int64)
	distances, ok4 := rec.Column(3).(*array.Float64)
	fares, ok5 := rec.Column(4).(*array.Float64)
	durations, ok6 := rec.Column(5).(*array.Int64)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, fmt.Errorf("unexpected column types in %s", rec.Schema())
	}

	n := int(rec.NumRows())
	keyAt := func(i int) models.SummaryKey {
		return models.SummaryKey{Date: dates.Value(i), VendorID: vendors.Value(i)}
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return compareKeys(keyAt(perm[i]), keyAt(perm[j])) < 0
	})

	var out []models.DailyVendorSummary
	for start := 0; start < n; {
		key := keyAt(perm[start])
		var acc accumulator
		end := start
		for ; end < n; end++ {
			row := perm[end]
			if compareKeys(keyAt(row), key) != 0 {
				break
			}
			acc.add(passengers.Value(row), distances.Value(row), fares.Value(row), time.Duration(durations.Value(row)))
		}
		out = append(out, acc.summary(key))
		start = end
	}
	return out, nil
}

func (a *TableAggregator) buildRecord(trips []models.CleanedTrip) arrow.Record {
	b := array.NewRecordBuilder(a.mem, tripSchema)
	defer b.Release()

	dates := b.Field(0).(*array.StringBuilder)
	vendors := b.Field(1).(*array.StringBuilder)
	passengers := b.Field(2).(*array.Int64Builder)
	distances := b.Field(3).(*array.Float64Builder)
	fares := b.Field(4).(*array.Float64Builder)
	durations := b.Field(5).(*array.Int64Builder)

	for _, t := range trips {
		dates.Append(t.PickupDate())
		vendors.Append(t.VendorID)
		passengers.Append(int64(t.PassengerCount))
		distances.Append(t.TripDistance)
		fares.Append(t.FareAmount)
		durations.Append(int64(duration(t.TripRecord)))
	}
	return b.NewRecord()
}
