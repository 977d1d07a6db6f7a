package transform

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/dataset"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// fixtureRows holds five valid trips followed by one row per drop reason
var fixtureRows = [][]string{
	{"A", "2025-01-01T08:00:00", "2025-01-01T08:10:00", "1", "2", "10", "1"},
	{"A", "2025-01-01T09:00:00", "2025-01-01T09:20:00", "3", "4", "20", "1"},
	{"B", "2025-01-01T10:00:00", "2025-01-01T10:30:00", "2", "5.5", "22.5", "2"},
	{"A", "2025-01-02T07:00:00", "2025-01-02T07:15:00", "1", "1.2", "8", "1"},
	{"B", "2025-01-02T23:50:00", "2025-01-03T00:10:00", "4", "3", "15.75", "1"},

	{"A", "2025-01-01T11:00:00", "2025-01-01T11:05:00", "1", "0", "7", "1"},
	{"B", "2025-01-01T12:00:00", "2025-01-01T11:50:00", "1", "2", "9", "1"},
	{"A", "2025-01-01T13:00:00", "2025-01-01T13:10:00", "1", "2", "-3", "1"},
	{"B", "2025-01-01T14:00:00", "2025-01-01T14:10:00", "-1", "2", "9", "1"},
	{"A", "2025-01-01T15:00:00", "2025-01-01T15:10:00", "1", "abc", "9", "1"},
}

func fixtureTable() *dataset.Table {
	return dataset.NewTable(dataset.RawColumns, fixtureRows)
}

func TestCleanFixture(t *testing.T) {
	trips, stats, err := Clean(fixtureTable(), config.PolicyDrop)
	require.NoError(t, err)

	assert.Len(t, trips, 5)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 5, stats.Valid)
	assert.Equal(t, 5, stats.DroppedTotal())
	assert.Equal(t, map[string]int{
		DropNonPositiveDist:    1,
		DropDropoffBeforePick:  1,
		DropNegativeFare:       1,
		DropNegativePassengers: 1,
		DropMalformed:          1,
	}, stats.Dropped)

	for _, trip := range trips {
		assert.Greater(t, trip.TripDistance, 0.0)
		assert.False(t, trip.DropoffAt.Before(trip.PickupAt))
		assert.GreaterOrEqual(t, trip.FareAmount, 0.0)
		assert.GreaterOrEqual(t, trip.PassengerCount, 0)
		assert.Equal(t, trip.DropoffAt.Sub(trip.PickupAt).Minutes(), trip.TripDurationMinutes)
	}
}

func TestCleanZeroPolicy(t *testing.T) {
	_, stats, err := Clean(fixtureTable(), config.PolicyZero)
	require.NoError(t, err)

	// "abc" reads as 0 and is then rejected as a non-positive distance
	assert.Equal(t, 5, stats.Valid)
	assert.Equal(t, 2, stats.Dropped[DropNonPositiveDist])
	assert.Zero(t, stats.Dropped[DropMalformed])
}

func TestCleanAlwaysDropsBadTimestamps(t *testing.T) {
	tbl := dataset.NewTable(dataset.RawColumns, [][]string{
		{"1", "yesterday", "2025-01-01T08:10:00", "1", "2", "10", "1"},
		{"", "2025-01-01T08:00:00", "2025-01-01T08:10:00", "1", "2", "10", "1"},
		{"1", "2025-01-01T08:00:00", "2025-01-01T08:10:00", "2.0", "2", "10", "1"},
	})
	for _, policy := range []string{config.PolicyDrop, config.PolicyZero} {
		trips, stats, err := Clean(tbl, policy)
		require.NoError(t, err)
		assert.Len(t, trips, 1, policy)
		assert.Equal(t, 2, stats.Dropped[DropMalformed], policy)
		assert.Equal(t, 2, trips[0].PassengerCount)
	}
}

func TestCleanMissingColumn(t *testing.T) {
	header := []string{
		dataset.ColVendorID, dataset.ColPickup, dataset.ColDropoff,
		dataset.ColPassengerCount, dataset.ColTripDistance, dataset.ColPaymentType,
	}
	_, _, err := Clean(dataset.NewTable(header, nil), config.PolicyDrop)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	assert.Contains(t, err.Error(), dataset.ColFareAmount)
}

func TestAggregateFixture(t *testing.T) {
	trips, _, err := Clean(fixtureTable(), config.PolicyDrop)
	require.NoError(t, err)

	want := []models.DailyVendorSummary{
		{Date: "2025-01-01", VendorID: "A", TripCount: 2, AvgPassengerCount: 2, AvgTripDistance: 3, TotalFareAmount: 30, AvgTripDurationMinutes: 15},
		{Date: "2025-01-01", VendorID: "B", TripCount: 1, AvgPassengerCount: 2, AvgTripDistance: 5.5, TotalFareAmount: 22.5, AvgTripDurationMinutes: 30},
		{Date: "2025-01-02", VendorID: "A", TripCount: 1, AvgPassengerCount: 1, AvgTripDistance: 1.2, TotalFareAmount: 8, AvgTripDurationMinutes: 15},
		{Date: "2025-01-02", VendorID: "B", TripCount: 1, AvgPassengerCount: 4, AvgTripDistance: 3, TotalFareAmount: 15.75, AvgTripDurationMinutes: 20},
	}

	for _, agg := range []Aggregator{NewTableAggregator(), IterAggregator{}} {
		t.Run(agg.Name(), func(t *testing.T) {
			got, err := agg.Aggregate(trips)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	for _, agg := range []Aggregator{NewTableAggregator(), IterAggregator{}} {
		got, err := agg.Aggregate(nil)
		require.NoError(t, err)
		assert.Empty(t, got, agg.Name())
	}
}

func randomTrips(rng *rand.Rand, n int, vendors []string) []models.CleanedTrip {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	trips := make([]models.CleanedTrip, n)
	for i := range trips {
		pickup := start.Add(time.Duration(rng.Intn(5*24*3600)) * time.Second)
		trips[i] = models.NewCleanedTrip(models.TripRecord{
			VendorID:       vendors[rng.Intn(len(vendors))],
			PickupAt:       pickup,
			DropoffAt:      pickup.Add(time.Duration(60+rng.Intn(3600)) * time.Second),
			PassengerCount: rng.Intn(7),
			TripDistance:   float64(1+rng.Intn(3000)) / 100,
			FareAmount:     float64(rng.Intn(15000)) / 100,
			PaymentType:    1 + rng.Intn(5),
		})
	}
	return trips
}

func TestAggregatorsAgree(t *testing.T) {
	tests := map[string][]string{
		"numeric vendors": {"1", "2", "10", "6"},
		"mixed vendors":   {"9", "10", "1a", "B", "09"},
	}
	for name, vendors := range tests {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			trips := randomTrips(rng, 1500, vendors)

			table, err := NewTableAggregator().Aggregate(trips)
			require.NoError(t, err)
			iter, err := IterAggregator{}.Aggregate(trips)
			require.NoError(t, err)

			// 5 days x every vendor, each key repeated many times
			require.Len(t, table, 5*len(vendors))
			assert.Equal(t, iter, table)

			total := 0
			for i, row := range table {
				total += row.TripCount
				if i > 0 {
					assert.Negative(t, compareKeys(table[i-1].Key(), row.Key()))
				}
			}
			assert.Equal(t, len(trips), total)

			shuffled := append([]models.CleanedTrip(nil), trips...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			for _, agg := range []Aggregator{NewTableAggregator(), IterAggregator{}} {
				got, err := agg.Aggregate(shuffled)
				require.NoError(t, err)
				assert.Equal(t, table, got, agg.Name())
			}
		})
	}
}

func TestVendorOrderIsNumericAware(t *testing.T) {
	assert.Negative(t, compareVendor("2", "10"))
	assert.Positive(t, compareVendor("10", "2"))
	assert.Negative(t, compareVendor("A", "B"))
	assert.Negative(t, compareVendor("10", "A"))
	assert.Negative(t, compareVendor("10", "1a"), "numeric codes first")
	assert.Positive(t, compareVendor("1a", "9"))
	assert.Negative(t, compareVendor("09", "9"), "equal values fall back to text")
	assert.Zero(t, compareVendor("7", "7"))

	codes := []string{"1a", "10", "B", "9", "09", "2", "A"}
	sort.Slice(codes, func(i, j int) bool { return compareVendor(codes[i], codes[j]) < 0 })
	assert.Equal(t, []string{"2", "09", "9", "10", "1a", "A", "B"}, codes)

	// transitive over every triple
	for _, a := range codes {
		for _, b := range codes {
			for _, c := range codes {
				if compareVendor(a, b) < 0 && compareVendor(b, c) < 0 {
					assert.Negative(t, compareVendor(a, c), "%s < %s < %s", a, b, c)
				}
			}
		}
	}
}

func TestSelectAggregator(t *testing.T) {
	tests := []struct {
		mode string
		rows int
		want string
	}{
		{config.AggregatorTable, 1, config.AggregatorTable},
		{config.AggregatorIter, 1 << 20, config.AggregatorIter},
		{config.AggregatorAuto, 1023, config.AggregatorIter},
		{config.AggregatorAuto, 1024, config.AggregatorTable},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+strconv.Itoa(tt.rows), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectAggregator(tt.mode, tt.rows, 1024).Name())
		})
	}
}

func TestTransformerRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RawPath = filepath.Join(dir, "raw.csv")
	cfg.CleanedPath = filepath.Join(dir, "processed", "cleaned_trips.csv")
	cfg.SummaryPath = filepath.Join(dir, "processed", "trip_summary.csv")
	require.NoError(t, dataset.WriteRawRows(cfg.RawPath, fixtureRows))

	logger, _ := test.NewNullLogger()
	res, err := NewTransformer(cfg, logger).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, config.AggregatorIter, res.Aggregator)
	assert.Equal(t, 5, res.Stats.Valid)
	assert.Len(t, res.Summaries, 4)

	cleaned, err := dataset.ReadCleaned(cfg.CleanedPath)
	require.NoError(t, err)
	assert.Equal(t, res.Trips, cleaned)

	summaries, err := dataset.ReadSummaries(cfg.SummaryPath)
	require.NoError(t, err)
	assert.Equal(t, res.Summaries, summaries)
}

func TestTransformerRunMissingColumn(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RawPath = filepath.Join(dir, "raw.csv")
	cfg.CleanedPath = filepath.Join(dir, "cleaned.csv")
	cfg.SummaryPath = filepath.Join(dir, "summary.csv")

	header := []string{dataset.ColVendorID, dataset.ColPickup}
	require.NoError(t, dataset.WriteCSV(cfg.RawPath, header, func(emit func([]string) error) error {
		return emit([]string{"1", "2025-01-01T00:00:00"})
	}))

	logger, _ := test.NewNullLogger()
	_, err := NewTransformer(cfg, logger).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
	assert.NoFileExists(t, cfg.SummaryPath)
}
