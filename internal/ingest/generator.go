package ingest

import (
	"math"
	"math/rand"
	"time"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/models"
)

// Generator produces synthetic trips shaped like the TLC yellow taxi feed
type Generator struct {
	cfg   config.SyntheticConfig
	start time.Time
	end   time.Time
	rng   *rand.Rand
}

// NewGenerator creates a generator for the month starting at periodStart.
// A zero seed draws one from the clock.
func NewGenerator(cfg config.SyntheticConfig, periodStart time.Time) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	start := periodStart.UTC()
	return &Generator{
		cfg:   cfg,
		start: start,
		end:   start.AddDate(0, 1, 0),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Generate returns n trips. Every trip satisfies the validation invariants:
// distance > 0, fare >= 0, dropoff >= pickup, passengers >= 0.
func (g *Generator) Generate(n int) []models.TripRecord {
	out := make([]models.TripRecord, 0, n)
	monthSeconds := int64(g.end.Sub(g.start) / time.Second)

	for i := 0; i < n; i++ {
		pickup := g.start.Add(time.Duration(g.rng.Int63n(monthSeconds)) * time.Second)
		durSecs := int64(g.uniform(g.cfg.DurationMins) * 60)
		distance := g.clamp(round2(g.uniform(g.cfg.Distance)), g.cfg.Distance)

		// Metered fare: flag drop plus a per-mile rate between $2 and $3.
		rate := 2.0 + g.rng.Float64()
		fare := g.clamp(round2(g.cfg.Fare.Min+distance*rate), g.cfg.Fare)

		out = append(out, models.TripRecord{
			VendorID:       g.cfg.Vendors[g.rng.Intn(len(g.cfg.Vendors))],
			PickupAt:       pickup,
			DropoffAt:      pickup.Add(time.Duration(durSecs) * time.Second),
			PassengerCount: g.intBetween(g.cfg.Passengers),
			TripDistance:   distance,
			FareAmount:     fare,
			PaymentType:    g.cfg.PaymentTypes[g.rng.Intn(len(g.cfg.PaymentTypes))],
		})
	}
	return out
}

func (g *Generator) uniform(r config.Range) float64 {
	return r.Min + g.rng.Float64()*(r.Max-r.Min)
}

func (g *Generator) intBetween(r config.Range) int {
	lo, hi := int(math.Ceil(r.Min)), int(math.Floor(r.Max))
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) clamp(v float64, r config.Range) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
