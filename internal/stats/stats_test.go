package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	s := Describe([]float64{5, 1, 3, math.NaN(), 2, 4})

	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.InDelta(t, 3.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.5, s.Median, 1e-9)
	assert.InDelta(t, 4.75, s.P95, 1e-9)
	assert.InDelta(t, math.Sqrt(2.5), s.StdDev, 1e-9)
}

func TestDescribeQuantiles(t *testing.T) {
	tests := map[string]struct {
		values      []float64
		median, p95 float64
	}{
		"even count":   {[]float64{40, 10, 30, 20}, 20, 38},
		"single value": {[]float64{7}, 7, 7},
		"constant":     {[]float64{2, 2, 2}, 2, 2},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			in := append([]float64(nil), tt.values...)
			s := Describe(in)
			assert.InDelta(t, tt.median, s.Median, 1e-9)
			assert.InDelta(t, tt.p95, s.P95, 1e-9)
			assert.Equal(t, tt.values, in, "input is not reordered")
		})
	}
}

func TestDescribeSingleValueHasNoSpread(t *testing.T) {
	s := Describe([]float64{3})
	assert.Equal(t, 3.0, s.Mean)
	assert.Zero(t, s.StdDev)
}

func TestDescribeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Describe(nil))
	assert.Equal(t, Summary{}, Describe([]float64{math.NaN()}))
}
