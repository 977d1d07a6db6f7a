package dataset

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jengzang/taxi-etl-go/internal/models"
)

var timestampLayouts = []string{
	models.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts ISO-8601 with or without zone, 'T' or space separated.
// Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTimestamp renders t in the layout written to every file
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(models.TimestampLayout)
}

// FormatFloat uses the shortest representation that parses back to v
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func recordCells(r models.TripRecord) []string {
	return []string{
		r.VendorID,
		FormatTimestamp(r.PickupAt),
		FormatTimestamp(r.DropoffAt),
		strconv.Itoa(r.PassengerCount),
		FormatFloat(r.TripDistance),
		FormatFloat(r.FareAmount),
		strconv.Itoa(r.PaymentType),
	}
}

// WriteRaw writes the raw dump of records
func WriteRaw(path string, records []models.TripRecord) error {
	return WriteCSV(path, RawColumns, func(emit func([]string) error) error {
		for _, r := range records {
			if err := emit(recordCells(r)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteRawRows writes already formatted raw rows, used for feed data whose
// nulls must survive as empty cells
func WriteRawRows(path string, rows [][]string) error {
	return WriteCSV(path, RawColumns, func(emit func([]string) error) error {
		for i, row := range rows {
			if len(row) != len(RawColumns) {
				return fmt.Errorf("raw row %d has %d cells, want %d", i, len(row), len(RawColumns))
			}
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteCleaned writes the validated trips with their duration
func WriteCleaned(path string, trips []models.CleanedTrip) error {
	return WriteCSV(path, CleanedColumns, func(emit func([]string) error) error {
		for _, t := range trips {
			cells := append(recordCells(t.TripRecord), FormatFloat(t.TripDurationMinutes))
			if err := emit(cells); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadCleaned parses a file produced by WriteCleaned. Any malformed cell is
// an error because the file is written by this program.
func ReadCleaned(path string) ([]models.CleanedTrip, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := t.Require(CleanedColumns...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	trips := make([]models.CleanedTrip, 0, len(t.Rows))
	for i, row := range t.Rows {
		var p cellParser
		trip := models.CleanedTrip{
			TripRecord: models.TripRecord{
				VendorID:       t.Value(row, ColVendorID),
				PickupAt:       p.timestamp(t.Value(row, ColPickup)),
				DropoffAt:      p.timestamp(t.Value(row, ColDropoff)),
				PassengerCount: p.int(t.Value(row, ColPassengerCount)),
				TripDistance:   p.float(t.Value(row, ColTripDistance)),
				FareAmount:     p.float(t.Value(row, ColFareAmount)),
				PaymentType:    p.int(t.Value(row, ColPaymentType)),
			},
			TripDurationMinutes: p.float(t.Value(row, ColTripDurationMinutes)),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, p.err)
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// WriteSummaries writes the aggregate file
func WriteSummaries(path string, rows []models.DailyVendorSummary) error {
	return WriteCSV(path, SummaryColumns, func(emit func([]string) error) error {
		for _, s := range rows {
			err := emit([]string{
				s.Date,
				s.VendorID,
				strconv.Itoa(s.TripCount),
				FormatFloat(s.AvgPassengerCount),
				FormatFloat(s.AvgTripDistance),
				FormatFloat(s.TotalFareAmount),
				FormatFloat(s.AvgTripDurationMinutes),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadSummaries parses a file produced by WriteSummaries. Values are not
// range checked here; consumers validate what they need.
func ReadSummaries(path string) ([]models.DailyVendorSummary, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := t.Require(SummaryColumns...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]models.DailyVendorSummary, 0, len(t.Rows))
	for i, row := range t.Rows {
		var p cellParser
		s := models.DailyVendorSummary{
			Date:                   t.Value(row, ColDate),
			VendorID:               t.Value(row, ColVendorID),
			TripCount:              p.int(t.Value(row, ColTripCount)),
			AvgPassengerCount:      p.float(t.Value(row, ColAvgPassengerCount)),
			AvgTripDistance:        p.float(t.Value(row, ColAvgTripDistance)),
			TotalFareAmount:        p.float(t.Value(row, ColTotalFareAmount)),
			AvgTripDurationMinutes: p.float(t.Value(row, ColAvgTripDurationMinutes)),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, p.err)
		}
		out = append(out, s)
	}
	return out, nil
}

// cellParser keeps the first parse error so a row can be decoded in one
// expression
type cellParser struct {
	err error
}

func (p *cellParser) int(s string) int {
	if p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("invalid integer %q", s)
	}
	return n
}

func (p *cellParser) float(s string) float64 {
	if p.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid number %q", s)
	}
	return f
}

func (p *cellParser) timestamp(s string) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		p.err = err
	}
	return t
}
