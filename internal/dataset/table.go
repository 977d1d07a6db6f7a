// Package dataset reads and writes the pipeline's CSV files: the raw trip
// dump, the cleaned trips and the daily vendor summary.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jengzang/taxi-etl-go/internal/models"
)

// Column names of the files
const (
	ColVendorID            = "vendor_id"
	ColPickup              = "pickup_datetime"
	ColDropoff             = "dropoff_datetime"
	ColPassengerCount      = "passenger_count"
	ColTripDistance        = "trip_distance"
	ColFareAmount          = "fare_amount"
	ColPaymentType         = "payment_type"
	ColTripDurationMinutes = "trip_duration_minutes"

	ColDate                   = "date"
	ColTripCount              = "trip_count"
	ColAvgPassengerCount      = "avg_passenger_count"
	ColAvgTripDistance        = "avg_trip_distance"
	ColTotalFareAmount        = "total_fare_amount"
	ColAvgTripDurationMinutes = "avg_trip_duration_minutes"
)

var (
	// RawColumns is the column order of the raw file, real or synthetic
	RawColumns = []string{
		ColVendorID, ColPickup, ColDropoff, ColPassengerCount,
		ColTripDistance, ColFareAmount, ColPaymentType,
	}

	// CleanedColumns is RawColumns plus the derived duration
	CleanedColumns = append(append([]string{}, RawColumns...), ColTripDurationMinutes)

	// SummaryColumns is the column order of the aggregate file
	SummaryColumns = []string{
		ColDate, ColVendorID, ColTripCount, ColAvgPassengerCount,
		ColAvgTripDistance, ColTotalFareAmount, ColAvgTripDurationMinutes,
	}
)

// Table is a CSV file held in memory with its header indexed by name
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewTable builds a table and indexes its header
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		t.index[strings.TrimSpace(h)] = i
	}
	return t
}

// Require fails with ErrConfiguration when any column is absent
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if _, ok := t.index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required columns %s", models.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Value returns the trimmed cell of row for col, or "" if the row is short
func (t *Table) Value(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Read parses CSV from r. A UTF-8 or UTF-16 byte order mark is honoured and
// stripped so the first header name matches.
func Read(r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file, no header row", models.ErrConfiguration)
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, rec)
	}
	return NewTable(header, rows), nil
}

// ReadFile opens path and parses it with Read
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes header and rows to path atomically
func WriteCSV(path string, header []string, rows func(emit func([]string) error) error) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := rows(cw.Write); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}
