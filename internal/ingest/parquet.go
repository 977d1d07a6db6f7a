package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/jengzang/taxi-etl-go/internal/dataset"
)

// feedColumns maps each raw column to the names it carries in the
// published Parquet files (yellow, green, and already normalised dumps).
var feedColumns = map[string][]string{
	dataset.ColVendorID:       {"VendorID", "vendor_id", "vendorid"},
	dataset.ColPickup:         {"tpep_pickup_datetime", "lpep_pickup_datetime", "pickup_datetime"},
	dataset.ColDropoff:        {"tpep_dropoff_datetime", "lpep_dropoff_datetime", "dropoff_datetime"},
	dataset.ColPassengerCount: {"passenger_count"},
	dataset.ColTripDistance:   {"trip_distance"},
	dataset.ColFareAmount:     {"fare_amount"},
	dataset.ColPaymentType:    {"payment_type"},
}

// Decoder turns a downloaded archive into raw rows in dataset.RawColumns order
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([][]string, error)
}

// ParquetDecoder reads TLC Parquet files through Arrow
type ParquetDecoder struct {
	mem memory.Allocator
}

// NewParquetDecoder creates a decoder backed by the Go allocator
func NewParquetDecoder() *ParquetDecoder {
	return &ParquetDecoder{mem: memory.NewGoAllocator()}
}

// Decode reads the whole file into an Arrow table and renders the feed
// columns as CSV cells. Null values become empty cells.
func (d *ParquetDecoder) Decode(ctx context.Context, data []byte) ([][]string, error) {
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data),
		parquet.NewReaderProperties(d.mem), pqarrow.ArrowReadProperties{}, d.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	defer tbl.Release()

	n := int(tbl.NumRows())
	columns := make([][]string, len(dataset.RawColumns))
	for i, name := range dataset.RawColumns {
		idx := findField(tbl.Schema(), feedColumns[name])
		if idx < 0 {
			return nil, fmt.Errorf("parquet file has no %s column", name)
		}
		cells, err := chunkedCells(tbl.Column(idx).Data())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		if len(cells) != n {
			return nil, fmt.Errorf("column %s has %d values, want %d", name, len(cells), n)
		}
		columns[i] = cells
	}

	rows := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(columns))
		for c := range columns {
			row[c] = columns[c][r]
		}
		rows[r] = row
	}
	return rows, nil
}

func findField(schema *arrow.Schema, names []string) int {
	for _, name := range names {
		if idx := schema.FieldIndices(name); len(idx) > 0 {
			return idx[0]
		}
	}
	return -1
}

func chunkedCells(col *arrow.Chunked) ([]string, error) {
	cells := make([]string, 0, col.Len())
	for _, chunk := range col.Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				cells = append(cells, "")
				continue
			}
			cell, err := cellString(chunk, i)
			if err != nil {
				return nil, err
			}
			cells = append(cells, cell)
		}
	}
	return cells, nil
}

func cellString(arr arrow.Array, i int) (string, error) {
	switch a := arr.(type) {
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10), nil
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(i)), 10), nil
	case *array.Int16:
		return strconv.FormatInt(int64(a.Value(i)), 10), nil
	case *array.Int8:
		return strconv.FormatInt(int64(a.Value(i)), 10), nil
	case *array.Float64:
		return dataset.FormatFloat(a.Value(i)), nil
	case *array.Float32:
		return dataset.FormatFloat(float64(a.Value(i))), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return dataset.FormatTimestamp(a.Value(i).ToTime(unit)), nil
	default:
		return "", fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}
