// Package batch provides the record-batch operations the pipeline performs
// before persistence: sorting by primary key (I4), deriving a year column
// from a YYYYMMDD date column for partitioning (I3), and splitting a batch
// by partition value so the Parquet Writer can write one file per
// partition present in a batch.
package batch

import (
	"fmt"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ColumnIndex returns the index of col in schema, or -1 if absent.
func ColumnIndex(schema *arrow.Schema, col string) int {
	for i, f := range schema.Fields() {
		if f.Name == col {
			return i
		}
	}
	return -1
}

// RequireColumns returns an error if any of cols is missing from rec's
// schema — the SchemaMismatch failure mode of the Parquet Writer (§4.C).
func RequireColumns(rec arrow.Record, cols []string) error {
	schema := rec.Schema()
	for _, c := range cols {
		if ColumnIndex(schema, c) < 0 {
			return fmt.Errorf("batch: column %q required by schema is missing from record", c)
		}
	}
	return nil
}

// SortByKey returns a new record with rows ordered ascending by the given
// primary-key columns (I4). The input record is not modified; the caller
// owns releasing both records.
func SortByKey(mem memory.Allocator, rec arrow.Record, keyCols []string) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	idxs := make([]int, len(keyCols))
	for i, c := range keyCols {
		idx := ColumnIndex(rec.Schema(), c)
		if idx < 0 {
			return nil, fmt.Errorf("batch: sort key column %q not in record", c)
		}
		idxs[i] = idx
	}

	n := int(rec.NumRows())
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lessRow(rec, idxs, order[a], order[b])
	})

	return reorder(mem, rec, order)
}

// lessRow reports whether row i sorts before row j across the given
// columns, nulls first.
func lessRow(rec arrow.Record, cols []int, i, j int) bool {
	for _, c := range cols {
		col := rec.Column(c)
		ni, nj := col.IsNull(i), col.IsNull(j)
		if ni != nj {
			return ni
		}
		if ni {
			continue
		}
		cmp := compareAt(col, i, j)
		if cmp != 0 {
			return cmp < 0
		}
	}
	return false
}

func compareAt(col arrow.Array, i, j int) int {
	switch a := col.(type) {
	case *array.String:
		return stringCompare(a.Value(i), a.Value(j))
	case *array.Int64:
		return int64Compare(a.Value(i), a.Value(j))
	case *array.Int32:
		return int64Compare(int64(a.Value(i)), int64(a.Value(j)))
	case *array.Uint64:
		return int64Compare(int64(a.Value(i)), int64(a.Value(j)))
	case *array.Float64:
		return float64Compare(a.Value(i), a.Value(j))
	case *array.Boolean:
		bi, bj := a.Value(i), a.Value(j)
		if bi == bj {
			return 0
		}
		if !bi {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// reorder builds a new record whose rows are rec's rows in the given order.
func reorder(mem memory.Allocator, rec arrow.Record, order []int) (arrow.Record, error) {
	schema := rec.Schema()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, rowIdx := range order {
		for colIdx := range schema.Fields() {
			if err := AppendValue(b.Field(colIdx), rec.Column(colIdx), rowIdx); err != nil {
				return nil, err
			}
		}
	}
	return b.NewRecord(), nil
}

// AppendValue appends the value at src[row] (or null) to dst, dispatching
// on the concrete arrow array/builder type. Null values are preserved as
// typed nulls, never coerced to strings (§4.C).
func AppendValue(dst array.Builder, src arrow.Array, row int) error {
	if src.IsNull(row) {
		dst.AppendNull()
		return nil
	}
	switch s := src.(type) {
	case *array.String:
		dst.(*array.StringBuilder).Append(s.Value(row))
	case *array.Binary:
		dst.(*array.BinaryBuilder).Append(s.Value(row))
	case *array.Int64:
		dst.(*array.Int64Builder).Append(s.Value(row))
	case *array.Int32:
		dst.(*array.Int32Builder).Append(s.Value(row))
	case *array.Uint64:
		dst.(*array.Uint64Builder).Append(s.Value(row))
	case *array.Uint32:
		dst.(*array.Uint32Builder).Append(s.Value(row))
	case *array.Float64:
		dst.(*array.Float64Builder).Append(s.Value(row))
	case *array.Float32:
		dst.(*array.Float32Builder).Append(s.Value(row))
	case *array.Boolean:
		dst.(*array.BooleanBuilder).Append(s.Value(row))
	default:
		return fmt.Errorf("batch: unsupported column type %T", src)
	}
	return nil
}

// YearOf extracts the partition year from a YYYYMMDD string, the value
// convention for DateCol (§3).
func YearOf(dateVal string) (int, error) {
	if len(dateVal) != 8 {
		return 0, fmt.Errorf("batch: date value %q is not YYYYMMDD", dateVal)
	}
	year := 0
	for _, c := range dateVal[:4] {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("batch: date value %q is not numeric", dateVal)
		}
		year = year*10 + int(c-'0')
	}
	return year, nil
}

// SplitByYear partitions rec's rows by the year derived from dateCol,
// returning one record per distinct year. Used to satisfy I3: every row
// under year=YYYY/ has DateCol starting with YYYY.
func SplitByYear(mem memory.Allocator, rec arrow.Record, dateCol string) (map[int]arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	idx := ColumnIndex(rec.Schema(), dateCol)
	if idx < 0 {
		return nil, fmt.Errorf("batch: date column %q not in record", dateCol)
	}
	dateArr, ok := rec.Column(idx).(*array.String)
	if !ok {
		return nil, fmt.Errorf("batch: date column %q must be a string column", dateCol)
	}

	order := make(map[int][]int)
	for row := 0; row < int(rec.NumRows()); row++ {
		if dateArr.IsNull(row) {
			return nil, fmt.Errorf("batch: date column %q has null at row %d", dateCol, row)
		}
		year, err := YearOf(dateArr.Value(row))
		if err != nil {
			return nil, err
		}
		order[year] = append(order[year], row)
	}

	out := make(map[int]arrow.Record, len(order))
	for year, rows := range order {
		rec, err := reorder(mem, rec, rows)
		if err != nil {
			return nil, err
		}
		out[year] = rec
	}
	return out, nil
}

// Concat appends the rows of every record in recs, in order, into a
// single record sharing their (common) schema. Used to flatten a
// Parquet file's row-group batches into one record before sorting or
// merging.
func Concat(mem memory.Allocator, schema *arrow.Schema, recs []arrow.Record) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, rec := range recs {
		for row := 0; row < int(rec.NumRows()); row++ {
			for colIdx := range schema.Fields() {
				if err := AppendValue(b.Field(colIdx), rec.Column(colIdx), row); err != nil {
					return nil, err
				}
			}
		}
	}
	return b.NewRecord(), nil
}

// MaxString returns the lexically (and, for YYYYMMDD strings, chronologically)
// greatest value in col, ignoring nulls, or ("", false) if col has no
// non-null values.
func MaxString(rec arrow.Record, colIdx int) (string, bool) {
	col, ok := rec.Column(colIdx).(*array.String)
	if !ok {
		return "", false
	}
	found := false
	var max string
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}
		v := col.Value(i)
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max, found
}
