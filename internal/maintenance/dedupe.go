package maintenance

import (
	"fmt"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/marketlake/marketlake/internal/batch"
	"github.com/marketlake/marketlake/internal/schema"
)

// groupingColumns returns the column indices a dedupe group is keyed on:
// for a revisioned table, (primary_key - date_col) plus ReportingPeriodCol
// if set; for any other table, the full primary key.
func groupingColumns(entry schema.Entry, rec arrow.Record) ([]int, error) {
	var names []string
	if entry.RevisionCol == "" {
		names = entry.PrimaryKey
	} else {
		for _, c := range entry.PrimaryKey {
			if c != entry.DateCol {
				names = append(names, c)
			}
		}
		if entry.ReportingPeriodCol != "" {
			names = append(names, entry.ReportingPeriodCol)
		}
	}

	idxs := make([]int, 0, len(names))
	for _, name := range names {
		idx := batch.ColumnIndex(rec.Schema(), name)
		if idx < 0 {
			return nil, fmt.Errorf("maintenance: grouping column %q missing from merged record", name)
		}
		idxs = append(idxs, idx)
	}
	return idxs, nil
}

func revisionColumnIndex(entry schema.Entry, rec arrow.Record) int {
	if entry.RevisionCol == "" {
		return -1
	}
	return batch.ColumnIndex(rec.Schema(), entry.RevisionCol)
}

// selectKeptRows walks rec's rows in order (already primary-key sorted by
// the merge step) and returns the row indices that survive deduplication,
// in ascending order.
//
// Without a revision column: keep the last occurrence of each distinct
// primary-key tuple.
//
// With a revision column: group by (primary_key - date_col, reporting
// period) and keep the row with the maximum revision in the group; ties
// broken by arrival order (a later row with an equal revision replaces an
// earlier one).
func selectKeptRows(rec arrow.Record, groupCols []int, revisionIdx int) []int {
	var keep []int
	if revisionIdx < 0 {
		keep = keepLastByKey(rec, groupCols)
	} else {
		keep = keepMaxRevision(rec, groupCols, revisionIdx)
	}
	sort.Ints(keep)
	return keep
}

func keepLastByKey(rec arrow.Record, keyCols []int) []int {
	last := make(map[string]int)
	order := make([]string, 0, rec.NumRows())
	for row := 0; row < int(rec.NumRows()); row++ {
		k := rowKey(rec, keyCols, row)
		if _, seen := last[k]; !seen {
			order = append(order, k)
		}
		last[k] = row
	}
	keep := make([]int, 0, len(order))
	for _, k := range order {
		keep = append(keep, last[k])
	}
	return keep
}

func keepMaxRevision(rec arrow.Record, groupCols []int, revisionIdx int) []int {
	type winner struct {
		row      int
		revision float64
	}
	best := make(map[string]winner)
	order := make([]string, 0, rec.NumRows())

	revCol := rec.Column(revisionIdx)

	for row := 0; row < int(rec.NumRows()); row++ {
		k := rowKey(rec, groupCols, row)
		var rev float64
		if !revCol.IsNull(row) {
			rev = revisionValue(revCol, row)
		}
		if cur, ok := best[k]; !ok {
			order = append(order, k)
			best[k] = winner{row: row, revision: rev}
		} else if rev >= cur.revision {
			best[k] = winner{row: row, revision: rev}
		}
	}

	keep := make([]int, 0, len(order))
	for _, k := range order {
		keep = append(keep, best[k].row)
	}
	return keep
}

// revisionValue reads col's value at row as a float64 regardless of its
// concrete numeric type, mirroring batch.compareAt's type switch.
func revisionValue(col arrow.Array, row int) float64 {
	switch a := col.(type) {
	case *array.Int64:
		return float64(a.Value(row))
	case *array.Int32:
		return float64(a.Value(row))
	case *array.Uint64:
		return float64(a.Value(row))
	case *array.Float64:
		return a.Value(row)
	default:
		return 0
	}
}

func rowKey(rec arrow.Record, cols []int, row int) string {
	key := ""
	for _, c := range cols {
		col := rec.Column(c)
		if col.IsNull(row) {
			key += "\x00\x01"
			continue
		}
		key += fmt.Sprintf("%v\x00", cellString(col, row))
	}
	return key
}

func cellString(col arrow.Array, row int) any {
	switch a := col.(type) {
	case *array.String:
		return a.Value(row)
	case *array.Int64:
		return a.Value(row)
	case *array.Int32:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.Boolean:
		return a.Value(row)
	default:
		return nil
	}
}

func newBuilder(mem memory.Allocator, sch *arrow.Schema) *array.RecordBuilder {
	return array.NewRecordBuilder(mem, sch)
}
