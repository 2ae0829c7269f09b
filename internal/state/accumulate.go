package state

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
)

// accumulateByEntity folds rec's rows into result, keeping, per entity in
// want, the maximum value observed at dateIdx. Rows whose entity is not in
// want are skipped.
func accumulateByEntity(rec arrow.Record, dateIdx, entIdx int, want map[string]bool, result map[string]string) error {
	dateCol, ok := rec.Column(dateIdx).(*array.String)
	if !ok {
		return errColumnType("date", dateIdx)
	}
	entCol, ok := rec.Column(entIdx).(*array.String)
	if !ok {
		return errColumnType("entity", entIdx)
	}

	for row := 0; row < int(rec.NumRows()); row++ {
		if dateCol.IsNull(row) || entCol.IsNull(row) {
			continue
		}
		entity := entCol.Value(row)
		if !want[entity] {
			continue
		}
		date := dateCol.Value(row)
		if cur, exists := result[entity]; !exists || date > cur {
			result[entity] = date
		}
	}
	return nil
}

func errColumnType(label string, idx int) error {
	return fmt.Errorf("state: %s column at index %d is not a string column", label, idx)
}
