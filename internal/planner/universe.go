package planner

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/marketlake/marketlake/internal/batch"
	"github.com/marketlake/marketlake/internal/lake"
	"github.com/marketlake/marketlake/internal/parquetio"
	"github.com/marketlake/marketlake/internal/schema"
)

// InstrumentsUniverse resolves the entity universe by scanning the
// instruments table's current full-replace snapshot (§3 "Entity
// lifecycle").
type InstrumentsUniverse struct {
	layout    *lake.Layout
	entityCol string
}

// NewInstrumentsUniverse returns an EntityUniverse reading entityCol out
// of the instruments table under layout.
func NewInstrumentsUniverse(layout *lake.Layout, entityCol string) *InstrumentsUniverse {
	return &InstrumentsUniverse{layout: layout, entityCol: entityCol}
}

// Entities implements EntityUniverse.
func (u *InstrumentsUniverse) Entities(ctx context.Context) ([]string, error) {
	files, err := u.layout.Scan(schema.InstrumentsTable)
	if err != nil {
		return nil, fmt.Errorf("planner: scan instruments table: %w", err)
	}

	seen := make(map[string]bool)
	var entities []string
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := u.collectFile(f.Path, seen, &entities); err != nil {
			return nil, err
		}
	}
	sort.Strings(entities)
	return entities, nil
}

func (u *InstrumentsUniverse) collectFile(path string, seen map[string]bool, entities *[]string) error {
	rdr, err := parquetio.OpenForColumns(context.Background(), path, []string{u.entityCol})
	if err != nil {
		return fmt.Errorf("planner: open %s: %w", path, err)
	}
	defer rdr.Close()

	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("planner: read %s: %w", path, err)
		}

		idx := batch.ColumnIndex(rec.Schema(), u.entityCol)
		if idx < 0 {
			rec.Release()
			return fmt.Errorf("planner: instruments file %s lacks entity column %s", path, u.entityCol)
		}
		col, ok := rec.Column(idx).(*array.String)
		if !ok {
			rec.Release()
			return fmt.Errorf("planner: entity column %s is not a string column", u.entityCol)
		}
		for row := 0; row < col.Len(); row++ {
			if col.IsNull(row) {
				continue
			}
			v := col.Value(row)
			if !seen[v] {
				seen[v] = true
				*entities = append(*entities, v)
			}
		}
		rec.Release()
	}
}
