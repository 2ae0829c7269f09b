// Package state implements the State Queryer (§4.D): given a table and a
// set of entities, returns the maximum date-column value per entity (or
// globally) by scanning the data lake. It is read-only, safe for concurrent
// callers, and its consistency is "as of enumeration": files that land in
// the lake after Scan runs are simply not seen.
package state

import (
	"context"
	"fmt"
	"io"

	"github.com/marketlake/marketlake/internal/batch"
	"github.com/marketlake/marketlake/internal/lake"
	"github.com/marketlake/marketlake/internal/parquetio"
	"github.com/marketlake/marketlake/internal/schema"
)

// ErrLakeUnreadable wraps a corrupt-Parquet failure encountered while
// scanning.
type ErrLakeUnreadable struct {
	Table string
	Err   error
}

func (e *ErrLakeUnreadable) Error() string {
	return fmt.Sprintf("state: table %s is unreadable: %v", e.Table, e.Err)
}
func (e *ErrLakeUnreadable) Unwrap() error { return e.Err }

// Queryer computes per-entity max dates over a Layout-managed lake.
type Queryer struct {
	layout *lake.Layout
}

// New returns a Queryer rooted at layout.
func New(layout *lake.Layout) *Queryer {
	return &Queryer{layout: layout}
}

// MaxDate returns the maximum DateCol value (YYYYMMDD) observed per entity
// in entities. Per §4.D:
//   - entities empty, entry.DateCol unset: returns {}.
//   - entities empty, entry.DateCol set: returns {"": globalMax}.
//   - otherwise: scans the lake, projecting only EntityCol and DateCol,
//     grouping by entity; entities with no rows are absent from the result.
func (q *Queryer) MaxDate(ctx context.Context, entry schema.Entry, entities []string) (map[string]string, error) {
	if entry.DateCol == "" {
		return map[string]string{}, nil
	}
	if len(entities) == 0 {
		global, err := q.scanMax(ctx, entry, nil)
		if err != nil {
			return nil, err
		}
		max, ok := global[""]
		if !ok {
			return map[string]string{}, nil
		}
		return map[string]string{"": max}, nil
	}

	want := make(map[string]bool, len(entities))
	for _, e := range entities {
		want[e] = true
	}
	return q.scanMax(ctx, entry, want)
}

// scanMax performs the actual projection + grouping scan. want == nil means
// "no entity grouping" (global max, stored under the "" key).
func (q *Queryer) scanMax(ctx context.Context, entry schema.Entry, want map[string]bool) (map[string]string, error) {
	files, err := q.layout.Scan(entry.Name)
	if err != nil {
		return nil, &ErrLakeUnreadable{Table: entry.Name, Err: err}
	}

	projection := []string{entry.DateCol}
	groupByEntity := entry.UpdateBySymbol && want != nil
	if groupByEntity {
		projection = append(projection, entry.EntityCol)
	}

	result := make(map[string]string)
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := q.scanFile(f.Path, projection, entry, groupByEntity, want, result); err != nil {
			return nil, &ErrLakeUnreadable{Table: entry.Name, Err: err}
		}
	}
	return result, nil
}

func (q *Queryer) scanFile(path string, projection []string, entry schema.Entry, groupByEntity bool, want map[string]bool, result map[string]string) error {
	rdr, err := parquetio.OpenForColumns(context.Background(), path, projection)
	if err != nil {
		return err
	}
	defer rdr.Close()

	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		dateIdx := batch.ColumnIndex(rec.Schema(), entry.DateCol)
		if dateIdx < 0 {
			rec.Release()
			return fmt.Errorf("state: file %s lacks date column %s", path, entry.DateCol)
		}

		if !groupByEntity {
			if max, ok := batch.MaxString(rec, dateIdx); ok {
				if cur, exists := result[""]; !exists || max > cur {
					result[""] = max
				}
			}
			rec.Release()
			continue
		}

		entIdx := batch.ColumnIndex(rec.Schema(), entry.EntityCol)
		if entIdx < 0 {
			rec.Release()
			return fmt.Errorf("state: file %s lacks entity column %s", path, entry.EntityCol)
		}
		if err := accumulateByEntity(rec, dateIdx, entIdx, want, result); err != nil {
			rec.Release()
			return err
		}
		rec.Release()
	}
}
