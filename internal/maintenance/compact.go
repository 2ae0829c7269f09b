package maintenance

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/marketlake/marketlake/internal/arrowutil"
	"github.com/marketlake/marketlake/internal/batch"
	"github.com/marketlake/marketlake/internal/lake"
	"github.com/marketlake/marketlake/internal/parquetio"
	"github.com/marketlake/marketlake/internal/schema"
)

// Compactor merges many small Parquet files within a partition into
// fewer, larger ones, resolving duplicates per the policy in §4.C. It is
// triggered either by a schedule or a file-count threshold (§4.I).
type Compactor struct {
	layout *lake.Layout
	writer *parquetio.Writer
	alloc  memory.Allocator
}

// NewCompactor returns a Compactor writing through writer.
func NewCompactor(layout *lake.Layout, writer *parquetio.Writer) *Compactor {
	return &Compactor{layout: layout, writer: writer, alloc: memory.DefaultAllocator}
}

// NeedsCompaction reports whether table (or, if partitioned, year) has at
// least threshold files — the file-count trigger.
func (c *Compactor) NeedsCompaction(entry schema.Entry, year int, threshold int) (bool, error) {
	files, err := c.listPartition(entry, year)
	if err != nil {
		return false, err
	}
	return len(files) >= threshold, nil
}

// CompactPartition merges every file in entry's partition (or, for an
// unpartitioned table, its whole directory) into a single replacement
// file, applying the duplicate-resolution policy, and atomically swaps it
// in via the same stage/rename/backup dance as a full-replace write
// (§4.I "whole-partition replace").
func (c *Compactor) CompactPartition(ctx context.Context, entry schema.Entry, year int) error {
	files, err := c.listPartition(entry, year)
	if err != nil {
		return err
	}
	if len(files) < 2 {
		return nil
	}

	merged, err := c.mergeFiles(ctx, entry, files)
	if err != nil {
		return err
	}
	defer merged.Release()

	deduped, err := dedupe(c.alloc, entry, merged)
	if err != nil {
		return err
	}
	defer deduped.Release()

	canonical := c.partitionDir(entry, year)
	staging := canonical + "__staging__"
	backup := canonical + "__backup__"

	return c.writer.ReplaceDirectory(canonical, staging, backup, func(stagingDir string) error {
		return parquetio.WriteSingleFile(filepath.Join(stagingDir, "compacted.parquet"), deduped, parquetio.DefaultWriteOptions())
	})
}

func (c *Compactor) partitionDir(entry schema.Entry, year int) string {
	if entry.DateCol == "" {
		return c.layout.PathFor(entry.Name)
	}
	return c.layout.PartitionFor(entry.Name, year)
}

func (c *Compactor) listPartition(entry schema.Entry, year int) ([]lake.File, error) {
	if entry.DateCol == "" {
		return c.layout.Scan(entry.Name)
	}
	return c.layout.ScanPartition(entry.Name, year)
}

// mergeFiles reads every file's rows and k-way merges them by entry's
// primary key; each input file is individually already sorted by the
// primary key (I4), so they merge without a full re-sort.
func (c *Compactor) mergeFiles(ctx context.Context, entry schema.Entry, files []lake.File) (arrow.Record, error) {
	recs := make([]arrow.Record, 0, len(files))
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	var keys []arrowutil.SortKey
	for _, f := range files {
		rec, err := parquetio.ReadFile(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("maintenance: read %s for compaction: %w", f.Path, err)
		}
		if keys == nil {
			for _, col := range entry.PrimaryKey {
				idx := batch.ColumnIndex(rec.Schema(), col)
				if idx < 0 {
					rec.Release()
					return nil, fmt.Errorf("maintenance: primary key column %q missing from %s", col, f.Path)
				}
				keys = append(keys, arrowutil.SortKey{ColumnIndex: idx})
			}
		}
		recs = append(recs, rec)
	}

	return arrowutil.Merge(c.alloc, recs, keys)
}

// dedupe applies §4.C's duplicate-resolution policy to a primary-key
// sorted, merged record: tables with a RevisionCol keep the
// highest-revision row within each (primary_key - date_col, reporting
// period) group, ties broken by arrival order; other tables keep the
// last occurrence by primary key.
func dedupe(mem memory.Allocator, entry schema.Entry, rec arrow.Record) (arrow.Record, error) {
	groupCols, err := groupingColumns(entry, rec)
	if err != nil {
		return nil, err
	}

	keep := selectKeptRows(rec, groupCols, revisionColumnIndex(entry, rec))

	b := newBuilder(mem, rec.Schema())
	defer b.Release()
	for _, row := range keep {
		for colIdx := range rec.Schema().Fields() {
			if err := batch.AppendValue(b.Field(colIdx), rec.Column(colIdx), row); err != nil {
				return nil, err
			}
		}
	}
	return b.NewRecord(), nil
}
