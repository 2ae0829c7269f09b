// Package parquetio implements the Parquet Writer (§4.C): append-with-
// unique-filename persistence for incremental tables, and atomic
// full-replace-via-rename persistence for full-replace tables.
package parquetio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/marketlake/marketlake/internal/batch"
	"github.com/marketlake/marketlake/internal/lake"
	"github.com/marketlake/marketlake/internal/schema"
)

// ErrIOFailure wraps filesystem errors encountered while writing.
type ErrIOFailure struct {
	Op  string
	Err error
}

func (e *ErrIOFailure) Error() string { return fmt.Sprintf("parquetio: %s: %v", e.Op, e.Err) }
func (e *ErrIOFailure) Unwrap() error { return e.Err }

// ErrSchemaMismatch is returned when a batch's columns do not cover the
// table's declared primary key.
type ErrSchemaMismatch struct {
	Table  string
	Detail string
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("parquetio: table %s: schema mismatch: %s", e.Table, e.Detail)
}

// WriteOptions configures the Parquet file properties used for every write.
type WriteOptions struct {
	Compression       compress.Compression
	MaxRowGroupLength int64
	Allocator         memory.Allocator
}

// DefaultWriteOptions returns Snappy compression with row groups capped at
// 128*1024*1024 rows.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{
		Compression:       compress.Codecs.Snappy,
		MaxRowGroupLength: 128 * 1024 * 1024,
		Allocator:         memory.DefaultAllocator,
	}
}

func (o *WriteOptions) writerProps() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithAllocator(o.Allocator),
		parquet.WithCompression(o.Compression),
		parquet.WithMaxRowGroupLength(o.MaxRowGroupLength),
	)
}

// Writer writes record batches into a Layout-managed data lake.
type Writer struct {
	layout *lake.Layout
	opts   *WriteOptions
}

// New returns a Writer rooted at layout, using opts (or defaults if nil).
func New(layout *lake.Layout, opts *WriteOptions) *Writer {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	return &Writer{layout: layout, opts: opts}
}

// WriteAppend writes one new file per year partition present in rec (or a
// single file under the table's directory, for unpartitioned tables),
// sorted by entry.PrimaryKey (I4). Every filename embeds a random UUID and,
// if entityTag is non-empty, a sanitized copy of it, guaranteeing global
// uniqueness (I5). Pre-existing files are never touched.
func (w *Writer) WriteAppend(entry schema.Entry, rec arrow.Record, entityTag string) error {
	if err := batch.RequireColumns(rec, entry.PrimaryKey); err != nil {
		return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
	}
	if entry.DateCol != "" {
		if err := batch.RequireColumns(rec, []string{entry.DateCol}); err != nil {
			return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
		}
	}

	sorted, err := batch.SortByKey(w.opts.Allocator, rec, entry.PrimaryKey)
	if err != nil {
		return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
	}
	defer sorted.Release()

	if entry.DateCol == "" {
		dir := w.layout.PathFor(entry.Name)
		return w.writeOneFile(dir, entry.Name, entityTag, sorted)
	}

	byYear, err := batch.SplitByYear(w.opts.Allocator, sorted, entry.DateCol)
	if err != nil {
		return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
	}
	for year, part := range byYear {
		dir := w.layout.PartitionFor(entry.Name, year)
		if err := w.writeOneFile(dir, entry.Name, entityTag, part); err != nil {
			part.Release()
			return err
		}
		part.Release()
	}
	return nil
}

func (w *Writer) writeOneFile(dir, table, entityTag string, rec arrow.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ErrIOFailure{Op: "mkdir " + dir, Err: err}
	}
	path := filepath.Join(dir, uniqueFilename(entityTag))
	if err := writeParquetFile(path, rec, w.opts); err != nil {
		return &ErrIOFailure{Op: "write " + path, Err: err}
	}
	_ = table
	return nil
}

// uniqueFilename embeds a random UUID and an optional sanitized entity tag,
// satisfying I5 for the process's lifetime.
func uniqueFilename(entityTag string) string {
	id := uuid.New().String()
	if entityTag == "" {
		return fmt.Sprintf("part-%s.parquet", id)
	}
	return fmt.Sprintf("part-%s-%s.parquet", id, sanitizeTag(entityTag))
}

func sanitizeTag(tag string) string {
	out := make([]rune, 0, len(tag))
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// WriteReplace atomically swaps table's entire on-disk snapshot for rec,
// via the three-step stage/rename/cleanup dance (§4.C, I2). rec is sorted
// by entry.PrimaryKey before being written to the staging directory, and
// partitioned by year if entry.DateCol is set.
func (w *Writer) WriteReplace(entry schema.Entry, rec arrow.Record) error {
	if err := batch.RequireColumns(rec, entry.PrimaryKey); err != nil {
		return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
	}

	sorted, err := batch.SortByKey(w.opts.Allocator, rec, entry.PrimaryKey)
	if err != nil {
		return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
	}
	defer sorted.Release()

	staging := w.layout.StagingFor(entry.Name)
	if err := os.RemoveAll(staging); err != nil {
		return &ErrIOFailure{Op: "clear stale staging dir", Err: err}
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &ErrIOFailure{Op: "mkdir staging", Err: err}
	}

	if entry.DateCol == "" {
		path := filepath.Join(staging, uniqueFilename(""))
		if err := writeParquetFile(path, sorted, w.opts); err != nil {
			return &ErrIOFailure{Op: "write staging snapshot", Err: err}
		}
	} else {
		byYear, err := batch.SplitByYear(w.opts.Allocator, sorted, entry.DateCol)
		if err != nil {
			return &ErrSchemaMismatch{Table: entry.Name, Detail: err.Error()}
		}
		for year, part := range byYear {
			dir := filepath.Join(staging, fmt.Sprintf("year=%04d", year))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				part.Release()
				return &ErrIOFailure{Op: "mkdir staging partition", Err: err}
			}
			path := filepath.Join(dir, uniqueFilename(""))
			werr := writeParquetFile(path, part, w.opts)
			part.Release()
			if werr != nil {
				return &ErrIOFailure{Op: "write staging partition", Err: werr}
			}
		}
	}

	return w.swapIn(entry.Name, staging)
}

// swapIn performs steps 2-3 of the atomic replace dance: rename the
// canonical directory to a backup (if present), rename staging into the
// canonical path, then delete the backup — restoring it on failure so the
// lake is never left torn (I2).
func (w *Writer) swapIn(table, staging string) error {
	return swapDirs(w.layout.PathFor(table), staging, w.layout.BackupFor(table))
}

// ReplaceDirectory atomically swaps the contents of canonical for
// whatever populate writes into the staging directory it is given, using
// the same stage/rename/backup/delete-backup dance as WriteReplace (I2).
// It is the partition-level building block compaction uses: compaction
// replaces one year partition (or an unpartitioned table's directory)
// without touching any other partition.
func (w *Writer) ReplaceDirectory(canonical, staging, backup string, populate func(stagingDir string) error) error {
	if err := os.RemoveAll(staging); err != nil {
		return &ErrIOFailure{Op: "clear stale staging dir", Err: err}
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &ErrIOFailure{Op: "mkdir staging", Err: err}
	}
	if err := populate(staging); err != nil {
		return err
	}
	return swapDirs(canonical, staging, backup)
}

// swapDirs performs the rename/backup/delete-backup dance shared by
// table-level replace and partition-level compaction.
func swapDirs(canonical, staging, backup string) error {
	if _, err := os.Stat(backup); err == nil {
		return &ErrIOFailure{Op: "swap", Err: fmt.Errorf("backup directory %s already exists from a prior interrupted replace", backup)}
	}

	hadPrior := true
	if _, err := os.Stat(canonical); err != nil {
		if !os.IsNotExist(err) {
			return &ErrIOFailure{Op: "stat canonical dir", Err: err}
		}
		hadPrior = false
	}

	if hadPrior {
		if err := os.Rename(canonical, backup); err != nil {
			return &ErrIOFailure{Op: "rename canonical to backup", Err: err}
		}
	}

	if err := os.Rename(staging, canonical); err != nil {
		if hadPrior {
			if rerr := os.Rename(backup, canonical); rerr != nil {
				return &ErrIOFailure{Op: "restore backup after failed swap", Err: rerr}
			}
		}
		return &ErrIOFailure{Op: "rename staging to canonical", Err: err}
	}

	if hadPrior {
		if err := os.RemoveAll(backup); err != nil {
			return &ErrIOFailure{Op: "delete backup after successful swap", Err: err}
		}
	}
	return nil
}

// WriteSingleFile writes rec to path as a standalone Parquet file, for
// callers (compaction) that build their own directory layout instead of
// going through Writer's append/replace paths.
func WriteSingleFile(path string, rec arrow.Record, opts *WriteOptions) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	return writeParquetFile(path, rec, opts)
}

func writeParquetFile(path string, rec arrow.Record, opts *WriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fw, err := pqarrow.NewFileWriter(rec.Schema(), f, opts.writerProps(), pqarrow.DefaultWriterProps())
	if err != nil {
		return err
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}
