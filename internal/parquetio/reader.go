package parquetio

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/marketlake/marketlake/internal/batch"
)

// RecordReader streams records out of a single Parquet file, optionally
// projecting only a subset of columns (used by the State Queryer's
// column-pruned scans).
type RecordReader struct {
	parquetRdr *file.Reader
	recordRdr  pqarrow.RecordReader
}

// OpenForColumns opens path for reading, projecting only columns (nil means
// all columns).
func OpenForColumns(ctx context.Context, path string, columns []string) (*RecordReader, error) {
	parquetRdr, err := file.OpenParquetFile(path, true)
	if err != nil {
		return nil, &ErrIOFailure{Op: "open " + path, Err: err}
	}

	arrowRdr, err := pqarrow.NewFileReader(parquetRdr, pqarrow.ArrowReadProperties{BatchSize: 4096, Parallel: true}, memory.DefaultAllocator)
	if err != nil {
		parquetRdr.Close()
		return nil, &ErrIOFailure{Op: "build arrow reader for " + path, Err: err}
	}

	fullSchema, err := arrowRdr.Schema()
	if err != nil {
		parquetRdr.Close()
		return nil, &ErrIOFailure{Op: "read schema of " + path, Err: err}
	}

	var colIndices []int
	if len(columns) > 0 {
		want := make(map[string]bool, len(columns))
		for _, c := range columns {
			want[c] = true
		}
		for i, f := range fullSchema.Fields() {
			if want[f.Name] {
				colIndices = append(colIndices, i)
			}
		}
	}

	recordRdr, err := arrowRdr.GetRecordReader(ctx, colIndices, nil)
	if err != nil {
		parquetRdr.Close()
		return nil, &ErrIOFailure{Op: "get record reader for " + path, Err: err}
	}

	return &RecordReader{parquetRdr: parquetRdr, recordRdr: recordRdr}, nil
}

// Read returns the next record, or io.EOF once exhausted.
func (r *RecordReader) Read() (arrow.Record, error) {
	if !r.recordRdr.Next() {
		if err := r.recordRdr.Err(); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parquetio: read record: %w", err)
		}
		return nil, io.EOF
	}
	return r.recordRdr.Record(), nil
}

// Close releases the underlying Parquet file handle.
func (r *RecordReader) Close() error {
	return r.parquetRdr.Close()
}

// ReadFile reads path in its entirety and returns it as a single record,
// flattening whatever row-group batching the underlying reader used. Used
// by compaction, which needs a full partition file's rows in one place to
// merge against its siblings.
func ReadFile(ctx context.Context, path string) (arrow.Record, error) {
	rdr, err := OpenForColumns(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	var batches []arrow.Record
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		defer rec.Release()
		batches = append(batches, rec)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("parquetio: file %s yielded no row-group batches to read a schema from", path)
	}
	return batch.Concat(memory.DefaultAllocator, batches[0].Schema(), batches)
}
