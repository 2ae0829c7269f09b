// Package arrowutil implements a k-way merge over pre-sorted Arrow records,
// used by the maintenance worker's compaction routine to combine many small
// partition files into fewer, larger ones without re-sorting the whole
// partition from scratch.
package arrowutil

import (
	"container/heap"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/marketlake/marketlake/internal/batch"
)

// SortKey names an ordering column by index within the schema, ascending.
type SortKey struct {
	ColumnIndex int
}

type cursor struct {
	rec    arrow.Record
	curIdx int
}

// mergeHeap is a min-heap over record cursors ordered by keys.
type mergeHeap struct {
	cursors []cursor
	keys    []SortKey
}

func (h *mergeHeap) Len() int { return len(h.cursors) }

func (h *mergeHeap) Less(i, j int) bool {
	ci, cj := h.cursors[i], h.cursors[j]
	for _, k := range h.keys {
		colI := ci.rec.Column(k.ColumnIndex)
		colJ := cj.rec.Column(k.ColumnIndex)
		ni, nj := colI.IsNull(ci.curIdx), colJ.IsNull(cj.curIdx)
		if ni != nj {
			return ni
		}
		if ni {
			continue
		}
		cmp := compareAt(colI, ci.curIdx, colJ, cj.curIdx)
		if cmp != 0 {
			return cmp < 0
		}
	}
	return false
}

func (h *mergeHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *mergeHeap) Push(x interface{}) { h.cursors = append(h.cursors, x.(cursor)) }

func (h *mergeHeap) Pop() interface{} {
	n := len(h.cursors)
	x := h.cursors[n-1]
	h.cursors = h.cursors[:n-1]
	return x
}

func compareAt(a arrow.Array, i int, b arrow.Array, j int) int {
	switch av := a.(type) {
	case *array.String:
		bv := b.(*array.String)
		return stringsCompare(av.Value(i), bv.Value(j))
	case *array.Int64:
		bv := b.(*array.Int64)
		return int64sCompare(av.Value(i), bv.Value(j))
	case *array.Int32:
		bv := b.(*array.Int32)
		return int64sCompare(int64(av.Value(i)), int64(bv.Value(j)))
	case *array.Float64:
		bv := b.(*array.Float64)
		return float64sCompare(av.Value(i), bv.Value(j))
	default:
		return 0
	}
}

func stringsCompare(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func int64sCompare(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func float64sCompare(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Merge k-way merges sorted into a single record ordered by keys. Every
// input record must already be sorted ascending by keys and share the same
// schema; this is the case for files compaction reads out of one partition,
// each of which was sorted by SortByKey before being written (I4).
func Merge(mem memory.Allocator, sorted []arrow.Record, keys []SortKey) (arrow.Record, error) {
	if len(sorted) == 0 {
		return nil, fmt.Errorf("arrowutil: merge requires at least one record")
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	h := &mergeHeap{keys: keys}
	for _, rec := range sorted {
		if rec.NumRows() == 0 {
			continue
		}
		h.cursors = append(h.cursors, cursor{rec: rec, curIdx: 0})
	}
	heap.Init(h)

	schema := sorted[0].Schema()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for h.Len() > 0 {
		top := &h.cursors[0]
		for colIdx := range schema.Fields() {
			if err := batch.AppendValue(b.Field(colIdx), top.rec.Column(colIdx), top.curIdx); err != nil {
				return nil, err
			}
		}
		top.curIdx++
		if top.curIdx >= int(top.rec.NumRows()) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}

	return b.NewRecord(), nil
}
