package maintenance

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/marketlake/marketlake/internal/schema"
)

func buildRecord(t *testing.T, sch *arrow.Schema, rows [][]any) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.DefaultAllocator, sch)
	defer b.Release()
	for _, row := range rows {
		for i, v := range row {
			switch val := v.(type) {
			case string:
				b.Field(i).(*array.StringBuilder).Append(val)
			case float64:
				b.Field(i).(*array.Float64Builder).Append(val)
			case int64:
				b.Field(i).(*array.Int64Builder).Append(val)
			}
		}
	}
	return b.NewRecord()
}

func TestDedupeKeepsLastOccurrenceByPrimaryKey(t *testing.T) {
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.BinaryTypes.String},
		{Name: "price", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	rec := buildRecord(t, sch, [][]any{
		{"AAPL", "20260101", 100.0},
		{"AAPL", "20260101", 101.0}, // later write wins
		{"MSFT", "20260101", 200.0},
	})
	defer rec.Release()

	entry := schema.Entry{Name: "prices", PrimaryKey: []string{"symbol", "date"}, DateCol: "date"}
	out, err := dedupe(memory.DefaultAllocator, entry, rec)
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 2, out.NumRows())
	prices := out.Column(2).(*array.Float64)
	require.Equal(t, 101.0, prices.Value(0))
	require.Equal(t, 200.0, prices.Value(1))
}

func TestDedupeKeepsMaxRevisionWithinReportingPeriod(t *testing.T) {
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.BinaryTypes.String},
		{Name: "period", Type: arrow.BinaryTypes.String},
		{Name: "revision", Type: arrow.PrimitiveTypes.Float64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	rec := buildRecord(t, sch, [][]any{
		{"AAPL", "20260101", "Q1", 1.0, 10.0},
		{"AAPL", "20260401", "Q1", 2.0, 20.0}, // higher revision, same reporting period
	})
	defer rec.Release()

	entry := schema.Entry{
		Name:               "fundamentals",
		PrimaryKey:         []string{"symbol", "date"},
		DateCol:            "date",
		RevisionCol:        "revision",
		ReportingPeriodCol: "period",
	}
	out, err := dedupe(memory.DefaultAllocator, entry, rec)
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 1, out.NumRows())
	values := out.Column(4).(*array.Float64)
	require.Equal(t, 20.0, values.Value(0))
}

// TestDedupeKeepsMaxRevisionWithInt64RevisionColumn mirrors
// TestDedupeKeepsMaxRevisionWithinReportingPeriod but with the revision
// column typed the way tables.Fundamentals actually declares it
// (arrow.PrimitiveTypes.Int64), not Float64. A revision-column type switch
// that only recognized *array.Float64 would silently treat every row's
// revision as 0 here and degrade to "keep last occurrence".
func TestDedupeKeepsMaxRevisionWithInt64RevisionColumn(t *testing.T) {
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.BinaryTypes.String},
		{Name: "period", Type: arrow.BinaryTypes.String},
		{Name: "revision", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	rec := buildRecord(t, sch, [][]any{
		{"AAPL", "20260101", "Q1", int64(1), 10.0},
		{"AAPL", "20260401", "Q1", int64(2), 20.0}, // higher revision, same reporting period
		{"AAPL", "20260701", "Q1", int64(1), 30.0}, // lower revision, arrives last: must lose
	})
	defer rec.Release()

	entry := schema.Entry{
		Name:               "fundamentals",
		PrimaryKey:         []string{"symbol", "date"},
		DateCol:            "date",
		RevisionCol:        "revision",
		ReportingPeriodCol: "period",
	}
	out, err := dedupe(memory.DefaultAllocator, entry, rec)
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 1, out.NumRows())
	values := out.Column(4).(*array.Float64)
	require.Equal(t, 20.0, values.Value(0))
}

func TestDedupeRevisionTieBreaksByArrivalOrder(t *testing.T) {
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "date", Type: arrow.BinaryTypes.String},
		{Name: "period", Type: arrow.BinaryTypes.String},
		{Name: "revision", Type: arrow.PrimitiveTypes.Float64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	rec := buildRecord(t, sch, [][]any{
		{"AAPL", "20260101", "Q1", 1.0, 10.0},
		{"AAPL", "20260401", "Q1", 1.0, 99.0}, // equal revision, arrives later
	})
	defer rec.Release()

	entry := schema.Entry{
		Name:               "fundamentals",
		PrimaryKey:         []string{"symbol", "date"},
		DateCol:            "date",
		RevisionCol:        "revision",
		ReportingPeriodCol: "period",
	}
	out, err := dedupe(memory.DefaultAllocator, entry, rec)
	require.NoError(t, err)
	defer out.Release()

	require.EqualValues(t, 1, out.NumRows())
	values := out.Column(4).(*array.Float64)
	require.Equal(t, 99.0, values.Value(0))
}
