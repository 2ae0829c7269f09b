// Package tables binds the schema registry's abstract table entries to
// concrete Arrow schemas, giving the generic HTTP fetcher's row decoder
// (internal/fetcher.NewRowDecoder) something to decode into for each of
// the upstream APIs this pipeline actually ingests.
package tables

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/marketlake/marketlake/internal/fetcher"
)

// Instruments is the entity universe table (§3 "Entity lifecycle").
var Instruments = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "exchange", Type: arrow.BinaryTypes.String},
	{Name: "currency", Type: arrow.BinaryTypes.String},
	{Name: "listed_date", Type: arrow.BinaryTypes.String},
}, nil)

// Prices is the daily OHLCV table.
var Prices = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "date", Type: arrow.BinaryTypes.String},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Int64},
	{Name: "adjusted_close", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Fundamentals is the quarterly financial-statement table, revisioned
// within a reporting period as filings are restated.
var Fundamentals = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "date", Type: arrow.BinaryTypes.String},
	{Name: "period", Type: arrow.BinaryTypes.String},
	{Name: "revision", Type: arrow.PrimitiveTypes.Int64},
	{Name: "revenue", Type: arrow.PrimitiveTypes.Float64},
	{Name: "net_income", Type: arrow.PrimitiveTypes.Float64},
	{Name: "total_assets", Type: arrow.PrimitiveTypes.Float64},
	{Name: "total_liabilities", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Dividends is the corporate-action table recording cash distributions.
var Dividends = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "date", Type: arrow.BinaryTypes.String},
	{Name: "ex_date", Type: arrow.BinaryTypes.String},
	{Name: "amount", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Decoders returns the upstream_api_id -> Decoder map the HTTP fetcher
// dispatches on, one row decoder per table schema declared above.
func Decoders(mem memory.Allocator) map[string]fetcher.Decoder {
	return map[string]fetcher.Decoder{
		"list_instruments": fetcher.NewRowDecoder(mem, Instruments),
		"daily_prices":     fetcher.NewRowDecoder(mem, Prices),
		"fundamentals":     fetcher.NewRowDecoder(mem, Fundamentals),
		"dividends":        fetcher.NewRowDecoder(mem, Dividends),
	}
}
