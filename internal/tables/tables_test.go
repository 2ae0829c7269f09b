package tables

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlake/marketlake/internal/fetcher"
)

func TestDecodersCoverEveryDeclaredAPIID(t *testing.T) {
	decoders := Decoders(memory.DefaultAllocator)
	for _, id := range []string{"list_instruments", "daily_prices", "fundamentals", "dividends"} {
		assert.Contains(t, decoders, id)
	}
}

func TestPricesDecoderBuildsRecordFromRows(t *testing.T) {
	decoders := Decoders(memory.DefaultAllocator)
	decode := decoders["daily_prices"]

	rec, err := decode([]fetcher.Row{
		{"symbol": "AAPL", "date": "20260730", "open": 100.0, "high": 101.0, "low": 99.0, "close": 100.5, "volume": 1000.0, "adjusted_close": 100.5},
	})
	require.NoError(t, err)
	defer rec.Release()

	assert.EqualValues(t, 1, rec.NumRows())
	assert.Equal(t, Prices.NumFields(), int(rec.NumCols()))
}
