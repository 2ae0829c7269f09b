package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlake/marketlake/internal/config"
)

func TestAppGroupConfigMergesDefaultsAndEntityFilters(t *testing.T) {
	app := &App{
		Config: &config.Config{
			Groups: map[string][]string{
				"daily": {"prices", "dividends"},
			},
			EntityFilters: map[string][]string{
				"daily": {".SH", ".SZ"},
			},
			Defaults: config.Defaults{
				StartDate:       "20200101",
				EndDate:         "20260730",
				MarketCloseHour: 15,
			},
		},
	}

	group, err := app.GroupConfig("daily")
	require.NoError(t, err)
	assert.Equal(t, []string{"prices", "dividends"}, group.Tables)
	assert.Equal(t, "20200101", group.DefaultStart)
	assert.Equal(t, "20260730", group.EndDate)
	assert.Equal(t, 15, group.MarketCloseHour)
	assert.Equal(t, []string{".SH", ".SZ"}, group.EntitySuffixes)
}

func TestAppGroupConfigUnknownGroup(t *testing.T) {
	app := &App{Config: &config.Config{Groups: map[string][]string{}}}

	_, err := app.GroupConfig("missing")
	assert.Error(t, err)
}
