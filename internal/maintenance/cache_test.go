package maintenance

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketlake/marketlake/internal/statestore"
)

func TestRefreshCacheUnchangedDetection(t *testing.T) {
	store, err := statestore.New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	cache, err := LoadRefreshCache(store)
	require.NoError(t, err)

	require.False(t, cache.Unchanged("prices", 3, 100))
	cache.Record("prices", 3, 100)
	require.True(t, cache.Unchanged("prices", 3, 100))
	require.False(t, cache.Unchanged("prices", 4, 100), "a changed file count must invalidate the cache entry")
}

func TestRefreshCachePersistsAcrossReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store1, err := statestore.New(dir)
	require.NoError(t, err)
	cache1, err := LoadRefreshCache(store1)
	require.NoError(t, err)
	cache1.Record("prices", 5, 200)

	store2, err := statestore.New(dir)
	require.NoError(t, err)
	cache2, err := LoadRefreshCache(store2)
	require.NoError(t, err)
	require.True(t, cache2.Unchanged("prices", 5, 200))
}
