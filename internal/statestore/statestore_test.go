package statestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	require.NoError(t, store.Save("widget", sample{Count: 3, Name: "gear"}))

	var got sample
	found, err := store.Load("widget", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, sample{Count: 3, Name: "gear"}, got)
}

func TestLoadMissingKeyReturnsFalse(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	var got sample
	found, err := store.Load("absent", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSaveOverwritesPreviousValue(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	require.NoError(t, store.Save("widget", sample{Count: 1}))
	require.NoError(t, store.Save("widget", sample{Count: 2}))

	var got sample
	_, err = store.Load("widget", &got)
	require.NoError(t, err)
	require.Equal(t, 2, got.Count)
}
