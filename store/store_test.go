package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Items map[string]int `json:"items"`
}

func TestFileDriverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	driver, err := NewFileDriver(dir)
	require.NoError(t, err)
	defer driver.Close()

	ctx := context.Background()
	doc := testDoc{Items: map[string]int{"a": 1, "b": 2}}
	require.NoError(t, SaveDoc(ctx, driver, ConcernReminders, "acct-1", doc))

	got := LoadDoc[testDoc](ctx, driver, ConcernReminders, "acct-1")
	assert.Equal(t, doc, got)

	// No stray temp files after a save.
	entries, err := os.ReadDir(filepath.Join(dir, "acct-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reminders.json", entries[0].Name())
}

func TestLoadMissingDocumentIsEmpty(t *testing.T) {
	driver, err := NewFileDriver(t.TempDir())
	require.NoError(t, err)

	got := LoadDoc[testDoc](context.Background(), driver, ConcernSubscriptions, "nobody")
	assert.Nil(t, got.Items)
}

func TestLoadCorruptDocumentIsEmpty(t *testing.T) {
	dir := t.TempDir()
	driver, err := NewFileDriver(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "acct-1", "reminders.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got := LoadDoc[testDoc](context.Background(), driver, ConcernReminders, "acct-1")
	assert.Nil(t, got.Items)
}

func TestDocumentsAreIsolatedByConcernAndAccount(t *testing.T) {
	driver := NewMemoryDriver()
	ctx := context.Background()

	require.NoError(t, SaveDoc(ctx, driver, ConcernReminders, "a", testDoc{Items: map[string]int{"x": 1}}))
	require.NoError(t, SaveDoc(ctx, driver, ConcernSubscriptions, "a", testDoc{Items: map[string]int{"y": 2}}))
	require.NoError(t, SaveDoc(ctx, driver, ConcernReminders, "b", testDoc{Items: map[string]int{"z": 3}}))

	assert.Equal(t, map[string]int{"x": 1}, LoadDoc[testDoc](ctx, driver, ConcernReminders, "a").Items)
	assert.Equal(t, map[string]int{"y": 2}, LoadDoc[testDoc](ctx, driver, ConcernSubscriptions, "a").Items)
	assert.Equal(t, map[string]int{"z": 3}, LoadDoc[testDoc](ctx, driver, ConcernReminders, "b").Items)
}

func TestSaveOverwrites(t *testing.T) {
	driver := NewMemoryDriver()
	ctx := context.Background()

	require.NoError(t, SaveDoc(ctx, driver, ConcernReminders, "a", testDoc{Items: map[string]int{"x": 1}}))
	require.NoError(t, SaveDoc(ctx, driver, ConcernReminders, "a", testDoc{Items: map[string]int{"x": 9}}))

	assert.Equal(t, map[string]int{"x": 9}, LoadDoc[testDoc](ctx, driver, ConcernReminders, "a").Items)
}
