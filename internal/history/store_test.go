package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "nested", DefaultFileName))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestStore_AddAndList(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, s.Add(Record{
			ID:        id,
			Project:   "demo",
			Root:      "/work/demo",
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, s.Add(Record{ID: "other", Project: "other", Root: "/work/other", Timestamp: base.Add(time.Hour)}))

	// A root that is a prefix of another must not match it
	require.NoError(t, s.Add(Record{ID: "prefix", Root: "/work/demo2", Timestamp: base}))

	records, err := s.List("/work/demo", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].ID, "newest first")
	assert.Equal(t, "first", records[2].ID)

	records, err = s.List("/work/demo", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	all, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "other", all[0].ID)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestStore_Clear(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Add(Record{ID: "a", Root: "/a", Timestamp: time.Now()}))
	require.NoError(t, s.Add(Record{ID: "b", Root: "/b", Timestamp: time.Now()}))

	require.NoError(t, s.Clear("/a"))

	records, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)

	require.NoError(t, s.Clear(""))

	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	// The bucket is recreated and usable
	require.NoError(t, s.Add(Record{ID: "c", Root: "/c", Timestamp: time.Now()}))
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(Record{ID: "kept", Root: "/p", Failure: "compile_failure", Errors: 2}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())

	records, err := s.List("/p", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "compile_failure", records[0].Failure)
	assert.Equal(t, 2, records[0].Errors)
}
