package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndRecent(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Add(&Record{
		URL:         "https://example.com/a.mp4",
		Platform:    "generic",
		Title:       "First",
		FilePath:    "/out/a.mp4",
		FileSize:    1024,
		FileCount:   1,
		Status:      "completed",
		CompletedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = s.Add(&Record{
		URL:       "https://example.com/b.mp4",
		Title:     "Second",
		Status:    "failed",
		Error:     "connection error",
		CreatedAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Second", recent[0].Title, "newest first")
	assert.Equal(t, "First", recent[1].Title)
	assert.Equal(t, int64(1024), recent[1].FileSize)
	assert.False(t, recent[1].CompletedAt.IsZero())
	assert.True(t, recent[0].CompletedAt.IsZero())
	assert.Equal(t, "connection error", recent[0].Error)
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	s.Add(&Record{URL: "https://example.com/cats.mp4", Title: "Cats Compilation", Status: "completed"})
	s.Add(&Record{URL: "https://example.com/dogs.mp4", Title: "Dog Tricks", Status: "completed"})

	got, err := s.Search("cats", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cats Compilation", got[0].Title)

	got, err = s.Search("dogs.mp4", 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "search matches URLs too")
}

func TestSummaryAndClear(t *testing.T) {
	s := openTestStore(t)
	s.Add(&Record{URL: "a", Status: "completed", FileSize: 100})
	s.Add(&Record{URL: "b", Status: "completed", FileSize: 200})
	s.Add(&Record{URL: "c", Status: "failed"})

	stats, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(300), stats.TotalBytes)

	n, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recent, err := s.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	s.Add(&Record{URL: "old", Status: "completed", CreatedAt: time.Now().Add(-48 * time.Hour)})
	s.Add(&Record{URL: "new", Status: "completed", CreatedAt: time.Now()})

	n, err := s.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].URL)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Add(&Record{URL: "persisted", Status: "completed"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "persisted", recent[0].URL)
}
