package commandlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-dial-go/internal/db"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func strPtr(s string) *string { return &s }

func TestRepository_InsertAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	started := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)
	statusCode := 500

	stored, err := repo.Insert(Entry{
		StartedAt:  started,
		Host:       "10.0.0.5",
		Service:    "RenderingControl",
		Action:     "SetVolume",
		DurationMs: 14,
		Succeeded:  false,
		Error:      strPtr("http 500"),
		StatusCode: &statusCode,
		FaultCode:  strPtr("402"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.EntryID)

	entry, err := repo.Get(stored.EntryID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.True(t, started.Equal(entry.StartedAt))
	require.Equal(t, "10.0.0.5", entry.Host)
	require.Equal(t, "SetVolume", entry.Action)
	require.Equal(t, int64(14), entry.DurationMs)
	require.False(t, entry.Succeeded)
	require.Equal(t, "http 500", *entry.Error)
	require.Equal(t, 500, *entry.StatusCode)
	require.Equal(t, "402", *entry.FaultCode)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	entry, err := repo.Get("missing")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestRepository_QueryFiltersAndOrder(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inserts := []Entry{
		{StartedAt: base, Host: "10.0.0.5", Action: "GetVolume", Succeeded: true},
		{StartedAt: base.Add(time.Second), Host: "10.0.0.6", Action: "GetVolume", Succeeded: true},
		{StartedAt: base.Add(2 * time.Second), Host: "10.0.0.5", Action: "SetVolume", Succeeded: false, Error: strPtr("timeout")},
		{StartedAt: base.Add(3 * time.Second), Host: "10.0.0.5", Action: "GetMute", Succeeded: true},
	}
	for _, entry := range inserts {
		entry.Service = "RenderingControl"
		_, err := repo.Insert(entry)
		require.NoError(t, err)
	}

	all, err := repo.Query(QueryFilters{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "GetMute", all[0].Action)
	require.Equal(t, "GetVolume", all[3].Action)

	host := "10.0.0.5"
	byHost, err := repo.Query(QueryFilters{Host: &host})
	require.NoError(t, err)
	require.Len(t, byHost, 3)

	failed, err := repo.Query(QueryFilters{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "SetVolume", failed[0].Action)

	limited, err := repo.Query(QueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestRepository_QueryEmpty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	entries, err := repo.Query(QueryFilters{})
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestRepository_Prune(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now().UTC()

	_, err := repo.Insert(Entry{StartedAt: now.Add(-100 * time.Hour), Host: "10.0.0.5", Service: "RenderingControl", Action: "GetVolume", Succeeded: true})
	require.NoError(t, err)
	recent, err := repo.Insert(Entry{StartedAt: now.Add(-time.Hour), Host: "10.0.0.5", Service: "RenderingControl", Action: "GetVolume", Succeeded: true})
	require.NoError(t, err)

	deleted, err := repo.Prune(now.Add(-72 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	entries, err := repo.Query(QueryFilters{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, recent.EntryID, entries[0].EntryID)
}
