package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_CreatesCommandLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dial.db")

	pair, err := Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })

	columns, err := tableColumns(pair.Writer(), "command_log")
	require.NoError(t, err)
	for _, name := range []string{"entry_id", "started_at", "host", "service", "action", "duration_ms", "succeeded", "error", "fault_code", "status_code"} {
		require.True(t, columns[name], "missing column %s", name)
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dial.db")

	first, err := Init(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Init(dbPath)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInit_RequiresPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}
