package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/mergepivot/internal/testutil"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Close())
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// running again is a no-op
	require.NoError(t, store.Migrate())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	assert.Error(t, store.Migrate())
	_, err := store.RecordMerge(ctx, MergeRun{})
	assert.Error(t, err)
	_, err = store.ListMerges(ctx, 10)
	assert.Error(t, err)
}

func TestSQLiteStore_RecordMerge(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	recorded, err := store.RecordMerge(ctx, MergeRun{
		MasterFile:   "data/master.xlsx",
		DumpFile:     "data/daily/dump_0302.xlsx",
		OutputFile:   "data/master.xlsx",
		MasterRows:   2,
		IncomingRows: 2,
		CombinedRows: 3,
		Removed:      1,
		Deduplicated: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, recorded.ID)
	assert.False(t, recorded.StartedAt.IsZero())

	runs, err := store.ListMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, recorded.ID, got.ID)
	assert.Equal(t, "data/daily/dump_0302.xlsx", got.DumpFile)
	assert.Equal(t, 3, got.CombinedRows)
	assert.Equal(t, 1, got.Removed)
	assert.True(t, got.Deduplicated)
	assert.False(t, got.DryRun)
	assert.WithinDuration(t, recorded.StartedAt, got.StartedAt, time.Millisecond)
}

func TestSQLiteStore_ListMerges(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, dump := range []string{"a.xlsx", "b.xlsx", "c.xlsx"} {
		_, err := store.RecordMerge(ctx, MergeRun{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			DumpFile:  dump,
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 0, want: []string{"c.xlsx", "b.xlsx", "a.xlsx"}},
		{name: "limited", limit: 2, want: []string{"c.xlsx", "b.xlsx"}},
		{name: "limit above count", limit: 10, want: []string{"c.xlsx", "b.xlsx", "a.xlsx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListMerges(ctx, tt.limit)
			require.NoError(t, err)
			got := make([]string, len(runs))
			for i, r := range runs {
				got[i] = r.DumpFile
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteStore_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mergepivot", "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.Migrate())
	_, err := store.RecordMerge(ctx, MergeRun{DumpFile: "dump.csv", DryRun: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate())

	runs, err := reopened.ListMerges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].DryRun)
}
