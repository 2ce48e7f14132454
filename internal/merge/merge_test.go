package merge

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/mergepivot/internal/testutil"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

func idAmt(t *testing.T, rows ...[2]any) *core.Dataset {
	t.Helper()
	ds := core.NewDataset(
		core.Column{Name: "id", Type: core.TypeNumber},
		core.Column{Name: "amt", Type: core.TypeNumber},
	)
	for _, r := range rows {
		require.NoError(t, ds.Append(core.Row{core.NormalizeValue(r[0]), core.NormalizeValue(r[1])}))
	}
	return ds
}

var dedupOnID = core.DeduplicationRule{Enabled: true, KeyColumns: []string{"id"}}

func TestMerge_MasterWinsOnDuplicateKey(t *testing.T) {
	master := idAmt(t, [2]any{1, 10}, [2]any{2, 20})
	incoming := idAmt(t, [2]any{2, 99}, [2]any{3, 30})

	out, stats, err := New(testutil.NewTestLogger(t)).Merge(master, incoming, dedupOnID)
	require.NoError(t, err)

	assert.Equal(t, []core.Row{{1.0, 10.0}, {2.0, 20.0}, {3.0, 30.0}}, out.Rows)
	assert.Equal(t, Stats{MasterRows: 2, IncomingRows: 2, CombinedRows: 3, Removed: 1, Deduplicated: true}, stats)
}

func TestMerge_DisabledRuleConcatenates(t *testing.T) {
	master := idAmt(t, [2]any{1, 10}, [2]any{2, 20})
	incoming := idAmt(t, [2]any{2, 99}, [2]any{1, 10}, [2]any{3, 30})

	rules := map[string]core.DeduplicationRule{
		"disabled":         {Enabled: false, KeyColumns: []string{"id"}},
		"enabled, no keys": {Enabled: true},
		"zero value":       {},
	}

	for name, rule := range rules {
		t.Run(name, func(t *testing.T) {
			out, stats, err := New(nil).Merge(master, incoming, rule)
			require.NoError(t, err)
			require.Equal(t, master.Len()+incoming.Len(), out.Len())
			assert.Equal(t, append(append([]core.Row{}, master.Rows...), incoming.Rows...), out.Rows)
			assert.False(t, stats.Deduplicated)
			assert.Zero(t, stats.Removed)
		})
	}
}

func TestMerge_EarlierIncomingWinsOverLaterIncoming(t *testing.T) {
	master := idAmt(t, [2]any{1, 10})
	incoming := idAmt(t, [2]any{5, 50}, [2]any{5, 51}, [2]any{1, 11}, [2]any{5, 52})

	out, err := Merge(master, incoming, dedupOnID)
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{1.0, 10.0}, {5.0, 50.0}}, out.Rows)
}

func TestMerge_DuplicatesWithinMasterAreRemoved(t *testing.T) {
	master := idAmt(t, [2]any{1, 10}, [2]any{1, 12})
	out, err := Merge(master, idAmt(t), dedupOnID)
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{1.0, 10.0}}, out.Rows)
}

func TestMerge_Idempotent(t *testing.T) {
	master := idAmt(t, [2]any{1, 10}, [2]any{2, 20}, [2]any{2, 21})
	incoming := idAmt(t, [2]any{2, 99}, [2]any{3, 30}, [2]any{4, nil}, [2]any{3, 31})

	once, err := Merge(master, incoming, dedupOnID)
	require.NoError(t, err)
	twice, err := Merge(once, incoming, dedupOnID)
	require.NoError(t, err)

	assert.Equal(t, once.Rows, twice.Rows)
}

func TestMerge_NullKeysMatchEachOther(t *testing.T) {
	master := idAmt(t, [2]any{nil, 1})
	incoming := idAmt(t, [2]any{nil, 2}, [2]any{0, 3})

	out, err := Merge(master, incoming, dedupOnID)
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{nil, 1.0}, {0.0, 3.0}}, out.Rows)
}

func TestMerge_CompositeKey(t *testing.T) {
	cols := []core.Column{
		{Name: "store", Type: core.TypeString},
		{Name: "day", Type: core.TypeString},
		{Name: "amt", Type: core.TypeNumber},
	}
	master := core.NewDataset(cols...)
	require.NoError(t, master.Append(core.Row{"A", "mon", 1.0}))
	require.NoError(t, master.Append(core.Row{"A", "tue", 2.0}))
	incoming := core.NewDataset(cols...)
	require.NoError(t, incoming.Append(core.Row{"A", "tue", 9.0}))
	require.NoError(t, incoming.Append(core.Row{"B", "tue", 3.0}))

	rule := core.DeduplicationRule{Enabled: true, KeyColumns: []string{"store", "day"}}
	out, err := Merge(master, incoming, rule)
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"A", "mon", 1.0}, {"A", "tue", 2.0}, {"B", "tue", 3.0}}, out.Rows)
}

func TestMerge_AlignsIncomingColumnOrder(t *testing.T) {
	master := idAmt(t, [2]any{1, 10})
	incoming := core.NewDataset(
		core.Column{Name: "amt", Type: core.TypeNumber},
		core.Column{Name: "id", Type: core.TypeNumber},
	)
	require.NoError(t, incoming.Append(core.Row{30.0, 3.0}))

	out, err := Merge(master, incoming, dedupOnID)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amt"}, out.ColumnNames())
	assert.Equal(t, []core.Row{{1.0, 10.0}, {3.0, 30.0}}, out.Rows)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	master := idAmt(t, [2]any{1, 10})
	incoming := idAmt(t, [2]any{2, 20})

	out, err := Merge(master, incoming, dedupOnID)
	require.NoError(t, err)
	out.Rows[0][1] = 999.0

	assert.Equal(t, 10.0, master.Rows[0][1])
	assert.Equal(t, 1, master.Len())
	assert.Equal(t, 1, incoming.Len())
}

func TestMerge_Errors(t *testing.T) {
	master := idAmt(t, [2]any{1, 10})

	t.Run("column set mismatch", func(t *testing.T) {
		other := core.NewDataset(core.Column{Name: "id"}, core.Column{Name: "amount"})
		_, err := Merge(master, other, dedupOnID)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrSchemaMismatch)
		assert.Contains(t, err.Error(), "amt")
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("extra column", func(t *testing.T) {
		other := core.NewDataset(core.Column{Name: "id"}, core.Column{Name: "amt"}, core.Column{Name: "x"})
		_, err := Merge(master, other, core.DeduplicationRule{})
		assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	})

	t.Run("key column absent", func(t *testing.T) {
		rule := core.DeduplicationRule{Enabled: true, KeyColumns: []string{"id", "invoice"}}
		_, err := Merge(master, idAmt(t), rule)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		assert.Contains(t, err.Error(), "invoice")
	})

	t.Run("absent key column ignored when disabled", func(t *testing.T) {
		rule := core.DeduplicationRule{Enabled: false, KeyColumns: []string{"invoice"}}
		_, err := Merge(master, idAmt(t), rule)
		assert.NoError(t, err)
	})

	t.Run("nil dataset", func(t *testing.T) {
		_, err := Merge(nil, master, dedupOnID)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("ragged rows", func(t *testing.T) {
		bad := &core.Dataset{Columns: master.Columns, Rows: []core.Row{{1.0}}}
		_, err := Merge(master, bad, dedupOnID)
		assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	})
}

func TestMerge_WarnsOnColumnTypeDrift(t *testing.T) {
	master := idAmt(t, [2]any{1, 10})

	tests := []struct {
		name     string
		incoming *core.Dataset
		wantWarn bool
	}{
		{
			name:     "same types",
			incoming: idAmt(t, [2]any{2, 20}),
		},
		{
			name: "key column read as text",
			incoming: &core.Dataset{
				Columns: []core.Column{{Name: "id", Type: core.TypeString}, {Name: "amt", Type: core.TypeNumber}},
				Rows:    []core.Row{{"1", 10.0}},
			},
			wantWarn: true,
		},
		{
			name: "all-null column carries no type",
			incoming: &core.Dataset{
				Columns: []core.Column{{Name: "id", Type: core.TypeNumber}, {Name: "amt", Type: core.TypeString}},
				Rows:    []core.Row{{2.0, nil}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewLogRecorder()

			out, _, err := New(logger).Merge(master, tt.incoming, dedupOnID)
			require.NoError(t, err)

			warnings := logs.Messages(slog.LevelWarn)
			if !tt.wantWarn {
				assert.Empty(t, warnings)
				return
			}
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0], "column types differ")
			assert.Equal(t, 2, out.Len(), "a number key never matches its text form")
		})
	}
}
