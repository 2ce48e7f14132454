package pivot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/mergepivot/internal/testutil"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// sales builds a cat/region/amt dataset from records.
func sales(t *testing.T, records ...map[string]core.Value) *core.Dataset {
	t.Helper()
	ds := core.NewDataset(
		core.Column{Name: "cat", Type: core.TypeString},
		core.Column{Name: "region", Type: core.TypeString},
		core.Column{Name: "amt", Type: core.TypeNumber},
		core.Column{Name: "year", Type: core.TypeNumber},
	)
	for _, r := range records {
		require.NoError(t, ds.AppendRecord(r))
	}
	return ds
}

func rec(cat, region string, amt any, year float64) map[string]core.Value {
	return map[string]core.Value{"cat": cat, "region": region, "amt": core.NormalizeValue(amt), "year": year}
}

func TestEvaluate_CategoryByRegion(t *testing.T) {
	ds := sales(t, rec("A", "E", 5, 2024), rec("A", "W", 7, 2024))

	res, err := New(testutil.NewTestLogger(t)).Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "region",
		ValueColumn:     "amt",
		Aggregator:      core.AggSum,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"cat", "E", "W"}, res.Dataset.ColumnNames())
	assert.Equal(t, []core.Row{{"A", 5.0, 7.0}}, res.Dataset.Rows)
	assert.Equal(t, core.TypeString, res.Dataset.Columns[0].Type)
	assert.Equal(t, core.TypeNumber, res.Dataset.Columns[1].Type)
}

func TestEvaluate_FillsMissingCellsWithZero(t *testing.T) {
	ds := sales(t,
		rec("A", "E", 5, 2024),
		rec("B", "W", 3, 2024),
		rec("C", "E", nil, 2024),
	)

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "region",
		ValueColumn:     "amt",
	})
	require.NoError(t, err)

	assert.Equal(t, []core.Row{
		{"A", 5.0, 0.0},
		{"B", 0.0, 3.0},
		{"C", 0.0, 0.0},
	}, res.Dataset.Rows)
	for _, r := range res.Dataset.Rows {
		assert.Len(t, r, 3, "output must be dense")
	}
}

func TestEvaluate_Aggregators(t *testing.T) {
	ds := sales(t,
		rec("A", "E", 4, 2024),
		rec("A", "E", 10, 2024),
		rec("A", "E", nil, 2024),
		rec("B", "E", 1, 2024),
	)

	tests := []struct {
		agg  core.Aggregator
		want []core.Row
	}{
		{core.AggSum, []core.Row{{"A", 14.0}, {"B", 1.0}}},
		{core.AggMean, []core.Row{{"A", 7.0}, {"B", 1.0}}},
		{core.AggMax, []core.Row{{"A", 10.0}, {"B", 1.0}}},
		{core.AggMin, []core.Row{{"A", 4.0}, {"B", 1.0}}},
		{core.AggCount, []core.Row{{"A", 3.0}, {"B", 1.0}}},
	}

	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			res, err := Evaluate(ds, core.PivotSpec{
				RowColumns:  []string{"cat"},
				ValueColumn: "amt",
				Aggregator:  tt.agg,
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"cat", "amt"}, res.Dataset.ColumnNames())
			assert.Equal(t, tt.want, res.Dataset.Rows)
		})
	}
}

func TestEvaluate_CountWithoutValueColumn(t *testing.T) {
	ds := sales(t, rec("A", "E", 1, 2024), rec("A", "W", 1, 2024), rec("A", "E", 1, 2024))

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "region",
		Aggregator:      core.AggCount,
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"A", 2.0, 1.0}}, res.Dataset.Rows)

	res, err = Evaluate(ds, core.PivotSpec{RowColumns: []string{"region"}, Aggregator: core.AggCount})
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "count"}, res.Dataset.ColumnNames())
	assert.Equal(t, []core.Row{{"E", 2.0}, {"W", 1.0}}, res.Dataset.Rows)
}

func TestEvaluate_FirstSeenOrder(t *testing.T) {
	ds := sales(t,
		rec("Z", "W", 1, 2024),
		rec("A", "E", 1, 2024),
		rec("Z", "N", 1, 2024),
	)

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "region",
		ValueColumn:     "amt",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"cat", "W", "E", "N"}, res.Dataset.ColumnNames())
	assert.Equal(t, "Z", res.Dataset.Rows[0][0])
	assert.Equal(t, "A", res.Dataset.Rows[1][0])
}

func TestEvaluate_Filters(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := core.NewDataset(
		core.Column{Name: "cat", Type: core.TypeString},
		core.Column{Name: "amt", Type: core.TypeNumber},
		core.Column{Name: "year", Type: core.TypeNumber},
		core.Column{Name: "day", Type: core.TypeDate},
		core.Column{Name: "paid", Type: core.TypeBool},
	)
	require.NoError(t, ds.Append(core.Row{"A", 1.0, 2024.0, day, true}))
	require.NoError(t, ds.Append(core.Row{"A", 2.0, 2023.0, day.AddDate(0, 0, 1), false}))
	require.NoError(t, ds.Append(core.Row{"B", 4.0, 2024.0, nil, true}))
	require.NoError(t, ds.Append(core.Row{"B", 8.0, nil, day, nil}))

	tests := []struct {
		name    string
		filters map[string]string
		want    []core.Row
	}{
		{"number literal", map[string]string{"year": "2024"}, []core.Row{{"A", 1.0}, {"B", 4.0}}},
		{"number literal with decimals", map[string]string{"year": "2024.0"}, []core.Row{{"A", 1.0}, {"B", 4.0}}},
		{"date literal", map[string]string{"day": "2024-03-01"}, []core.Row{{"A", 1.0}, {"B", 8.0}}},
		{"bool literal", map[string]string{"paid": "false"}, []core.Row{{"A", 2.0}}},
		{"combined", map[string]string{"year": "2024", "paid": "true", "cat": "B"}, []core.Row{{"B", 4.0}}},
		{"string is exact", map[string]string{"cat": "a"}, []core.Row{}},
		{"unparseable literal matches nothing", map[string]string{"year": "twenty"}, []core.Row{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(ds, core.PivotSpec{
				RowColumns:  []string{"cat"},
				ValueColumn: "amt",
				Filters:     tt.filters,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Dataset.Rows)
			assert.Empty(t, res.SkippedFilters)
		})
	}
}

// Every input row that contributes to a pivot satisfies all filters.
func TestEvaluate_FilterCorrectness(t *testing.T) {
	ds := sales(t,
		rec("A", "E", 1, 2023),
		rec("A", "E", 10, 2024),
		rec("B", "W", 100, 2024),
		rec("B", "E", 1000, 2023),
	)

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:  []string{"cat"},
		ValueColumn: "amt",
		Filters:     map[string]string{"year": "2024", "region": "E"},
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"A", 10.0}}, res.Dataset.Rows)
	assert.Equal(t, 4, res.InputRows)
	assert.Equal(t, 1, res.MatchedRows)
}

func TestEvaluate_SkipsUnknownFilterColumn(t *testing.T) {
	ds := sales(t, rec("A", "E", 5, 2024), rec("B", "E", 7, 2023))

	res, err := New(testutil.NewTestLogger(t)).Evaluate(ds, core.PivotSpec{
		RowColumns:  []string{"cat"},
		ValueColumn: "amt",
		Filters:     map[string]string{"zone": "north", "year": "2024"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"zone"}, res.SkippedFilters)
	assert.Equal(t, []core.Row{{"A", 5.0}}, res.Dataset.Rows)
}

func TestEvaluate_DropsRowsWithNullAxisValues(t *testing.T) {
	ds := core.NewDataset(
		core.Column{Name: "cat", Type: core.TypeString},
		core.Column{Name: "region", Type: core.TypeString},
		core.Column{Name: "amt", Type: core.TypeNumber},
	)
	require.NoError(t, ds.Append(core.Row{"A", "E", 1.0}))
	require.NoError(t, ds.Append(core.Row{nil, "E", 2.0}))
	require.NoError(t, ds.Append(core.Row{"A", nil, 4.0}))

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "region",
		ValueColumn:     "amt",
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"A", 1.0}}, res.Dataset.Rows)
}

func TestEvaluate_MultipleRowColumns(t *testing.T) {
	ds := sales(t,
		rec("A", "E", 1, 2024),
		rec("A", "W", 2, 2024),
		rec("A", "E", 3, 2023),
		rec("A", "E", 4, 2024),
	)

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:  []string{"cat", "region"},
		ValueColumn: "amt",
		Aggregator:  core.AggMax,
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"A", "E", 4.0}, {"A", "W", 2.0}}, res.Dataset.Rows)
}

func TestEvaluate_ColumnNameCollisions(t *testing.T) {
	ds := core.NewDataset(
		core.Column{Name: "E", Type: core.TypeString},
		core.Column{Name: "region", Type: core.TypeString},
		core.Column{Name: "amt", Type: core.TypeNumber},
	)
	require.NoError(t, ds.Append(core.Row{"x", "E", 1.0}))
	require.NoError(t, ds.Append(core.Row{"x", "W", 2.0}))

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"E"},
		ColumnDimension: "region",
		ValueColumn:     "amt",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "region=E", "W"}, res.Dataset.ColumnNames())
	require.NoError(t, res.Dataset.Validate())

	res, err = Evaluate(ds, core.PivotSpec{RowColumns: []string{"amt"}, ValueColumn: "amt", Aggregator: core.AggCount})
	require.NoError(t, err)
	assert.Equal(t, []string{"amt", "count_amt"}, res.Dataset.ColumnNames())
}

func TestEvaluate_NumericColumnValuesAreNamedByDisplayString(t *testing.T) {
	ds := sales(t, rec("A", "E", 1, 2023), rec("A", "E", 2, 2024))

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "year",
		ValueColumn:     "amt",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "2023", "2024"}, res.Dataset.ColumnNames())
}

func TestEvaluate_EmptyAfterFiltering(t *testing.T) {
	ds := sales(t, rec("A", "E", 1, 2023))

	res, err := Evaluate(ds, core.PivotSpec{
		RowColumns:      []string{"cat"},
		ColumnDimension: "region",
		ValueColumn:     "amt",
		Filters:         map[string]string{"year": "1999"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Dataset.Len())
	assert.Equal(t, []string{"cat"}, res.Dataset.ColumnNames())
}

func TestEvaluate_Errors(t *testing.T) {
	ds := sales(t, rec("A", "E", 1, 2024))

	tests := []struct {
		name string
		spec core.PivotSpec
		kind error
	}{
		{"no row columns", core.PivotSpec{ValueColumn: "amt"}, core.ErrInvalidConfiguration},
		{"unknown aggregator", core.PivotSpec{RowColumns: []string{"cat"}, ValueColumn: "amt", Aggregator: "median"}, core.ErrInvalidConfiguration},
		{"numeric aggregator without value", core.PivotSpec{RowColumns: []string{"cat"}, Aggregator: core.AggMean}, core.ErrInvalidConfiguration},
		{"missing row column", core.PivotSpec{RowColumns: []string{"store"}, ValueColumn: "amt"}, core.ErrInvalidConfiguration},
		{"missing dimension", core.PivotSpec{RowColumns: []string{"cat"}, ColumnDimension: "zone", ValueColumn: "amt"}, core.ErrInvalidConfiguration},
		{"missing value column", core.PivotSpec{RowColumns: []string{"cat"}, ValueColumn: "price"}, core.ErrInvalidConfiguration},
		{"duplicate row column", core.PivotSpec{RowColumns: []string{"cat", "cat"}, ValueColumn: "amt"}, core.ErrInvalidConfiguration},
		{"sum over strings", core.PivotSpec{RowColumns: []string{"cat"}, ValueColumn: "region"}, core.ErrAggregationType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(ds, tt.spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestEvaluate_CountIgnoresValueTypes(t *testing.T) {
	ds := sales(t, rec("A", "E", 1, 2024), rec("A", "W", 1, 2024))

	res, err := Evaluate(ds, core.PivotSpec{RowColumns: []string{"cat"}, ValueColumn: "region", Aggregator: core.AggCount})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"A", 2.0}}, res.Dataset.Rows)
}

func TestValidate_Normalizes(t *testing.T) {
	spec := core.PivotSpec{RowColumns: []string{"cat"}, ValueColumn: "amt", Aggregator: "  MAX"}

	got, err := Validate(spec)
	require.NoError(t, err)
	assert.Equal(t, core.AggMax, got.Aggregator)
	assert.Equal(t, core.Aggregator("  MAX"), spec.Aggregator, "input must not change")

	got, err = Validate(core.PivotSpec{RowColumns: []string{"cat"}, ValueColumn: "amt"})
	require.NoError(t, err)
	assert.Equal(t, core.AggSum, got.Aggregator)
}
