// Package pivot turns a dataset into a dense cross-tabulation described by a
// core.PivotSpec.
//
// Evaluation runs in four stages: filter, group, aggregate and fill. Row
// groups and column-axis values keep the order in which they first appear
// in the filtered rows, and every (group, value) cell without data is 0.
package pivot

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

const op = "pivot"

// Result is the outcome of a pivot evaluation.
type Result struct {
	// Dataset holds the row-axis columns followed by one number column per
	// column-axis value, or a single aggregate column.
	Dataset *core.Dataset

	// Spec is the normalized spec that was evaluated.
	Spec core.PivotSpec

	// SkippedFilters lists filter columns absent from the input, sorted.
	SkippedFilters []string

	// InputRows and MatchedRows count rows before and after filtering.
	InputRows   int
	MatchedRows int
}

// Engine evaluates pivot specs.
type Engine struct {
	logger *slog.Logger
}

// New creates an Engine. A nil logger discards output.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// Evaluate runs spec against ds without logging.
func Evaluate(ds *core.Dataset, spec core.PivotSpec) (*Result, error) {
	return New(nil).Evaluate(ds, spec)
}

// Validate checks the dataset-independent parts of a spec and returns a
// normalized copy with the aggregator filled in.
func Validate(spec core.PivotSpec) (core.PivotSpec, error) {
	out := spec.Clone()

	agg, err := core.ParseAggregator(string(spec.Aggregator))
	if err != nil {
		return core.PivotSpec{}, err
	}
	out.Aggregator = agg

	if len(out.RowColumns) == 0 {
		return core.PivotSpec{}, core.Errorf(core.KindInvalidConfiguration, op, "at least one row column is required")
	}
	seen := make(map[string]bool, len(out.RowColumns))
	for _, c := range out.RowColumns {
		if strings.TrimSpace(c) == "" {
			return core.PivotSpec{}, core.Errorf(core.KindInvalidConfiguration, op, "row column names must not be blank")
		}
		if seen[c] {
			return core.PivotSpec{}, core.Errorf(core.KindInvalidConfiguration, op, "row column %q is listed twice", c)
		}
		seen[c] = true
	}
	if agg.Numeric() && out.ValueColumn == "" {
		return core.PivotSpec{}, core.Errorf(core.KindInvalidConfiguration, op, "aggregator %q requires a value column", agg)
	}
	for c := range out.Filters {
		if strings.TrimSpace(c) == "" {
			return core.PivotSpec{}, core.Errorf(core.KindInvalidConfiguration, op, "filter column names must not be blank")
		}
	}
	return out, nil
}

// CheckColumns reports the row, column-dimension and value columns that ds
// does not declare. Filter columns are not checked.
func CheckColumns(ds *core.Dataset, spec core.PivotSpec) error {
	required := append([]string{}, spec.RowColumns...)
	if spec.ColumnDimension != "" {
		required = append(required, spec.ColumnDimension)
	}
	if spec.ValueColumn != "" {
		required = append(required, spec.ValueColumn)
	}
	if missing := ds.Missing(required...); len(missing) > 0 {
		return core.Errorf(core.KindInvalidConfiguration, op,
			"columns not found in dataset: %s (available: %s)",
			strings.Join(missing, ", "), strings.Join(ds.ColumnNames(), ", "))
	}
	return nil
}

// Evaluate filters ds, groups it along the spec's axes and aggregates each cell.
func (e *Engine) Evaluate(ds *core.Dataset, spec core.PivotSpec) (*Result, error) {
	if ds == nil {
		return nil, core.Errorf(core.KindInvalidConfiguration, op, "dataset is required")
	}
	if err := ds.Validate(); err != nil {
		return nil, core.Wrap(core.KindSchemaMismatch, op, err, "dataset is malformed")
	}
	spec, err := Validate(spec)
	if err != nil {
		return nil, err
	}
	if err := CheckColumns(ds, spec); err != nil {
		return nil, err
	}

	rows, skipped := e.filter(ds, spec)

	t, err := group(ds, spec, rows)
	if err != nil {
		return nil, err
	}
	out := t.dataset(ds, spec)

	e.logger.Debug("pivot evaluated",
		slog.String("spec", spec.String()),
		slog.Int("input_rows", ds.Len()),
		slog.Int("matched_rows", len(rows)),
		slog.Int("groups", len(t.groups)),
		slog.Int("column_values", len(t.colVals)))

	return &Result{
		Dataset:        out,
		Spec:           spec,
		SkippedFilters: skipped,
		InputRows:      ds.Len(),
		MatchedRows:    len(rows),
	}, nil
}

// filter returns the indexes of rows passing every applicable filter, plus
// the filter columns that had to be skipped.
func (e *Engine) filter(ds *core.Dataset, spec core.PivotSpec) ([]int, []string) {
	var (
		skipped  []string
		matchers []func(core.Row) bool
	)
	for _, col := range spec.FilterColumns() {
		idx := ds.Index(col)
		if idx < 0 {
			e.logger.Warn("filter column not found, skipping",
				slog.String("column", col),
				slog.String("value", spec.Filters[col]))
			skipped = append(skipped, col)
			continue
		}
		m := newMatcher(spec.Filters[col])
		matchers = append(matchers, func(r core.Row) bool { return m.match(r[idx]) })
	}

	rows := make([]int, 0, ds.Len())
next:
	for i, r := range ds.Rows {
		for _, m := range matchers {
			if !m(r) {
				continue next
			}
		}
		rows = append(rows, i)
	}
	return rows, skipped
}

// matcher compares cells against a literal interpreted in each cell's type.
type matcher struct {
	literal string
	parsed  map[core.ColumnType]core.Value
}

func newMatcher(literal string) *matcher {
	return &matcher{literal: literal, parsed: make(map[core.ColumnType]core.Value)}
}

func (m *matcher) match(cell core.Value) bool {
	typ, ok := core.TypeOf(cell)
	if !ok {
		return false
	}
	want, cached := m.parsed[typ]
	if !cached {
		if v, ok := core.ParseLiteral(typ, m.literal); ok {
			want = v
		}
		m.parsed[typ] = want
	}
	if want == nil {
		return false
	}
	return core.ValuesEqual(cell, want)
}

type cellKey struct {
	group, col int
}

// table is the grouped intermediate form of a pivot.
type table struct {
	agg     core.Aggregator
	groups  [][]core.Value
	colVals []core.Value
	cells   map[cellKey]*accumulator
}

func group(ds *core.Dataset, spec core.PivotSpec, rows []int) (*table, error) {
	rowIdx := make([]int, len(spec.RowColumns))
	for i, c := range spec.RowColumns {
		rowIdx[i] = ds.Index(c)
	}
	dimIdx, valIdx := -1, -1
	if spec.ColumnDimension != "" {
		dimIdx = ds.Index(spec.ColumnDimension)
	}
	if spec.ValueColumn != "" {
		valIdx = ds.Index(spec.ValueColumn)
	}

	t := &table{agg: spec.Aggregator, cells: make(map[cellKey]*accumulator)}
	groupPos := make(map[string]int)
	colPos := make(map[string]int)

next:
	for _, ri := range rows {
		r := ds.Rows[ri]

		key := make([]core.Value, len(rowIdx))
		for i, j := range rowIdx {
			if r[j] == nil {
				continue next
			}
			key[i] = r[j]
		}
		ck := cellKey{}
		if dimIdx >= 0 {
			if r[dimIdx] == nil {
				continue
			}
			enc := core.EncodeKey([]core.Value{r[dimIdx]})
			c, ok := colPos[enc]
			if !ok {
				c = len(t.colVals)
				colPos[enc] = c
				t.colVals = append(t.colVals, r[dimIdx])
			}
			ck.col = c
		}

		enc := core.EncodeKey(key)
		g, ok := groupPos[enc]
		if !ok {
			g = len(t.groups)
			groupPos[enc] = g
			t.groups = append(t.groups, key)
		}
		ck.group = g

		acc := t.cells[ck]
		if acc == nil {
			acc = &accumulator{}
			t.cells[ck] = acc
		}
		var v core.Value
		if valIdx >= 0 {
			v = r[valIdx]
		}
		if err := acc.add(spec.Aggregator, v); err != nil {
			return nil, core.Wrap(core.KindAggregationType, op, err,
				"cannot %s column %q at row %d", spec.Aggregator, spec.ValueColumn, ri)
		}
	}
	return t, nil
}

// dataset renders the table densely.
func (t *table) dataset(src *core.Dataset, spec core.PivotSpec) *core.Dataset {
	cols := make([]core.Column, 0, len(spec.RowColumns)+max(len(t.colVals), 1))
	taken := make(map[string]bool)
	for _, name := range spec.RowColumns {
		c, _ := src.Column(name)
		cols = append(cols, c)
		taken[name] = true
	}

	width := 1
	if spec.ColumnDimension != "" {
		width = len(t.colVals)
		for _, v := range t.colVals {
			name := valueColumnName(spec.ColumnDimension, core.FormatValue(v), taken)
			cols = append(cols, core.Column{Name: name, Type: core.TypeNumber})
		}
	} else {
		name := spec.ValueColumn
		if name == "" {
			name = string(core.AggCount)
		}
		if taken[name] {
			name = string(spec.Aggregator) + "_" + name
		}
		cols = append(cols, core.Column{Name: name, Type: core.TypeNumber})
	}

	out := core.NewDataset(cols...)
	out.Rows = make([]core.Row, len(t.groups))
	for g, key := range t.groups {
		row := make(core.Row, 0, len(cols))
		row = append(row, key...)
		for c := 0; c < width; c++ {
			val := 0.0
			if acc := t.cells[cellKey{group: g, col: c}]; acc != nil {
				val = acc.result(t.agg)
			}
			row = append(row, val)
		}
		out.Rows[g] = row
	}
	return out
}

// valueColumnName names a column-axis output column, falling back to
// "<dimension>=<value>" when the plain value is blank or already taken.
func valueColumnName(dimension, value string, taken map[string]bool) string {
	name := value
	if name == "" || taken[name] {
		name = dimension + "=" + value
	}
	base := name
	for n := 2; taken[name]; n++ {
		name = base + "#" + strconv.Itoa(n)
	}
	taken[name] = true
	return name
}

// accumulator reduces the values of one pivot cell.
type accumulator struct {
	rows     int
	n        int
	sum      float64
	min, max float64
}

func (a *accumulator) add(agg core.Aggregator, v core.Value) error {
	a.rows++
	if !agg.Numeric() || v == nil {
		return nil
	}
	f, ok := core.AsNumber(v)
	if !ok {
		return &valueTypeError{value: v}
	}
	if math.IsNaN(f) {
		return nil
	}
	if a.n == 0 {
		a.min, a.max = f, f
	} else {
		a.min = math.Min(a.min, f)
		a.max = math.Max(a.max, f)
	}
	a.n++
	a.sum += f
	return nil
}

func (a *accumulator) result(agg core.Aggregator) float64 {
	if agg == core.AggCount {
		return float64(a.rows)
	}
	if a.n == 0 {
		return 0
	}
	switch agg {
	case core.AggMean:
		return a.sum / float64(a.n)
	case core.AggMax:
		return a.max
	case core.AggMin:
		return a.min
	default:
		return a.sum
	}
}

type valueTypeError struct {
	value core.Value
}

func (e *valueTypeError) Error() string {
	typ, ok := core.TypeOf(e.value)
	if !ok {
		typ = "unknown"
	}
	return fmt.Sprintf("value %q is a %s, not a number", core.FormatValue(e.value), typ)
}
