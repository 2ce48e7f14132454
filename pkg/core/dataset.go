package core

import (
	"fmt"
	"sort"
)

// Column is a named, typed dataset column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Row holds one value per dataset column, in column order.
type Row []Value

// Dataset is an in-memory table with ordered named columns and ordered rows.
// Every row carries exactly one value (possibly nil) per column.
type Dataset struct {
	Columns []Column
	Rows    []Row
}

// NewDataset creates an empty dataset with the given columns.
func NewDataset(columns ...Column) *Dataset {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Dataset{Columns: cols}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Index returns the position of the named column, or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the dataset declares the named column.
func (d *Dataset) Has(name string) bool {
	return d.Index(name) >= 0
}

// Column returns the named column definition.
func (d *Dataset) Column(name string) (Column, bool) {
	if i := d.Index(name); i >= 0 {
		return d.Columns[i], true
	}
	return Column{}, false
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Missing returns the names not declared by the dataset, in input order.
func (d *Dataset) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !d.Has(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Value returns the cell at row i for the named column.
func (d *Dataset) Value(i int, name string) (Value, bool) {
	idx := d.Index(name)
	if idx < 0 || i < 0 || i >= len(d.Rows) {
		return nil, false
	}
	return d.Rows[i][idx], true
}

// Append adds a row after checking its width.
func (d *Dataset) Append(row Row) error {
	if len(row) != len(d.Columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(row), len(d.Columns))
	}
	d.Rows = append(d.Rows, row)
	return nil
}

// AppendRecord adds a row given as a column→value mapping.
// Columns absent from the record are stored as nil; unknown keys are rejected.
func (d *Dataset) AppendRecord(rec map[string]Value) error {
	row := make(Row, len(d.Columns))
	seen := 0
	for i, c := range d.Columns {
		if v, ok := rec[c.Name]; ok {
			row[i] = v
			seen++
		}
	}
	if seen != len(rec) {
		var unknown []string
		for k := range rec {
			if !d.Has(k) {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		return fmt.Errorf("record has unknown columns %v", unknown)
	}
	d.Rows = append(d.Rows, row)
	return nil
}

// Record returns row i as a column→value mapping.
func (d *Dataset) Record(i int) map[string]Value {
	rec := make(map[string]Value, len(d.Columns))
	for j, c := range d.Columns {
		rec[c.Name] = d.Rows[i][j]
	}
	return rec
}

// Clone returns a deep copy of the column list and row slices.
// Cell values are immutable and shared.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset(d.Columns...)
	out.Rows = make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		cp := make(Row, len(r))
		copy(cp, r)
		out.Rows[i] = cp
	}
	return out
}

// Validate checks column name uniqueness and row widths.
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" {
			return fmt.Errorf("dataset has a column with an empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	for i, r := range d.Rows {
		if len(r) != len(d.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(r), len(d.Columns))
		}
	}
	return nil
}

// SameColumnSet reports whether two datasets declare the same column names,
// ignoring order.
func SameColumnSet(a, b *Dataset) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for _, c := range a.Columns {
		if !b.Has(c.Name) {
			return false
		}
	}
	return true
}
