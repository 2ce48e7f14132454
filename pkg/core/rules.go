package core

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"unicode"
)

// DeduplicationRule says which columns identify a record when merging.
type DeduplicationRule struct {
	Enabled    bool     `koanf:"enabled" yaml:"enabled"`
	KeyColumns []string `koanf:"columns" yaml:"columns"`
}

// Active reports whether the rule should remove duplicates.
func (r DeduplicationRule) Active() bool {
	return r.Enabled && len(r.KeyColumns) > 0
}

// Aggregator names a pivot reduction.
type Aggregator string

// Supported aggregators.
const (
	AggSum   Aggregator = "sum"
	AggCount Aggregator = "count"
	AggMean  Aggregator = "mean"
	AggMax   Aggregator = "max"
	AggMin   Aggregator = "min"
)

// DefaultAggregator is used when a spec leaves the aggregator blank.
const DefaultAggregator = AggSum

// Aggregators lists the supported aggregators in display order.
var Aggregators = []Aggregator{AggSum, AggCount, AggMean, AggMax, AggMin}

// ParseAggregator normalizes user input into an Aggregator.
// Blank input yields DefaultAggregator.
func ParseAggregator(s string) (Aggregator, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultAggregator, nil
	}
	a := Aggregator(s)
	if !a.Valid() {
		return "", Errorf(KindInvalidConfiguration, "aggregator", "unsupported aggregator %q (supported: %s)", s, joinAggregators())
	}
	return a, nil
}

// Valid reports whether a is a supported aggregator.
func (a Aggregator) Valid() bool {
	return slices.Contains(Aggregators, a)
}

// Numeric reports whether the aggregator reduces numeric values.
func (a Aggregator) Numeric() bool {
	return a.Valid() && a != AggCount
}

func joinAggregators() string {
	names := make([]string, len(Aggregators))
	for i, a := range Aggregators {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// PivotSpec is a declarative pivot request. Column names are resolved lazily
// against whichever dataset the spec is evaluated on.
type PivotSpec struct {
	// RowColumns form the row axis; at least one is required.
	RowColumns []string `koanf:"index_cols" yaml:"index_cols"`

	// ColumnDimension optionally spreads one column's values across the output columns.
	ColumnDimension string `koanf:"columns" yaml:"columns,omitempty"`

	// ValueColumn is the column reduced by numeric aggregators.
	ValueColumn string `koanf:"values" yaml:"values,omitempty"`

	// Aggregator is the reduction applied per cell.
	Aggregator Aggregator `koanf:"aggfunc" yaml:"aggfunc"`

	// Filters keep only rows whose column equals the literal.
	Filters map[string]string `koanf:"filters" yaml:"filters,omitempty"`
}

// Clone returns a deep copy of the spec.
func (s PivotSpec) Clone() PivotSpec {
	out := s
	out.RowColumns = slices.Clone(s.RowColumns)
	if s.Filters != nil {
		out.Filters = maps.Clone(s.Filters)
	}
	return out
}

// FilterColumns returns the filter column names in sorted order.
func (s PivotSpec) FilterColumns() []string {
	cols := make([]string, 0, len(s.Filters))
	for c := range s.Filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// ReferencedColumns returns every column the spec names, without duplicates,
// in the order rows, column dimension, value, filters.
func (s PivotSpec) ReferencedColumns() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range s.RowColumns {
		add(c)
	}
	add(s.ColumnDimension)
	add(s.ValueColumn)
	for _, c := range s.FilterColumns() {
		add(c)
	}
	return out
}

// String renders the spec in a compact single-line form.
func (s PivotSpec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows=%s", strings.Join(s.RowColumns, ","))
	if s.ColumnDimension != "" {
		fmt.Fprintf(&b, " columns=%s", s.ColumnDimension)
	}
	if s.ValueColumn != "" {
		fmt.Fprintf(&b, " values=%s", s.ValueColumn)
	}
	agg := s.Aggregator
	if agg == "" {
		agg = DefaultAggregator
	}
	fmt.Fprintf(&b, " agg=%s", agg)
	for _, c := range s.FilterColumns() {
		fmt.Fprintf(&b, " %s=%s", c, s.Filters[c])
	}
	return b.String()
}

// ValidatePresetName checks that a preset name is usable as a config key:
// non-empty, without whitespace and without the "." key delimiter.
func ValidatePresetName(name string) error {
	switch {
	case name == "":
		return Errorf(KindInvalidConfiguration, "preset", "preset name must not be empty")
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return Errorf(KindInvalidConfiguration, "preset", "preset name %q must not contain whitespace", name)
	case strings.Contains(name, "."):
		return Errorf(KindInvalidConfiguration, "preset", "preset name %q must not contain '.'", name)
	}
	return nil
}
