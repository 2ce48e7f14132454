// Package merge appends a newly arrived dataset to the master dataset and
// removes duplicate records according to a DeduplicationRule.
//
// Rows are concatenated master first, incoming second, each in its original
// order. When deduplication is active the first occurrence of every key wins,
// so a master row always survives over an incoming row with the same key.
package merge

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

const op = "merge"

// Stats describes a merge. It is informational only.
type Stats struct {
	MasterRows   int  `json:"master_rows"`
	IncomingRows int  `json:"incoming_rows"`
	CombinedRows int  `json:"combined_rows"`
	Removed      int  `json:"removed"`
	Deduplicated bool `json:"deduplicated"`
}

// Merger merges datasets and logs what it did.
type Merger struct {
	logger *slog.Logger
}

// New creates a Merger. A nil logger discards output.
func New(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Merger{logger: logger}
}

// Merge is a convenience wrapper around a Merger without logging.
func Merge(master, incoming *core.Dataset, rule core.DeduplicationRule) (*core.Dataset, error) {
	out, _, err := New(nil).Merge(master, incoming, rule)
	return out, err
}

// Merge concatenates master and incoming and applies the rule.
// Neither input is modified. The result uses master's column order.
func (m *Merger) Merge(master, incoming *core.Dataset, rule core.DeduplicationRule) (*core.Dataset, Stats, error) {
	if master == nil || incoming == nil {
		return nil, Stats{}, core.Errorf(core.KindInvalidConfiguration, op, "master and incoming datasets are required")
	}
	if err := checkSchema(master, incoming); err != nil {
		return nil, Stats{}, err
	}
	if drift, keyDrift := typeDrift(master, incoming, rule.KeyColumns); len(drift) > 0 {
		m.logger.Warn("column types differ between master and incoming; values are kept as read",
			slog.String("columns", strings.Join(drift, ", ")),
			slog.Bool("key_column_affected", rule.Active() && keyDrift))
	}

	var keyIdx []int
	if rule.Active() {
		idx, err := keyIndexes(master, rule.KeyColumns)
		if err != nil {
			return nil, Stats{}, err
		}
		keyIdx = idx
	}

	// Map each master column to its position in incoming.
	remap := make([]int, len(master.Columns))
	for i, c := range master.Columns {
		remap[i] = incoming.Index(c.Name)
	}

	stats := Stats{
		MasterRows:   master.Len(),
		IncomingRows: incoming.Len(),
		Deduplicated: keyIdx != nil,
	}

	out := core.NewDataset(master.Columns...)
	out.Rows = make([]core.Row, 0, master.Len()+incoming.Len())

	var seen map[string]struct{}
	if keyIdx != nil {
		seen = make(map[string]struct{}, master.Len()+incoming.Len())
	}
	keep := func(row core.Row) bool {
		if seen == nil {
			return true
		}
		key := projectKey(row, keyIdx)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	}

	for _, r := range master.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, cloneRow(r))
		}
	}
	for _, r := range incoming.Rows {
		aligned := make(core.Row, len(remap))
		for i, j := range remap {
			aligned[i] = r[j]
		}
		if keep(aligned) {
			out.Rows = append(out.Rows, aligned)
		}
	}

	stats.CombinedRows = out.Len()
	stats.Removed = stats.MasterRows + stats.IncomingRows - stats.CombinedRows

	if stats.Deduplicated {
		m.logger.Info("deduplication applied",
			slog.Int("combined_rows", stats.CombinedRows),
			slog.Int("removed", stats.Removed),
			slog.String("key_columns", strings.Join(rule.KeyColumns, ",")))
	} else {
		m.logger.Info("deduplication skipped (disabled or no columns specified)",
			slog.Int("combined_rows", stats.CombinedRows))
	}

	return out, stats, nil
}

// checkSchema requires identical column sets and well-formed rows.
func checkSchema(master, incoming *core.Dataset) error {
	if err := master.Validate(); err != nil {
		return core.Wrap(core.KindSchemaMismatch, op, err, "master dataset is malformed")
	}
	if err := incoming.Validate(); err != nil {
		return core.Wrap(core.KindSchemaMismatch, op, err, "incoming dataset is malformed")
	}
	if core.SameColumnSet(master, incoming) {
		return nil
	}
	missing := incoming.Missing(master.ColumnNames()...)
	extra := master.Missing(incoming.ColumnNames()...)
	return core.Errorf(core.KindSchemaMismatch, op,
		"column sets differ (missing from incoming: %s; not in master: %s)",
		listOrNone(missing), listOrNone(extra))
}

// typeDrift returns the columns whose declared type differs between master
// and incoming, formatted as "name (master vs incoming)", and whether any of
// them is a deduplication key. Incoming columns holding only nulls carry no
// type information and are skipped.
func typeDrift(master, incoming *core.Dataset, keys []string) ([]string, bool) {
	var (
		out      []string
		keyDrift bool
	)
	for _, c := range master.Columns {
		j := incoming.Index(c.Name)
		other := incoming.Columns[j].Type
		if c.Type == "" || other == "" || c.Type == other || allNull(incoming, j) {
			continue
		}
		out = append(out, fmt.Sprintf("%s (%s vs %s)", c.Name, c.Type, other))
		if slices.Contains(keys, c.Name) {
			keyDrift = true
		}
	}
	return out, keyDrift
}

func allNull(ds *core.Dataset, col int) bool {
	for _, r := range ds.Rows {
		if r[col] != nil {
			return false
		}
	}
	return true
}

// keyIndexes resolves key column names against the master column order.
func keyIndexes(ds *core.Dataset, keys []string) ([]int, error) {
	if missing := ds.Missing(keys...); len(missing) > 0 {
		return nil, core.Errorf(core.KindInvalidConfiguration, op,
			"deduplication key columns not found in datasets: %s", strings.Join(missing, ", "))
	}
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i] = ds.Index(k)
	}
	return idx, nil
}

func projectKey(row core.Row, idx []int) string {
	vals := make([]core.Value, len(idx))
	for i, j := range idx {
		vals[i] = row[j]
	}
	return core.EncodeKey(vals)
}

func cloneRow(r core.Row) core.Row {
	cp := make(core.Row, len(r))
	copy(cp, r)
	return cp
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return fmt.Sprintf("[%s]", strings.Join(names, ", "))
}
