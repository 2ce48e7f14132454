// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/mergepivot/internal/cli/output"
	"github.com/leapstack-labs/mergepivot/internal/config"
	"github.com/leapstack-labs/mergepivot/internal/source"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// ProjectConfig is the config file written by SetupTestProject.
const ProjectConfig = `# mergepivot test project
master_file: data/master.xlsx
daily_data_folder: data/daily
output_file: data/merged.xlsx

deduplication:
  enabled: true
  columns: [id]

pivot_presets:
  by_region:
    index_cols: [category]
    columns: region
    values: amount
    aggfunc: sum
`

// SetupTestProject creates a temporary project with a config file, a master
// workbook and one daily dump, and returns its root.
//
// master.xlsx holds ids 1 and 2; the dump holds ids 2 (with a changed amount)
// and 3, so a deduplicated merge keeps 3 rows.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "daily"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "config.yaml"), []byte(ProjectConfig), 0o600))

	master := SalesDataset(t,
		core.Row{1.0, "A", "East", 5.0},
		core.Row{2.0, "A", "West", 7.0},
	)
	dump := SalesDataset(t,
		core.Row{2.0, "A", "West", 99.0},
		core.Row{3.0, "B", "East", 4.0},
	)
	require.NoError(t, source.WriteFile(filepath.Join(root, "data", "master.xlsx"), master, ""))

	dumpPath := filepath.Join(root, "data", "daily", "dump_0302.xlsx")
	require.NoError(t, source.WriteFile(dumpPath, dump, ""))
	mod := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(dumpPath, mod, mod))

	return root
}

// WriteWorkbook writes ds to the sheet named data of a new workbook at path.
// The sheets named in before come first and hold a single note cell.
func WriteWorkbook(t *testing.T, path string, ds *core.Dataset, data string, before ...string) {
	t.Helper()
	f := excelize.NewFile()
	sheets := append(append([]string{}, before...), data)
	require.NoError(t, f.SetSheetName("Sheet1", sheets[0]))
	for _, name := range sheets[1:] {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
	}
	for _, name := range before {
		require.NoError(t, f.SetCellValue(name, "A1", "notes"))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	require.NoError(t, source.ReplaceSheet(path, ds, config.SheetRef{Name: data}))
}

// SalesDataset builds an id, category, region, amount dataset.
func SalesDataset(t *testing.T, rows ...core.Row) *core.Dataset {
	t.Helper()
	ds := core.NewDataset(
		core.Column{Name: "id", Type: core.TypeNumber},
		core.Column{Name: "category", Type: core.TypeString},
		core.Column{Name: "region", Type: core.TypeString},
		core.Column{Name: "amount", Type: core.TypeNumber},
	)
	for _, r := range rows {
		require.NoError(t, ds.Append(r))
	}
	return ds
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
