package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

func sampleDataset(t *testing.T) *core.Dataset {
	t.Helper()
	ds := core.NewDataset(
		core.Column{Name: "category", Type: core.TypeString},
		core.Column{Name: "day", Type: core.TypeDate},
		core.Column{Name: "E", Type: core.TypeNumber},
	)
	require.NoError(t, ds.Append(core.Row{"A", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 5.0}))
	require.NoError(t, ds.Append(core.Row{"B", nil, 7.5}))
	return ds
}

func TestMode(t *testing.T) {
	tests := map[string]OutputMode{
		"":         ModeAuto,
		"auto":     ModeAuto,
		"table":    ModeTable,
		"text":     ModeTable,
		"markdown": ModeMarkdown,
		"md":       ModeMarkdown,
		"csv":      ModeCSV,
		"json":     ModeJSON,
		"yaml":     ModeAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, Mode(in), in)
	}
}

func TestEffectiveMode(t *testing.T) {
	var out, errOut bytes.Buffer

	assert.Equal(t, ModeTable, NewRendererWithTTY(&out, &errOut, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &errOut, true, ModeJSON).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRenderer(&out, &errOut, ModeAuto).EffectiveMode(), "buffers are not terminals")
}

func TestRenderer_Dataset(t *testing.T) {
	tests := []struct {
		name    string
		mode    OutputMode
		wantOut []string
	}{
		{
			name:    "table",
			mode:    ModeTable,
			wantOut: []string{"category", "2024-03-01", "7.5", "NULL", "(2 rows)"},
		},
		{
			name:    "markdown",
			mode:    ModeMarkdown,
			wantOut: []string{"| category |", "| A ", "2024-03-01"},
		},
		{
			name:    "csv",
			mode:    ModeCSV,
			wantOut: []string{"category,day,E", "A,2024-03-01,5", "B,,7.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			r := NewRendererWithTTY(&out, &errOut, false, tt.mode)
			require.NoError(t, r.Dataset(sampleDataset(t)))
			for _, want := range tt.wantOut {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestRenderer_DatasetJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeJSON)
	require.NoError(t, r.Dataset(sampleDataset(t)))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0]["category"])
	assert.Equal(t, "2024-03-01", got[0]["day"])
	assert.InDelta(t, 5.0, got[0]["E"], 1e-9)
	assert.Nil(t, got[1]["day"])
}

func TestRenderer_EmptyDataset(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeTable)
	require.NoError(t, r.Dataset(core.NewDataset(core.Column{Name: "a", Type: core.TypeString})))
	assert.Equal(t, "(0 rows)\n", out.String())
}

func TestRenderer_Messages(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeMarkdown)

	r.Header(2, "Merge")
	r.StatusLine("master.xlsx", "success", "(2 rows)")
	r.Success("done")
	r.Warning("filter column not found")

	assert.Contains(t, out.String(), "## Merge")
	assert.Contains(t, out.String(), "[ok] master.xlsx (2 rows)")
	assert.Contains(t, out.String(), "[ok] done")
	assert.Contains(t, errOut.String(), "Warning: filter column not found")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "### Presets", FormatHeader(3, "Presets"))
	assert.Equal(t, "# Presets", FormatHeader(0, "Presets"))
	assert.Equal(t, "- **Rows**: 3", FormatKeyValue("Rows", "3"))
}
