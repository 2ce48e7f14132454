package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// Dataset renders ds in the effective mode.
func (r *Renderer) Dataset(ds *core.Dataset) error {
	mode := r.EffectiveMode()
	if mode == ModeJSON {
		return r.JSON(datasetRecords(ds))
	}

	if ds.Len() == 0 && mode != ModeCSV {
		r.Println("(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	style := table.StyleLight
	style.Format.Header = text.FormatDefault // column names are data, keep their case
	t.SetStyle(style)

	header := make(table.Row, len(ds.Columns))
	configs := make([]table.ColumnConfig, 0, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c.Name
		if c.Type == core.TypeNumber {
			configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
		}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)

	for _, row := range ds.Rows {
		cells := make(table.Row, len(row))
		for i, v := range row {
			cells[i] = displayValue(v, mode)
		}
		t.AppendRow(cells)
	}

	switch mode {
	case ModeMarkdown:
		t.RenderMarkdown()
	case ModeCSV:
		t.RenderCSV()
	default:
		t.Render()
		r.Println(fmt.Sprintf("(%d rows)", ds.Len()))
	}
	return nil
}

func displayValue(v core.Value, mode OutputMode) string {
	if v == nil {
		if mode == ModeTable {
			return "NULL"
		}
		return ""
	}
	return core.FormatValue(v)
}

// datasetRecords converts rows into JSON-ready objects. Dates are encoded as
// their display text.
func datasetRecords(ds *core.Dataset) []map[string]any {
	out := make([]map[string]any, 0, ds.Len())
	for i := range ds.Rows {
		rec := ds.Record(i)
		obj := make(map[string]any, len(rec))
		for k, v := range rec {
			if t, ok := v.(time.Time); ok {
				obj[k] = core.FormatValue(t)
				continue
			}
			obj[k] = v
		}
		out = append(out, obj)
	}
	return out
}
