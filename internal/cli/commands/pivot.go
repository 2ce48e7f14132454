package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/mergepivot/internal/cli/output"
	"github.com/leapstack-labs/mergepivot/internal/pivot"
	"github.com/leapstack-labs/mergepivot/internal/source"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// now is the clock used for export file names.
var now = time.Now

// SpecFlags are the flags that describe a pivot on the command line.
type SpecFlags struct {
	Rows       []string
	Columns    string
	Values     string
	Aggregator string
	Filters    []string
}

func (f *SpecFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.Rows, "rows", nil, "Row columns (comma-separated)")
	cmd.Flags().StringVar(&f.Columns, "columns", "", "Column whose values become output columns")
	cmd.Flags().StringVar(&f.Values, "values", "", "Column to aggregate")
	cmd.Flags().StringVar(&f.Aggregator, "agg", "", "Aggregation function: sum, count, mean, max, min (default sum)")
	cmd.Flags().StringArrayVar(&f.Filters, "filter", nil, "Keep rows where column=value (repeatable)")

	_ = cmd.RegisterFlagCompletionFunc("agg", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sum", "count", "mean", "max", "min"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// apply overlays the flags the user set onto base.
func (f *SpecFlags) apply(cmd *cobra.Command, base core.PivotSpec) (core.PivotSpec, error) {
	spec := base.Clone()
	if cmd.Flags().Changed("rows") {
		spec.RowColumns = trimAll(f.Rows)
	}
	if cmd.Flags().Changed("columns") {
		spec.ColumnDimension = strings.TrimSpace(f.Columns)
	}
	if cmd.Flags().Changed("values") {
		spec.ValueColumn = strings.TrimSpace(f.Values)
	}
	if cmd.Flags().Changed("agg") {
		spec.Aggregator = core.Aggregator(strings.ToLower(strings.TrimSpace(f.Aggregator)))
	}
	if cmd.Flags().Changed("filter") {
		filters, err := parseFilters(f.Filters)
		if err != nil {
			return core.PivotSpec{}, err
		}
		if spec.Filters == nil {
			spec.Filters = make(map[string]string, len(filters))
		}
		for k, v := range filters {
			spec.Filters[k] = v
		}
	}
	return spec, nil
}

// parseFilters parses column=value pairs. The value may itself contain "=".
func parseFilters(pairs []string) (map[string]string, error) {
	filters := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid filter %q: expected column=value", p))
		}
		filters[key] = strings.TrimSpace(val)
	}
	return filters, nil
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PivotOptions holds options for the pivot command.
type PivotOptions struct {
	Spec   SpecFlags
	Preset string
	Input  string
	Export bool
}

// NewPivotCommand creates the pivot command.
func NewPivotCommand() *cobra.Command {
	opts := &PivotOptions{}

	cmd := &cobra.Command{
		Use:   "pivot",
		Short: "Summarize the merged dataset as a pivot table",
		Long: `Group the merged dataset by one or more row columns, optionally spread a
column's values across the output columns and aggregate a value column.

Filters keep only rows whose column equals the given value; the value is
compared as a number, date or boolean when the column holds those types.
Filters on columns that do not exist are skipped with a warning.

With --preset, the saved pivot is used and any spec flags override it.`,
		Example: `  mergepivot pivot --rows category --columns region --values amount
  mergepivot pivot --rows category --agg count --filter status=open
  mergepivot pivot --preset sales_by_region --export`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			var base core.PivotSpec
			if opts.Preset != "" {
				base, err = cc.Presets().Resolve(opts.Preset)
				if err != nil {
					return classify("cannot use preset", err)
				}
			}
			spec, err := opts.Spec.apply(cmd, base)
			if err != nil {
				return err
			}
			if len(spec.RowColumns) == 0 {
				return NewExitError(ExitCommandError, "no row columns: pass --rows or --preset")
			}

			input, err := cc.pivotInput(opts.Input)
			if err != nil {
				return err
			}
			ds, err := cc.ReadDataset(cmd.Context(), input)
			if err != nil {
				return err
			}

			res, err := pivot.New(cc.Logger).Evaluate(ds, spec)
			if err != nil {
				return classify("pivot failed", err)
			}
			if err := renderPivot(cc.Renderer, res); err != nil {
				return err
			}

			if opts.Export {
				path, err := exportPivot(cc.Doc.ExportFolder, res.Dataset)
				if err != nil {
					return err
				}
				if cc.Renderer.EffectiveMode() != output.ModeJSON {
					cc.Renderer.Success("Pivot table exported to: " + path)
				}
			}
			return nil
		},
	}

	opts.Spec.register(cmd)
	cmd.Flags().StringVarP(&opts.Preset, "preset", "p", "", "Use a saved pivot preset")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Dataset file (default: output_file)")
	cmd.Flags().BoolVarP(&opts.Export, "export", "e", false, "Export the pivot table to the export folder")

	return cmd
}

// pivotTitle describes a spec, e.g. "Sum of amount by category and region".
func pivotTitle(spec core.PivotSpec) string {
	caser := cases.Title(language.English)
	var b strings.Builder
	b.WriteString(caser.String(string(spec.Aggregator)))
	if spec.ValueColumn != "" {
		b.WriteString(" of " + spec.ValueColumn)
	}
	b.WriteString(" by " + strings.Join(spec.RowColumns, ", "))
	if spec.ColumnDimension != "" {
		b.WriteString(" and " + spec.ColumnDimension)
	}
	return b.String()
}

func renderPivot(r *output.Renderer, res *pivot.Result) error {
	for _, col := range res.SkippedFilters {
		r.Warning(fmt.Sprintf("skipping filter: column %q not found", col))
	}

	mode := r.EffectiveMode()
	if mode == output.ModeTable || mode == output.ModeMarkdown {
		r.Header(2, pivotTitle(res.Spec))
		if len(res.Spec.Filters) > 0 {
			r.Muted(fmt.Sprintf("%d of %d rows match the filters", res.MatchedRows, res.InputRows))
		}
	}
	return r.Dataset(res.Dataset)
}

// exportPivot writes ds to a timestamped workbook in dir and returns its path.
func exportPivot(dir string, ds *core.Dataset) (string, error) {
	base := "pivot_" + now().Format("20060102_150405")
	path := filepath.Join(dir, base+".xlsx")
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(dir, base+"_"+strconv.Itoa(i)+".xlsx")
	}
	if err := source.WriteFile(path, ds, "Pivot"); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to export pivot", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
