package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/mergepivot/internal/cli/output"
	"github.com/leapstack-labs/mergepivot/internal/preset"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// NewPresetCommand creates the preset command and its subcommands.
func NewPresetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "preset",
		Aliases: []string{"presets"},
		Short:   "Manage saved pivot presets",
		Long: `List, inspect, create and delete the pivot presets stored under
pivot_presets in the config file. Saving rewrites only that section;
other settings and comments in the file are preserved.`,
	}

	cmd.AddCommand(newPresetListCommand())
	cmd.AddCommand(newPresetShowCommand())
	cmd.AddCommand(newPresetCreateCommand())
	cmd.AddCommand(newPresetDeleteCommand())

	return cmd
}

// presetJSON is the JSON shape of a preset.
type presetJSON struct {
	Name       string            `json:"name"`
	RowColumns []string          `json:"index_cols"`
	Columns    string            `json:"columns,omitempty"`
	Values     string            `json:"values,omitempty"`
	Aggregator string            `json:"aggfunc"`
	Filters    map[string]string `json:"filters,omitempty"`
}

func toPresetJSON(name string, spec core.PivotSpec) presetJSON {
	return presetJSON{
		Name:       name,
		RowColumns: spec.RowColumns,
		Columns:    spec.ColumnDimension,
		Values:     spec.ValueColumn,
		Aggregator: string(spec.Aggregator),
		Filters:    spec.Filters,
	}
}

// completePresetNames offers saved preset names for the first argument.
func completePresetNames(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return cc.Presets().List(), cobra.ShellCompDirectiveNoFileComp
}

func newPresetListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved presets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			mgr := cc.Presets()
			names := mgr.List()
			r := cc.Renderer

			if r.EffectiveMode() == output.ModeJSON {
				out := make([]presetJSON, 0, len(names))
				for _, name := range names {
					spec, _ := mgr.Resolve(name)
					out = append(out, toPresetJSON(name, spec))
				}
				return r.JSON(out)
			}

			if len(names) == 0 {
				r.Muted("No presets found.")
				return nil
			}

			r.Header(2, fmt.Sprintf("Saved Pivot Presets (%d)", len(names)))
			t := table.NewWriter()
			t.SetOutputMirror(r.Writer())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"#", "Name", "Pivot"})
			for i, name := range names {
				spec, _ := mgr.Resolve(name)
				t.AppendRow(table.Row{i + 1, name, spec.String()})
			}
			if r.EffectiveMode() == output.ModeMarkdown {
				t.RenderMarkdown()
			} else {
				t.Render()
			}
			return nil
		},
	}
}

func newPresetShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show NAME",
		Short:             "Show a saved preset",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completePresetNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			spec, err := cc.Presets().Resolve(args[0])
			if err != nil {
				return classify("cannot show preset", err)
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(toPresetJSON(args[0], spec))
			}

			r.Println(output.FormatHeader(2, args[0]))
			r.Println(output.FormatKeyValue("Rows", strings.Join(spec.RowColumns, ", ")))
			if spec.ColumnDimension != "" {
				r.Println(output.FormatKeyValue("Columns", spec.ColumnDimension))
			}
			if spec.ValueColumn != "" {
				r.Println(output.FormatKeyValue("Values", spec.ValueColumn))
			}
			r.Println(output.FormatKeyValue("Aggregation", string(spec.Aggregator)))
			for _, col := range spec.FilterColumns() {
				r.Println(output.FormatKeyValue("Filter", col+" = "+spec.Filters[col]))
			}
			return nil
		},
	}
}

// PresetCreateOptions holds options for preset create.
type PresetCreateOptions struct {
	Spec  SpecFlags
	Input string
	Force bool
}

func newPresetCreateCommand() *cobra.Command {
	opts := &PresetCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Save a new pivot preset",
		Long: `Save a pivot spec under NAME in the config file.

When --input is given, or the merged output file exists, the columns the
preset refers to are checked against that dataset first. An existing preset
is only replaced with --force.`,
		Example: `  mergepivot preset create sales_by_region --rows category --columns region --values amount
  mergepivot preset create open_count --rows owner --agg count --filter status=open --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			spec, err := opts.Spec.apply(cmd, core.PivotSpec{})
			if err != nil {
				return err
			}

			var sample *core.Dataset
			input := opts.Input
			if input == "" && fileExists(cc.Doc.OutputFile) {
				input = cc.Doc.OutputFile
			}
			if input != "" {
				if sample, err = cc.ReadDataset(cmd.Context(), input); err != nil {
					return err
				}
			}

			name := args[0]
			err = cc.Presets().Create(name, spec, sample, preset.CreateOptions{Overwrite: opts.Force})
			if errors.Is(err, preset.ErrPresetExists) {
				return WrapExitError(ExitFailure, "preset already exists (use --force to replace it)", err)
			}
			if err != nil {
				return classify("cannot create preset", err)
			}

			if cc.Renderer.EffectiveMode() == output.ModeJSON {
				saved, _ := cc.Presets().Resolve(name)
				return cc.Renderer.JSON(toPresetJSON(name, saved))
			}
			cc.Renderer.Success(fmt.Sprintf("Preset '%s' saved to %s", name, cc.Doc.Path))
			return nil
		},
	}

	opts.Spec.register(cmd)
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Dataset file to check columns against")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Replace an existing preset")

	return cmd
}

func newPresetDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete NAME",
		Aliases:           []string{"rm"},
		Short:             "Delete a saved preset",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completePresetNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if err := cc.Presets().Delete(args[0]); err != nil {
				return classify("cannot delete preset", err)
			}
			if cc.Renderer.EffectiveMode() != output.ModeJSON {
				cc.Renderer.Success(fmt.Sprintf("Preset '%s' deleted", args[0]))
			}
			return nil
		},
	}
}
