package commands

import (
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/mergepivot/internal/cli/output"
	"github.com/leapstack-labs/mergepivot/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent merge runs",
		Long:  `List merge runs recorded in the state database, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.OpenState()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListMerges(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read merge history", err)
			}
			return renderHistory(cc.Renderer, runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")

	return cmd
}

func renderHistory(r *output.Renderer, runs []*state.MergeRun) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*state.MergeRun{}
		}
		return r.JSON(runs)
	}
	if len(runs) == 0 {
		r.Muted("No merge runs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Started", "Dump", "Master Rows", "Dump Rows", "Total", "Removed", "Saved"})
	for _, run := range runs {
		removed := "-"
		if run.Deduplicated {
			removed = strconv.Itoa(run.Removed)
		}
		saved := "yes"
		if run.DryRun {
			saved = "dry run"
		}
		t.AppendRow(table.Row{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			filepath.Base(run.DumpFile),
			run.MasterRows,
			run.IncomingRows,
			run.CombinedRows,
			removed,
			saved,
		})
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}
	return nil
}
