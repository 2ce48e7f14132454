package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/mergepivot/internal/cli/output"
	"github.com/leapstack-labs/mergepivot/internal/config"
	"github.com/leapstack-labs/mergepivot/internal/merge"
	"github.com/leapstack-labs/mergepivot/internal/source"
	"github.com/leapstack-labs/mergepivot/internal/state"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// MergeOptions holds options for the merge command.
type MergeOptions struct {
	Dump   string
	DryRun bool
}

// mergeOutcome is the result of one merge workflow run.
type mergeOutcome struct {
	Combined *core.Dataset
	Stats    merge.Stats
	Master   string
	Dump     string
	Output   string
	RunID    string
	DryRun   bool
}

// NewMergeCommand creates the merge command.
func NewMergeCommand() *cobra.Command {
	opts := &MergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Append the newest daily dump to the master dataset",
		Long: `Load the master dataset and the newest file in the daily data folder,
append the dump below the master, drop duplicate rows according to the
deduplication rule and save the result to the output file.

Master rows win over dump rows that share the same key.`,
		Example: `  mergepivot merge
  mergepivot merge --dump data/daily/export_0302.xlsx
  mergepivot merge --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			res, err := runMerge(cmd.Context(), cc, opts)
			if err != nil {
				return err
			}
			return renderMerge(cc.Renderer, res)
		},
	}

	cmd.Flags().StringVar(&opts.Dump, "dump", "", "Merge this file instead of the newest dump")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Merge without saving the output file")

	return cmd
}

// runMerge loads the master and dump files, merges them and saves the result.
func runMerge(ctx context.Context, cc *CommandContext, opts *MergeOptions) (*mergeOutcome, error) {
	doc := cc.Doc
	if err := doc.RequireMergePaths(); err != nil {
		return nil, classify("cannot merge", err)
	}

	dump := opts.Dump
	if dump == "" {
		latest, err := source.LatestDump(doc.DailyDataFolder)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to find daily dump", err)
		}
		dump = latest
	}
	cc.Logger.Info("using daily dump", slog.String("file", dump))

	master, err := cc.ReadDataset(ctx, doc.MasterFile)
	if err != nil {
		return nil, err
	}
	incoming, err := cc.ReadDataset(ctx, dump)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	combined, stats, err := merge.New(cc.Logger).Merge(master, incoming, doc.Deduplication)
	if err != nil {
		return nil, classify("merge failed", err)
	}

	res := &mergeOutcome{
		Combined: combined,
		Stats:    stats,
		Master:   doc.MasterFile,
		Dump:     dump,
		DryRun:   opts.DryRun,
	}

	if !opts.DryRun {
		if err := saveMerged(doc, combined); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to save merged data", err)
		}
		res.Output = doc.OutputFile
		cc.Logger.Info("saved merged data", slog.String("file", doc.OutputFile), slog.Int("rows", combined.Len()))
	}

	res.RunID = recordMerge(ctx, cc, res, startedAt)
	return res, nil
}

// saveMerged writes the merged dataset. When the output file is the master
// workbook only the configured sheet is rewritten, so the master keeps its
// other sheets and sheet_name keeps pointing at the data.
func saveMerged(doc *config.Document, ds *core.Dataset) error {
	inPlace := filepath.Clean(doc.OutputFile) == filepath.Clean(doc.MasterFile) && isWorkbook(doc.OutputFile)
	if inPlace {
		if _, err := os.Stat(doc.OutputFile); err == nil {
			return source.ReplaceSheet(doc.OutputFile, ds, doc.SheetName)
		}
	}
	return source.WriteFile(doc.OutputFile, ds, doc.SheetName.Name)
}

func isWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// recordMerge writes the run to the run log. Failures are logged and do not
// fail the merge, whose output is already saved.
func recordMerge(ctx context.Context, cc *CommandContext, res *mergeOutcome, startedAt time.Time) string {
	store, err := cc.OpenState()
	if err != nil {
		cc.Logger.Warn("merge run not recorded", slog.String("error", err.Error()))
		return ""
	}
	defer func() { _ = store.Close() }()

	run, err := store.RecordMerge(ctx, state.MergeRun{
		StartedAt:    startedAt,
		MasterFile:   res.Master,
		DumpFile:     res.Dump,
		OutputFile:   res.Output,
		MasterRows:   res.Stats.MasterRows,
		IncomingRows: res.Stats.IncomingRows,
		CombinedRows: res.Stats.CombinedRows,
		Removed:      res.Stats.Removed,
		Deduplicated: res.Stats.Deduplicated,
		DryRun:       res.DryRun,
	})
	if err != nil {
		cc.Logger.Warn("merge run not recorded", slog.String("error", err.Error()))
		return ""
	}
	return run.ID
}

// mergeJSON is the JSON shape of a merge summary.
type mergeJSON struct {
	RunID        string `json:"run_id,omitempty"`
	MasterFile   string `json:"master_file"`
	DumpFile     string `json:"dump_file"`
	OutputFile   string `json:"output_file,omitempty"`
	MasterRows   int    `json:"master_rows"`
	IncomingRows int    `json:"incoming_rows"`
	CombinedRows int    `json:"combined_rows"`
	Removed      int    `json:"duplicates_removed"`
	Deduplicated bool   `json:"deduplicated"`
	DryRun       bool   `json:"dry_run"`
}

func renderMerge(r *output.Renderer, res *mergeOutcome) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(mergeJSON{
			RunID:        res.RunID,
			MasterFile:   res.Master,
			DumpFile:     res.Dump,
			OutputFile:   res.Output,
			MasterRows:   res.Stats.MasterRows,
			IncomingRows: res.Stats.IncomingRows,
			CombinedRows: res.Stats.CombinedRows,
			Removed:      res.Stats.Removed,
			Deduplicated: res.Stats.Deduplicated,
			DryRun:       res.DryRun,
		})
	}

	r.Header(2, "Merge")
	r.StatusLine(filepath.Base(res.Master), "success", fmt.Sprintf("(%d rows)", res.Stats.MasterRows))
	r.StatusLine(filepath.Base(res.Dump), "success", fmt.Sprintf("(%d rows)", res.Stats.IncomingRows))
	if res.Stats.Deduplicated {
		r.StatusLine("deduplication", "success", fmt.Sprintf("(%d duplicates removed)", res.Stats.Removed))
	} else {
		r.StatusLine("deduplication", "skipped", "(disabled or no columns specified)")
	}
	r.Printf("Total rows after append: %d\n", res.Stats.CombinedRows)

	if res.DryRun {
		r.Muted("Dry run: output file not written")
		return nil
	}
	r.Success("Merged data saved to " + res.Output)
	return nil
}
