package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/mergepivot/internal/cli/output"
	"github.com/leapstack-labs/mergepivot/internal/config"
	"github.com/leapstack-labs/mergepivot/internal/preset"
	"github.com/leapstack-labs/mergepivot/internal/source"
	"github.com/leapstack-labs/mergepivot/internal/state"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Doc      *config.Document
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the document and logger the
// root command stored in cmd's context. Without a stored document the
// default configuration is loaded.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	doc := config.GetDocument(ctx)
	if doc == nil {
		var err error
		doc, err = config.Load("", nil)
		if err != nil {
			return nil, classify("failed to load configuration", err)
		}
	}

	return &CommandContext{
		Doc:      doc,
		Logger:   config.GetLogger(ctx),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(doc.OutputFormat)),
	}, nil
}

// Presets returns a preset manager persisting to the config file.
func (c *CommandContext) Presets() *preset.Manager {
	return preset.NewManager(c.Doc, config.NewFileStore(c.Doc.Path), c.Logger)
}

// ReadDataset loads a master, dump or merged file. Only the master is read
// from the configured sheet.
func (c *CommandContext) ReadDataset(ctx context.Context, path string) (*core.Dataset, error) {
	ds, err := source.NewReader(c.Logger).Read(ctx, path, c.Doc.SheetFor(path))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load data", err)
	}
	return ds, nil
}

// OpenState opens and migrates the run log.
// The caller must Close the returned store.
func (c *CommandContext) OpenState() (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Doc.StatePath); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state database", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, WrapExitError(ExitCommandError, "failed to migrate state database", err)
	}
	return store, nil
}

// pivotInput picks the dataset file pivots are computed from: an explicit
// path, else the merged output file, else the master file.
func (c *CommandContext) pivotInput(explicit string) (string, error) {
	switch {
	case explicit != "":
		return explicit, nil
	case c.Doc.OutputFile != "":
		return c.Doc.OutputFile, nil
	case c.Doc.MasterFile != "":
		return c.Doc.MasterFile, nil
	default:
		return "", NewExitError(ExitCommandError,
			fmt.Sprintf("no input file: pass --input or set output_file in %s", c.Doc.Path))
	}
}
