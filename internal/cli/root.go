// Package cli provides the command-line interface for mergepivot.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/mergepivot/internal/cli/commands"
	"github.com/leapstack-labs/mergepivot/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile   string
		logFormat string
		envFile   string
	)

	rootCmd := &cobra.Command{
		Use:   "mergepivot",
		Short: "mergepivot - append daily spreadsheet dumps and build pivot tables",
		Long: `mergepivot keeps a master spreadsheet up to date with daily data dumps
and summarizes it with pivot tables.

The newest file in the daily data folder is appended below the master data,
duplicate rows are dropped (master rows win) and the result is saved.
Pivot tables can be built ad hoc, from saved presets, or from an
interactive menu, and exported to Excel.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help, completion and version
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}

			if err := loadEnvFile(envFile); err != nil {
				return commands.WrapExitError(commands.ExitCommandError, "failed to load env file", err)
			}

			doc, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return commands.WrapExitError(commands.ExitCommandError, "failed to load configuration", err)
			}

			logger, err := newLogger(cmd.ErrOrStderr(), logFormat, doc.Verbose)
			if err != nil {
				return commands.WrapExitError(commands.ExitCommandError, "invalid --log-format", err)
			}
			logger.Debug("configuration loaded",
				slog.String("file", doc.Path),
				slog.String("project_root", doc.ProjectRoot))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			ctx = config.WithDocument(ctx, doc)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Spreadsheet merge and pivot tool
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./config/config.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with MERGEPIVOT_ variables (ignored if missing)")
	pf.String("master", "", "Path to the master dataset")
	pf.String("daily-folder", "", "Folder holding daily dumps")
	pf.String("output-file", "", "Where the merged dataset is saved")
	pf.String("sheet", "", "Worksheet name or zero-based index")
	pf.String("export-dir", "", "Folder for exported pivot tables")
	pf.String("state", "", "Path to the state database")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("format", "o", "", "Output format (auto|table|markdown|csv|json)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputFormats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewMergeCommand())
	rootCmd.AddCommand(commands.NewPivotCommand())
	rootCmd.AddCommand(commands.NewPresetCommand())
	rootCmd.AddCommand(commands.NewInteractiveCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return commands.GetExitCode(err)
	}
	return commands.ExitSuccess
}

// loadEnvFile loads KEY=value pairs from path into the environment.
// Variables already set in the environment are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// newLogger builds the CLI logger. Logs go to w so they never mix with
// rendered results on stdout.
func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for mergepivot.

To load completions:

Bash:
  $ source <(mergepivot completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ mergepivot completion bash > /etc/bash_completion.d/mergepivot
  # macOS:
  $ mergepivot completion bash > $(brew --prefix)/etc/bash_completion.d/mergepivot

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ mergepivot completion zsh > "${fpath[1]}/_mergepivot"

Fish:
  $ mergepivot completion fish | source

  # To load completions for each session, execute once:
  $ mergepivot completion fish > ~/.config/fish/completions/mergepivot.fish

PowerShell:
  PS> mergepivot completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
