package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/mergepivot/internal/pivot"
	"github.com/leapstack-labs/mergepivot/internal/preset"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// prompter reads one line of input per prompt. It returns io.EOF when the
// input is exhausted.
type prompter interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// readlinePrompter is the terminal prompter.
type readlinePrompter struct {
	rl *readline.Instance
}

func newReadlinePrompter(historyFile string, columns []string) (*readlinePrompter, error) {
	items := make([]readline.PrefixCompleterInterface, len(columns))
	for i, c := range columns {
		items[i] = readline.PcItem(c)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prompt: %w", err)
	}
	return &readlinePrompter{rl: rl}, nil
}

func (p *readlinePrompter) Prompt(prompt string) (string, error) {
	p.rl.SetPrompt(prompt)
	for {
		line, err := p.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return "", io.EOF
			}
			continue
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func (p *readlinePrompter) Close() error {
	return p.rl.Close()
}

// InteractiveOptions holds options for the interactive command.
type InteractiveOptions struct {
	Merge MergeOptions
}

// NewInteractiveCommand creates the interactive command.
func NewInteractiveCommand() *cobra.Command {
	opts := &InteractiveOptions{}

	cmd := &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"menu"},
		Short:   "Merge the newest dump, then build pivots from a menu",
		Long: `Run the merge workflow, then open a menu to build pivot tables from the
merged data:

  1. Generate a pivot table, answering prompts for each part of it
  2. Run a saved preset
  3. Create a new preset
  4. Exit

Column prompts repeat until every named column exists. Filters on unknown
columns are skipped with a warning. Ctrl-D leaves the menu.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			res, err := runMerge(cmd.Context(), cc, &opts.Merge)
			if err != nil {
				return err
			}
			if err := renderMerge(cc.Renderer, res); err != nil {
				return err
			}

			historyFile := filepath.Join(filepath.Dir(cc.Doc.StatePath), "interactive_history")
			in, err := newReadlinePrompter(historyFile, res.Combined.ColumnNames())
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot start interactive session", err)
			}
			defer func() { _ = in.Close() }()

			return newSession(cc, res.Combined, in).run()
		},
	}

	cmd.Flags().StringVar(&opts.Merge.Dump, "dump", "", "Merge this file instead of the newest dump")
	cmd.Flags().BoolVar(&opts.Merge.DryRun, "dry-run", false, "Merge without saving the output file")

	return cmd
}

// session is one interactive menu over a merged dataset.
type session struct {
	cc      *CommandContext
	data    *core.Dataset
	in      prompter
	presets *preset.Manager
	engine  *pivot.Engine
}

func newSession(cc *CommandContext, data *core.Dataset, in prompter) *session {
	return &session{
		cc:      cc,
		data:    data,
		in:      in,
		presets: cc.Presets(),
		engine:  pivot.New(cc.Logger),
	}
}

// run shows the menu until the user exits or input ends.
func (s *session) run() error {
	r := s.cc.Renderer
	for {
		r.Println()
		r.Println(r.Styles().Header2.Render("=== Pivot Table Menu ==="))
		r.Println("1. Generate Pivot Table (interactive)")
		r.Println("2. Use Pivot Preset")
		r.Println("3. Create New Preset")
		r.Println("4. Exit")

		choice, err := s.in.Prompt("Select an option: ")
		if err != nil {
			return s.finish(err)
		}

		switch choice {
		case "1":
			err = s.generatePivot()
		case "2":
			err = s.usePreset()
		case "3":
			err = s.createPreset()
		case "4", "q", "exit":
			r.Println("Exiting...")
			return nil
		default:
			r.Error("Invalid choice. Please try again.")
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.finish(err)
			}
			r.Error(err.Error())
		}
	}
}

func (s *session) finish(err error) error {
	if errors.Is(err, io.EOF) {
		s.cc.Renderer.Println("Exiting...")
		return nil
	}
	return WrapExitError(ExitCommandError, "failed to read input", err)
}

func (s *session) showColumns() {
	s.cc.Renderer.Println("Available columns:")
	s.cc.Renderer.Println("  " + strings.Join(s.data.ColumnNames(), ", "))
}

func (s *session) generatePivot() error {
	r := s.cc.Renderer
	r.Println()
	r.Println(r.Styles().Header2.Render("=== Pivot Table Generator ==="))
	s.showColumns()
	r.Println("Leave optional fields blank to skip them.")

	spec, err := s.askSpec()
	if err != nil {
		return err
	}
	return s.evaluate(spec)
}

func (s *session) usePreset() error {
	r := s.cc.Renderer
	names := s.presets.List()
	if len(names) == 0 {
		r.Warning("No presets found.")
		return nil
	}

	r.Println()
	r.Println(r.Styles().Header2.Render("=== Saved Pivot Presets ==="))
	for i, name := range names {
		r.Printf("%d. %s\n", i+1, name)
	}

	answer, err := s.in.Prompt("Enter preset name: ")
	if err != nil {
		return err
	}
	name := answer
	if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(names) {
		name = names[n-1]
	}

	spec, err := s.presets.Resolve(name)
	if err != nil {
		return err
	}
	r.Success("Generating Pivot: " + name)
	return s.evaluate(spec)
}

func (s *session) createPreset() error {
	r := s.cc.Renderer
	r.Println()
	r.Println(r.Styles().Header2.Render("=== Create New Pivot Preset ==="))
	s.showColumns()

	var name string
	for {
		answer, err := s.in.Prompt("Preset name (no spaces): ")
		if err != nil {
			return err
		}
		if err := core.ValidatePresetName(answer); err != nil {
			r.Error(err.Error())
			continue
		}
		name = answer
		break
	}

	spec, err := s.askSpec()
	if err != nil {
		return err
	}

	err = s.presets.Create(name, spec, s.data, preset.CreateOptions{})
	if errors.Is(err, preset.ErrPresetExists) {
		ok, askErr := s.confirm(fmt.Sprintf("Preset '%s' already exists. Overwrite? (y/n): ", name))
		if askErr != nil {
			return askErr
		}
		if !ok {
			r.Muted("Preset not saved.")
			return nil
		}
		err = s.presets.Create(name, spec, s.data, preset.CreateOptions{Overwrite: true})
	}
	if err != nil {
		return err
	}
	r.Success(fmt.Sprintf("Preset '%s' saved to %s", name, s.cc.Doc.Path))
	return nil
}

// askSpec prompts for each part of a pivot spec, repeating a prompt until
// its answer names existing columns.
func (s *session) askSpec() (core.PivotSpec, error) {
	r := s.cc.Renderer
	var spec core.PivotSpec

	for {
		answer, err := s.in.Prompt("Rows (index columns, comma-separated): ")
		if err != nil {
			return spec, err
		}
		rows := trimAll(strings.Split(answer, ","))
		if len(rows) > 0 && len(s.data.Missing(rows...)) == 0 {
			spec.RowColumns = rows
			break
		}
		r.Error("Invalid columns. Please try again.")
	}

	var err error
	if spec.ColumnDimension, err = s.askColumn("Columns (optional, single column): ", true); err != nil {
		return spec, err
	}
	if spec.ValueColumn, err = s.askColumn("Values (data to aggregate, optional): ", true); err != nil {
		return spec, err
	}

	r.Println()
	r.Println("Supported aggregation functions: sum, count, mean, max, min")
	for {
		answer, err := s.in.Prompt("Aggregation function [default=sum]: ")
		if err != nil {
			return spec, err
		}
		agg, parseErr := core.ParseAggregator(strings.ToLower(answer))
		if parseErr != nil {
			r.Error(parseErr.Error())
			continue
		}
		spec.Aggregator = agg
		break
	}
	if spec.Aggregator.Numeric() && spec.ValueColumn == "" {
		prompt := fmt.Sprintf("Values (required for %s): ", spec.Aggregator)
		if spec.ValueColumn, err = s.askColumn(prompt, false); err != nil {
			return spec, err
		}
	}

	r.Println()
	r.Println("Optional filters (key=value), separate multiple with commas.")
	answer, err := s.in.Prompt("Filters: ")
	if err != nil {
		return spec, err
	}
	for _, pair := range trimAll(strings.Split(answer, ",")) {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			r.Warning(fmt.Sprintf("Skipping malformed filter: %s", pair))
			continue
		}
		if !s.data.Has(key) {
			r.Warning(fmt.Sprintf("Skipping invalid filter column: %s", key))
			continue
		}
		if spec.Filters == nil {
			spec.Filters = make(map[string]string)
		}
		spec.Filters[key] = strings.TrimSpace(val)
	}
	return spec, nil
}

// askColumn prompts for a single column name until it exists, or is blank
// when optional.
func (s *session) askColumn(prompt string, optional bool) (string, error) {
	for {
		answer, err := s.in.Prompt(prompt)
		if err != nil {
			return "", err
		}
		if (answer == "" && optional) || (answer != "" && s.data.Has(answer)) {
			return answer, nil
		}
		s.cc.Renderer.Error("Column not found. Please try again.")
	}
}

func (s *session) evaluate(spec core.PivotSpec) error {
	res, err := s.engine.Evaluate(s.data, spec)
	if err != nil {
		return fmt.Errorf("error generating pivot table: %w", err)
	}
	if err := renderPivot(s.cc.Renderer, res); err != nil {
		return err
	}

	ok, err := s.confirm("Export this pivot to Excel? (y/n): ")
	if err != nil || !ok {
		return err
	}
	path, err := exportPivot(s.cc.Doc.ExportFolder, res.Dataset)
	if err != nil {
		return err
	}
	s.cc.Renderer.Success("Pivot table exported to: " + path)
	return nil
}

func (s *session) confirm(prompt string) (bool, error) {
	answer, err := s.in.Prompt(prompt)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
