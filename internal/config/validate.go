package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/mergepivot/internal/pivot"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// OutputFormats lists the accepted values of the output setting.
var OutputFormats = []string{"auto", "table", "markdown", "csv", "json"}

// Validate checks the document's structure and normalizes preset specs.
// File paths are not checked here; see RequireMergePaths.
func (d *Document) Validate() error {
	if d.SheetName.Index < 0 {
		return core.Errorf(core.KindInvalidConfiguration, "config", "sheet_name index must not be negative, got %d", d.SheetName.Index)
	}

	seen := make(map[string]bool, len(d.Deduplication.KeyColumns))
	for _, c := range d.Deduplication.KeyColumns {
		if strings.TrimSpace(c) == "" {
			return core.Errorf(core.KindInvalidConfiguration, "config", "deduplication.columns contains a blank column name")
		}
		if seen[c] {
			return core.Errorf(core.KindInvalidConfiguration, "config", "deduplication.columns lists %q twice", c)
		}
		seen[c] = true
	}

	if d.OutputFormat != "" && !slices.Contains(OutputFormats, d.OutputFormat) {
		return core.Errorf(core.KindInvalidConfiguration, "config",
			"output must be one of %s, got %q", strings.Join(OutputFormats, ", "), d.OutputFormat)
	}

	for name, spec := range d.PivotPresets {
		if err := core.ValidatePresetName(name); err != nil {
			return err
		}
		normalized, err := pivot.Validate(spec)
		if err != nil {
			return fmt.Errorf("pivot_presets.%s: %w", name, err)
		}
		d.PivotPresets[name] = normalized
	}
	return nil
}

// RequireMergePaths checks the settings the merge workflow cannot run without.
func (d *Document) RequireMergePaths() error {
	var missing []string
	if d.MasterFile == "" {
		missing = append(missing, "master_file")
	}
	if d.DailyDataFolder == "" {
		missing = append(missing, "daily_data_folder")
	}
	if d.OutputFile == "" {
		missing = append(missing, "output_file")
	}
	if len(missing) > 0 {
		return core.Errorf(core.KindInvalidConfiguration, "config",
			"%s must be set in %s\nHint: set them in the config file or with MERGEPIVOT_ environment variables",
			strings.Join(missing, ", "), d.Path)
	}
	return nil
}
