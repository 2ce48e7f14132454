package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// flagKeys maps CLI flag names to config keys where the two differ.
var flagKeys = map[string]string{
	"master":       "master_file",
	"daily-folder": "daily_data_folder",
	"output-file":  "output_file",
	"sheet":        "sheet_name",
	"export-dir":   "export_folder",
	"state":        "state_path",
	"format":       "output",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > config/config.yaml > config/config.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{DefaultConfigFile, "config/config.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// inferProjectRoot returns the directory relative paths are resolved against.
// A config file inside a directory named "config" anchors to that directory's
// parent, any other config file anchors to its own directory, and without a
// config file the working directory is used.
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			dir := filepath.Dir(abs)
			if filepath.Base(dir) == "config" {
				return filepath.Dir(dir)
			}
			return dir
		}
	}
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load reads the configuration document.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// An explicit cfgFile must exist; the default location is optional.
func Load(cfgFile string, flags *pflag.FlagSet) (*Document, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"export_folder":         DefaultExportFolder,
		"state_path":            DefaultStateFile,
		"deduplication.enabled": false,
		"verbose":               false,
		"output":                DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: MERGEPIVOT_MASTER_FILE -> master_file,
	// MERGEPIVOT_DEDUPLICATION__ENABLED -> deduplication.enabled
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s, v string) (string, any) {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		return key, sheetValue(key, v)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (only those explicitly set)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			if key == "sheet_name" {
				return key, sheetValue(key, f.Value.String())
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				sheetRefHook(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &doc,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths against the project root
	doc.Path = used
	if doc.Path == "" {
		doc.Path = DefaultConfigFile
	}
	doc.ProjectRoot = inferProjectRoot(used)
	doc.MasterFile = resolvePathRelativeTo(expandEnvVars(doc.MasterFile), doc.ProjectRoot)
	doc.DailyDataFolder = resolvePathRelativeTo(expandEnvVars(doc.DailyDataFolder), doc.ProjectRoot)
	doc.OutputFile = resolvePathRelativeTo(expandEnvVars(doc.OutputFile), doc.ProjectRoot)
	doc.ExportFolder = resolvePathRelativeTo(expandEnvVars(doc.ExportFolder), doc.ProjectRoot)
	doc.StatePath = resolvePathRelativeTo(expandEnvVars(doc.StatePath), doc.ProjectRoot)

	if doc.PivotPresets == nil {
		doc.PivotPresets = make(map[string]core.PivotSpec)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", doc.Path, err)
	}
	return &doc, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unset variables are left as-is.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// sheetValue turns an all-digit sheet_name from a flag or env var into an
// index, so "1" selects the second sheet the same way `sheet_name: 1` does.
func sheetValue(key, v string) any {
	if key != "sheet_name" {
		return v
	}
	if idx, err := strconv.Atoi(v); err == nil {
		return idx
	}
	return v
}
