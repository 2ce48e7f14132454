// Package config loads and persists the mergepivot configuration document.
//
// Values are layered with koanf: built-in defaults, then the YAML file, then
// MERGEPIVOT_ environment variables, then explicitly set CLI flags. The
// result is decoded once into a typed Document and validated before any
// command runs. Only the pivot_presets section is ever written back.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// Default configuration values.
const (
	DefaultConfigFile   = "config/config.yaml"
	DefaultExportFolder = "exports"
	DefaultStateFile    = ".mergepivot/state.db"
	DefaultOutput       = "auto" // Auto-detect: TTY=table, non-TTY=markdown
	EnvPrefix           = "MERGEPIVOT_"
)

// Document is the typed configuration document.
type Document struct {
	MasterFile      string                    `koanf:"master_file"`
	DailyDataFolder string                    `koanf:"daily_data_folder"`
	OutputFile      string                    `koanf:"output_file"`
	SheetName       SheetRef                  `koanf:"sheet_name"`
	Deduplication   core.DeduplicationRule    `koanf:"deduplication"`
	PivotPresets    map[string]core.PivotSpec `koanf:"pivot_presets"`
	ExportFolder    string                    `koanf:"export_folder"`
	StatePath       string                    `koanf:"state_path"`
	Verbose         bool                      `koanf:"verbose"`
	OutputFormat    string                    `koanf:"output"`

	// Path is the config file the document was read from, or the file it
	// will be created at when presets are first saved.
	Path string `koanf:"-"`

	// ProjectRoot anchors relative paths.
	ProjectRoot string `koanf:"-"`
}

// SheetRef selects a worksheet either by name or by zero-based index.
// The zero value selects the first sheet.
type SheetRef struct {
	Name  string
	Index int
}

// String renders the reference the way it appears in the config file.
func (s SheetRef) String() string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(s.Index)
}

// IsZero reports whether the reference selects the first sheet implicitly.
func (s SheetRef) IsZero() bool {
	return s.Name == "" && s.Index == 0
}

// SheetFor returns the worksheet to read from path. sheet_name selects the
// master's sheet only; dumps and merged output are read from their first sheet.
func (d *Document) SheetFor(path string) SheetRef {
	if d.MasterFile != "" && filepath.Clean(path) == filepath.Clean(d.MasterFile) {
		return d.SheetName
	}
	return SheetRef{}
}

var sheetRefType = reflect.TypeOf(SheetRef{})

// sheetRefHook decodes sheet_name from either a YAML string or integer.
func sheetRefHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != sheetRefType {
			return data, nil
		}
		switch v := data.(type) {
		case nil:
			return SheetRef{}, nil
		case string:
			return SheetRef{Name: v}, nil
		case int:
			return SheetRef{Index: v}, nil
		case int64:
			return SheetRef{Index: int(v)}, nil
		case uint64:
			return SheetRef{Index: int(v)}, nil
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("sheet_name index must be a whole number, got %v", v)
			}
			return SheetRef{Index: int(v)}, nil
		case SheetRef:
			return v, nil
		default:
			return nil, fmt.Errorf("sheet_name must be a sheet name or index, got %T", data)
		}
	}
}
