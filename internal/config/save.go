package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

const presetsKey = "pivot_presets"

// FileStore writes preset changes back to the config file. Only the
// pivot_presets mapping is replaced; every other key, including comments,
// is written back as it was read.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for the given config file. The file and
// its directory are created on first save when missing.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

// SavePresets replaces the pivot_presets section of the config file.
func (s *FileStore) SavePresets(presets map[string]core.PivotSpec) error {
	doc, mode, err := s.readDocument()
	if err != nil {
		return err
	}

	var value yaml.Node
	if err := value.Encode(presetsForYAML(presets)); err != nil {
		return fmt.Errorf("failed to encode presets: %w", err)
	}
	setMappingKey(doc.Content[0], presetsKey, &value)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return writeFileAtomic(s.path, buf.Bytes(), mode)
}

// readDocument returns the parsed config file as a document node whose
// single child is the top-level mapping. A missing or empty file yields an
// empty mapping.
func (s *FileStore) readDocument() (*yaml.Node, fs.FileMode, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptyDocument(), 0o644, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read config file %s: %w", s.path, err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat config file %s: %w", s.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return emptyDocument(), info.Mode().Perm(), nil
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, 0, fmt.Errorf("config file %s: top level must be a mapping", s.path)
	}
	return &doc, info.Mode().Perm(), nil
}

func emptyDocument() *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
}

// setMappingKey replaces the value of key in a mapping node, appending the
// key when absent. Comments attached to the key survive.
func setMappingKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			old := mapping.Content[i+1]
			value.LineComment = old.LineComment
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value)
}

// presetYAML is the on-disk form of a preset. Empty optional keys are omitted.
type presetYAML struct {
	IndexCols []string          `yaml:"index_cols,flow"`
	Columns   string            `yaml:"columns,omitempty"`
	Values    string            `yaml:"values,omitempty"`
	AggFunc   string            `yaml:"aggfunc"`
	Filters   map[string]string `yaml:"filters,omitempty"`
}

func presetsForYAML(presets map[string]core.PivotSpec) map[string]presetYAML {
	out := make(map[string]presetYAML, len(presets))
	for name, p := range presets {
		agg := p.Aggregator
		if agg == "" {
			agg = core.DefaultAggregator
		}
		out[name] = presetYAML{
			IndexCols: p.RowColumns,
			Columns:   p.ColumnDimension,
			Values:    p.ValueColumn,
			AggFunc:   string(agg),
			Filters:   p.Filters,
		}
	}
	return out
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config file %s: %w", path, err)
	}
	return nil
}
