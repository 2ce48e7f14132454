// Package preset manages named pivot specs stored in the configuration document.
//
// Every mutation is handed to a Persister before the in-memory document is
// changed, so a failed write leaves both the file and the document as they were.
package preset

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/leapstack-labs/mergepivot/internal/config"
	"github.com/leapstack-labs/mergepivot/internal/pivot"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

const op = "preset"

// ErrPresetExists is wrapped by Create when the name is already taken.
var ErrPresetExists = errors.New("preset already exists")

// Persister writes the full preset collection to durable storage.
type Persister interface {
	SavePresets(presets map[string]core.PivotSpec) error
}

// CreateOptions controls Create.
type CreateOptions struct {
	// Overwrite replaces an existing preset with the same name.
	Overwrite bool
}

// Manager lists, resolves, creates and deletes presets.
type Manager struct {
	doc    *config.Document
	store  Persister
	logger *slog.Logger
}

// NewManager creates a Manager over doc. A nil logger discards output.
func NewManager(doc *config.Document, store Persister, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if doc.PivotPresets == nil {
		doc.PivotPresets = make(map[string]core.PivotSpec)
	}
	return &Manager{doc: doc, store: store, logger: logger}
}

// List returns the preset names in sorted order.
func (m *Manager) List() []string {
	return slices.Sorted(maps.Keys(m.doc.PivotPresets))
}

// Resolve returns a copy of the named preset.
func (m *Manager) Resolve(name string) (core.PivotSpec, error) {
	spec, ok := m.doc.PivotPresets[name]
	if !ok {
		return core.PivotSpec{}, core.Errorf(core.KindPresetNotFound, op,
			"preset %q not found (available: %s)", name, m.available())
	}
	return spec.Clone(), nil
}

// Create validates and stores a preset. When sample is non-nil every column
// the spec references must exist in it.
func (m *Manager) Create(name string, spec core.PivotSpec, sample *core.Dataset, opts CreateOptions) error {
	if err := core.ValidatePresetName(name); err != nil {
		return err
	}
	_, exists := m.doc.PivotPresets[name]
	if exists && !opts.Overwrite {
		return core.Wrap(core.KindInvalidConfiguration, op, ErrPresetExists,
			"cannot create %q", name)
	}

	normalized, err := pivot.Validate(spec)
	if err != nil {
		return err
	}
	if sample != nil {
		if missing := sample.Missing(normalized.ReferencedColumns()...); len(missing) > 0 {
			return core.Errorf(core.KindInvalidConfiguration, op,
				"preset %q references unknown columns: %s (available: %s)",
				name, strings.Join(missing, ", "), strings.Join(sample.ColumnNames(), ", "))
		}
	}

	next := maps.Clone(m.doc.PivotPresets)
	next[name] = normalized
	if err := m.store.SavePresets(next); err != nil {
		return fmt.Errorf("failed to save preset %q: %w", name, err)
	}
	m.doc.PivotPresets = next

	m.logger.Info("preset saved",
		slog.String("name", name),
		slog.String("spec", normalized.String()),
		slog.Bool("replaced", exists))
	return nil
}

// Delete removes a preset.
func (m *Manager) Delete(name string) error {
	if _, ok := m.doc.PivotPresets[name]; !ok {
		return core.Errorf(core.KindPresetNotFound, op,
			"preset %q not found (available: %s)", name, m.available())
	}

	next := maps.Clone(m.doc.PivotPresets)
	delete(next, name)
	if err := m.store.SavePresets(next); err != nil {
		return fmt.Errorf("failed to delete preset %q: %w", name, err)
	}
	m.doc.PivotPresets = next

	m.logger.Info("preset deleted", slog.String("name", name))
	return nil
}

func (m *Manager) available() string {
	names := m.List()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
