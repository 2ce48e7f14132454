package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/mergepivot/internal/config"
	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// Reader loads datasets from files, choosing the decoder by extension.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a Reader. A nil logger discards output.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{logger: logger}
}

// Read loads path. The sheet applies to workbooks only.
func (r *Reader) Read(ctx context.Context, path string, sheet config.SheetRef) (*core.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var (
		ds  *core.Dataset
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		ds, err = readCSV(ctx, path)
	case ".xlsx", ".xlsm":
		ds, err = ReadXLSX(path, sheet)
	case ".xls":
		return nil, fmt.Errorf("%w: %s (legacy .xls workbooks must be saved as .xlsx)", ErrUnsupportedFormat, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("loaded dataset",
		slog.String("file", filepath.Base(path)),
		slog.Int("rows", ds.Len()),
		slog.Int("columns", len(ds.Columns)))
	return ds, nil
}

func readCSV(ctx context.Context, path string) (*core.Dataset, error) {
	db, err := OpenDuckDB(ctx, ":memory:")
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return db.ReadCSV(ctx, path)
}

// WriteFile saves ds to path, choosing the encoder by extension. Parent
// directories are created. The sheet names the worksheet of a workbook.
func WriteFile(path string, ds *core.Dataset, sheet string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return WriteXLSX(path, ds, sheet)
	case ".csv":
		return WriteCSV(path, ds)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// WriteCSV writes ds with a header row. Nulls are written as empty fields.
func WriteCSV(path string, ds *core.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(ds.ColumnNames()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, v := range row {
			record[i] = core.FormatValue(v)
		}
		if err := w.Write(record); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}
