package source

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// DuckDB reads delimited files through an embedded DuckDB connection,
// which infers column types with read_csv_auto.
type DuckDB struct {
	db *sql.DB
}

// OpenDuckDB opens a DuckDB connection.
// Use ":memory:" or "" for an in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*DuckDB, error) {
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return &DuckDB{db: db}, nil
}

// Close closes the DuckDB connection.
func (d *DuckDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// ReadCSV loads a CSV file with a header row into a dataset.
func (d *DuckDB) ReadCSV(ctx context.Context, path string) (*core.Dataset, error) {
	if d.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM read_csv_auto('%s', header=true)",
		strings.ReplaceAll(absPath, "'", "''"),
	)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}
	cols := make([]core.Column, len(types))
	for i, ct := range types {
		cols[i] = core.Column{Name: ct.Name(), Type: columnTypeFor(ct.DatabaseTypeName())}
	}
	ds := core.NewDataset(cols...)

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(core.Row, len(values))
		for i, v := range values {
			row[i] = normalizeDriverValue(v)
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ds, nil
}

// columnTypeFor maps a DuckDB type name onto a column type.
func columnTypeFor(dbType string) core.ColumnType {
	t := strings.ToUpper(dbType)
	switch {
	case t == "BOOLEAN":
		return core.TypeBool
	case t == "DATE" || strings.HasPrefix(t, "TIMESTAMP"):
		return core.TypeDate
	case strings.HasPrefix(t, "DECIMAL"),
		strings.HasSuffix(t, "INT"), // TINYINT .. HUGEINT, UBIGINT
		t == "INTEGER", t == "UINTEGER",
		t == "DOUBLE", t == "FLOAT", t == "REAL":
		return core.TypeNumber
	default:
		return core.TypeString
	}
}

// normalizeDriverValue converts DuckDB-specific scan results into cell values.
func normalizeDriverValue(v any) core.Value {
	switch x := v.(type) {
	case duckdb.Decimal:
		return x.Float64()
	case *big.Int:
		if x == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	default:
		return core.NormalizeValue(v)
	}
}
