package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database, creating its directory
// when needed. Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// every pooled connection to ":memory:" would see its own database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened state store", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// RecordMerge inserts a merge run.
func (s *SQLiteStore) RecordMerge(ctx context.Context, run MergeRun) (*MergeRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	if run.ID == "" {
		run.ID = generateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merge_runs (
			id, started_at, master_file, dump_file, output_file,
			master_rows, incoming_rows, combined_rows, removed, deduplicated, dry_run
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.MasterFile, run.DumpFile, run.OutputFile,
		run.MasterRows, run.IncomingRows, run.CombinedRows, run.Removed,
		run.Deduplicated, run.DryRun,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record merge run: %w", err)
	}

	s.logger.Debug("recorded merge run", slog.String("id", run.ID))
	return &run, nil
}

// ListMerges returns recorded runs, newest first.
func (s *SQLiteStore) ListMerges(ctx context.Context, limit int) ([]*MergeRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, master_file, dump_file, output_file,
			master_rows, incoming_rows, combined_rows, removed, deduplicated, dry_run
		FROM merge_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*MergeRun
	for rows.Next() {
		var (
			run       MergeRun
			startedAt int64
		)
		if err := rows.Scan(
			&run.ID, &startedAt, &run.MasterFile, &run.DumpFile, &run.OutputFile,
			&run.MasterRows, &run.IncomingRows, &run.CombinedRows, &run.Removed,
			&run.Deduplicated, &run.DryRun,
		); err != nil {
			return nil, fmt.Errorf("failed to scan merge run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merge runs: %w", err)
	}
	return runs, nil
}
